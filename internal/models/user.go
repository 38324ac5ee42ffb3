package models

import "time"

// User is a stored account. PasswordHash never leaves the store layer.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Identity is the authenticated caller attached to a request context. It
// lives for exactly one request and is never persisted.
type Identity struct {
	ID   string
	Role string
}

// RoleAdmin is the only role that may mutate the catalog.
const RoleAdmin = "admin"
