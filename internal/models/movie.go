package models

import (
	"time"
)

// Movie is a catalog record persisted in Postgres.
//
// ExternalID is the natural key used by the ingestion pipeline; it is unique
// across the catalog when present, which is what makes ingestion upserts
// idempotent. Records created by hand through the admin API have no external
// ID.
type Movie struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	ExternalID  *int64     `json:"externalId,omitempty"`
	Rating      *float64   `json:"rating"`
	ReleaseDate *time.Time `json:"releaseDate"`
	Duration    *int       `json:"duration"`
	Poster      *string    `json:"poster"`
	Genres      []string   `json:"genres"`
	CreatedBy   *string    `json:"createdBy,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// MovieList is the envelope returned by the paginated listing endpoints.
type MovieList struct {
	Page       int     `json:"page"`
	TotalPages int     `json:"totalPages"`
	Total      int64   `json:"total"`
	Movies     []Movie `json:"movies"`
}
