package models

import (
	"time"
)

// Job lifecycle states persisted in Postgres.
//
// queued -> active -> completed on success. A failed attempt either
// re-queues the job (attempts < max) or dead-letters it.
const (
	StatusQueued    = "queued"
	StatusActive    = "active"
	StatusFailed    = "failed"
	StatusCompleted = "completed"
	StatusDead      = "dead"
)

// Job types handled by the ingestion worker.
const (
	JobTypeMovieUpsert     = "movie:upsert"
	JobTypePosterThumbnail = "poster:thumbnail"
)

// Job is one unit of ingestion work: a single normalized external record to
// be upserted, or a follow-up enrichment task derived from one.
type Job struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Payload     map[string]any `json:"payload"`
	Status      string         `json:"status"`
	Attempts    int            `json:"attempts"`
	MaxAttempts int            `json:"max_attempts"`
	NextRunAt   time.Time      `json:"next_run_at"`
	LastError   *string        `json:"last_error,omitempty"`
	WorkerID    *string        `json:"worker_id,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// ExternalMovie is the normalized upstream record carried in a movie:upsert
// job payload.
type ExternalMovie struct {
	ExternalID  int64    `json:"externalId"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Rating      *float64 `json:"rating"`
	ReleaseDate string   `json:"releaseDate"`
	Poster      *string  `json:"poster"`
}
