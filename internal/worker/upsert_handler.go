package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"movie-catalog/internal/models"
	"movie-catalog/internal/store"
)

// CatalogWriter is the single store operation the upsert handler needs.
type CatalogWriter interface {
	UpsertMovieByExternalID(ctx context.Context, p store.UpsertMovieParams) (models.Movie, error)
}

// FollowUpEnqueuer enqueues derived jobs. Nil disables follow-ups.
type FollowUpEnqueuer interface {
	EnqueueJob(ctx context.Context, jobType string, payload map[string]any) error
}

// UpsertHandler applies movie:upsert jobs to the catalog. The write is an
// atomic insert-or-update keyed by externalId, so redelivering the same job
// leaves exactly one record with that id.
type UpsertHandler struct {
	catalog CatalogWriter
	thumbs  FollowUpEnqueuer
	log     zerolog.Logger
}

// NewUpsertHandler wires the handler; thumbs may be nil.
func NewUpsertHandler(catalog CatalogWriter, thumbs FollowUpEnqueuer, log zerolog.Logger) *UpsertHandler {
	return &UpsertHandler{catalog: catalog, thumbs: thumbs, log: log}
}

// Handle decodes and validates the normalized external record, then upserts.
func (h *UpsertHandler) Handle(ctx context.Context, job models.Job) error {
	var rec models.ExternalMovie
	if err := decodePayload(job.Payload, &rec); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if rec.ExternalID <= 0 {
		return fmt.Errorf("payload missing externalId")
	}
	if rec.Title == "" {
		return fmt.Errorf("payload missing title")
	}

	var releaseDate *time.Time
	if rec.ReleaseDate != "" {
		d, err := time.Parse("2006-01-02", rec.ReleaseDate)
		if err != nil {
			return fmt.Errorf("parse releaseDate %q: %w", rec.ReleaseDate, err)
		}
		releaseDate = &d
	}

	movie, err := h.catalog.UpsertMovieByExternalID(ctx, store.UpsertMovieParams{
		ExternalID:  rec.ExternalID,
		Title:       rec.Title,
		Description: rec.Description,
		Rating:      rec.Rating,
		ReleaseDate: releaseDate,
		Poster:      rec.Poster,
	})
	if err != nil {
		return err
	}
	h.log.Debug().Str("movie_id", movie.ID).Int64("external_id", rec.ExternalID).Msg("movie upserted")

	// Thumbnail generation is best-effort enrichment; a failed enqueue is
	// logged and does not fail the upsert.
	if h.thumbs != nil && rec.Poster != nil && *rec.Poster != "" {
		payload := map[string]any{
			"externalId": rec.ExternalID,
			"sourceUrl":  *rec.Poster,
		}
		if err := h.thumbs.EnqueueJob(ctx, models.JobTypePosterThumbnail, payload); err != nil {
			h.log.Warn().Err(err).Int64("external_id", rec.ExternalID).Msg("enqueue poster thumbnail failed")
		}
	}
	return nil
}

// decodePayload round-trips the generic payload map through JSON into a
// typed struct.
func decodePayload(payload map[string]any, dst any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}
