// Package importer produces ingestion jobs from the upstream movie feed. It
// never touches the request-serving path: records flow through the durable
// queue and are written by the worker.
package importer

import (
	"context"
	"time"

	"movie-catalog/internal/models"
	"movie-catalog/internal/store"
	"movie-catalog/internal/telemetry"
)

// JobCreator persists the job row before the queue learns its id.
type JobCreator interface {
	CreateJob(ctx context.Context, p store.CreateJobParams) (models.Job, error)
}

// JobQueue is the enqueue-side queue surface.
type JobQueue interface {
	Enqueue(ctx context.Context, jobID string, runAt time.Time) error
}

// Enqueuer creates a job row and pushes its id onto the ready queue.
type Enqueuer struct {
	jobs        JobCreator
	queue       JobQueue
	maxAttempts int
}

// NewEnqueuer wires job persistence and queue push.
func NewEnqueuer(jobs JobCreator, queue JobQueue, maxAttempts int) *Enqueuer {
	return &Enqueuer{jobs: jobs, queue: queue, maxAttempts: maxAttempts}
}

// EnqueueJob persists and enqueues one job for immediate execution.
func (e *Enqueuer) EnqueueJob(ctx context.Context, jobType string, payload map[string]any) error {
	job, err := e.jobs.CreateJob(ctx, store.CreateJobParams{
		Type:        jobType,
		Payload:     payload,
		RunAt:       time.Now(),
		MaxAttempts: e.maxAttempts,
	})
	if err != nil {
		return err
	}
	if err := e.queue.Enqueue(ctx, job.ID, job.NextRunAt); err != nil {
		return err
	}
	telemetry.IngestEnqueued.Inc()
	return nil
}
