// Package worker consumes ingestion jobs from the Redis queue and applies
// them to the catalog store. A single job's failure never propagates past
// its own retry bookkeeping.
package worker

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"movie-catalog/internal/config"
	"movie-catalog/internal/models"
	"movie-catalog/internal/telemetry"
)

// JobQueue is the lease-based queue surface the processor drives.
type JobQueue interface {
	PromoteScheduled(ctx context.Context, now time.Time, limit int64) (int, error)
	RequeueExpired(ctx context.Context, now time.Time, limit int64) ([]string, error)
	ReadyDepth(ctx context.Context) (int64, error)
	DequeueWithLease(ctx context.Context) (string, error)
	Ack(ctx context.Context, jobID string) error
	Schedule(ctx context.Context, jobID string, runAt time.Time) error
	DLQPush(ctx context.Context, jobID string) error
}

// JobStore is the persistence surface for job state transitions.
type JobStore interface {
	GetJob(ctx context.Context, id string) (models.Job, error)
	UpdateJobStatus(ctx context.Context, id string, status string, attempts int, nextRun time.Time, lastError *string) error
	MarkCompleted(ctx context.Context, id string) error
	MarkDead(ctx context.Context, id string, lastError string) error
	RecordFailure(ctx context.Context, id string, attempts int, nextRun time.Time, lastErr string) error
	SetWorkerID(ctx context.Context, id, workerID string) error
	AppendAudit(ctx context.Context, jobID, event, detail string) error
}

// Handler executes a job of a given type.
type Handler func(ctx context.Context, job models.Job) error

// Processor drives the worker execution loop.
type Processor struct {
	cfg      config.Config
	queue    JobQueue
	store    JobStore
	handlers map[string]Handler
	workerID string
	log      zerolog.Logger
}

// NewProcessor creates a processor with a worker ID for claim tracking.
func NewProcessor(cfg config.Config, q JobQueue, st JobStore, workerID string, log zerolog.Logger) *Processor {
	return &Processor{
		cfg:      cfg,
		queue:    q,
		store:    st,
		handlers: make(map[string]Handler),
		workerID: workerID,
		log:      log,
	}
}

// RegisterHandler binds a handler to a job type.
func (p *Processor) RegisterHandler(jobType string, handler Handler) {
	if jobType == "" || handler == nil {
		return
	}
	p.handlers[jobType] = handler
}

// Run starts the main worker loop until context cancellation.
func (p *Processor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, _ = p.queue.PromoteScheduled(ctx, time.Now(), int64(p.cfg.ScheduledBatchSize))
		if reclaimed, _ := p.queue.RequeueExpired(ctx, time.Now(), 100); len(reclaimed) > 0 {
			telemetry.InFlightGauge.Sub(float64(len(reclaimed)))
			for _, id := range reclaimed {
				if job, err := p.store.GetJob(ctx, id); err == nil {
					_ = p.store.UpdateJobStatus(ctx, id, models.StatusQueued, job.Attempts, time.Now(), job.LastError)
					_ = p.store.AppendAudit(ctx, id, "lease_expired", "visibility timeout elapsed, job re-queued")
				}
			}
		}
		if depth, err := p.queue.ReadyDepth(ctx); err == nil {
			telemetry.QueueDepthGauge.Set(float64(depth))
		}

		jobID, err := p.queue.DequeueWithLease(ctx)
		if err != nil || jobID == "" {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.cfg.WorkerPollInterval):
			}
			continue
		}

		p.processOne(ctx, jobID)
	}
}

// processOne runs a single claimed job through the state machine:
// queued -> active -> completed, or active -> failed -> queued/dead.
func (p *Processor) processOne(ctx context.Context, jobID string) {
	job, err := p.store.GetJob(ctx, jobID)
	if err != nil {
		// Job row is gone or unreadable; release the lease and move on.
		_ = p.queue.Ack(ctx, jobID)
		return
	}
	if job.Status == models.StatusCompleted || job.Status == models.StatusDead {
		// Stale redelivery of a terminal job.
		_ = p.queue.Ack(ctx, jobID)
		return
	}

	_ = p.store.UpdateJobStatus(ctx, job.ID, models.StatusActive, job.Attempts, job.NextRunAt, nil)
	if p.workerID != "" {
		_ = p.store.SetWorkerID(ctx, job.ID, p.workerID)
	}
	telemetry.InFlightGauge.Inc()
	defer telemetry.InFlightGauge.Dec()

	err = p.runJob(ctx, job)
	if err == nil {
		_ = p.queue.Ack(ctx, job.ID)
		_ = p.store.MarkCompleted(ctx, job.ID)
		_ = p.store.AppendAudit(ctx, job.ID, "completed", "worker completed job")
		telemetry.IngestCompleted.Inc()
		return
	}

	p.log.Warn().Err(err).Str("job_id", job.ID).Str("type", job.Type).Int("attempts", job.Attempts+1).Msg("job failed")

	attempts := job.Attempts + 1
	if attempts >= job.MaxAttempts || attempts >= p.cfg.MaxAttempts {
		_ = p.store.MarkDead(ctx, job.ID, err.Error())
		_ = p.queue.Ack(ctx, job.ID)
		_ = p.queue.DLQPush(ctx, job.ID)
		_ = p.store.AppendAudit(ctx, job.ID, "dead", err.Error())
		telemetry.IngestDeadLetter.Inc()
		p.log.Error().Str("job_id", job.ID).Int("attempts", attempts).Msg("job dead-lettered")
		return
	}

	backoff := backoffWithJitter(p.cfg.BackoffInitial, p.cfg.BackoffMax, attempts)
	nextRun := time.Now().Add(backoff)
	_ = p.store.RecordFailure(ctx, job.ID, attempts, nextRun, err.Error())
	_ = p.queue.Ack(ctx, job.ID)
	_ = p.queue.Schedule(ctx, job.ID, nextRun)
	_ = p.store.AppendAudit(ctx, job.ID, "retry_scheduled", fmt.Sprintf("next_run=%s attempts=%d", nextRun.UTC().Format(time.RFC3339), attempts))
	telemetry.IngestRetries.Inc()
}

// runJob dispatches to the registered handler, converting a handler panic
// into an ordinary failure so one malformed payload cannot take the loop down.
func (p *Processor) runJob(ctx context.Context, job models.Job) (err error) {
	handler, ok := p.handlers[job.Type]
	if !ok {
		return fmt.Errorf("no handler registered for type %q", job.Type)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, job)
}

func backoffWithJitter(base, max time.Duration, attempt int) time.Duration {
	if attempt <= 0 {
		return base
	}
	exp := float64(base) * math.Pow(2, float64(attempt-1))
	wait := time.Duration(exp)
	if wait > max {
		wait = max
	}
	jitter := time.Duration(rand.Int63n(int64(wait / 2)))
	return wait/2 + jitter
}
