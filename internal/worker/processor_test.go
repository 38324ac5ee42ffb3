package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"movie-catalog/internal/config"
	"movie-catalog/internal/models"
	"movie-catalog/internal/store"
)

type fakeJobQueue struct {
	acked     []string
	scheduled []string
	dlq       []string
}

func (f *fakeJobQueue) PromoteScheduled(context.Context, time.Time, int64) (int, error) {
	return 0, nil
}
func (f *fakeJobQueue) RequeueExpired(context.Context, time.Time, int64) ([]string, error) {
	return nil, nil
}
func (f *fakeJobQueue) ReadyDepth(context.Context) (int64, error) { return 0, nil }
func (f *fakeJobQueue) DequeueWithLease(context.Context) (string, error) {
	return "", nil
}
func (f *fakeJobQueue) Ack(_ context.Context, jobID string) error {
	f.acked = append(f.acked, jobID)
	return nil
}
func (f *fakeJobQueue) Schedule(_ context.Context, jobID string, _ time.Time) error {
	f.scheduled = append(f.scheduled, jobID)
	return nil
}
func (f *fakeJobQueue) DLQPush(_ context.Context, jobID string) error {
	f.dlq = append(f.dlq, jobID)
	return nil
}

type fakeJobStore struct {
	jobs     map[string]models.Job
	statuses []string
}

func newFakeJobStore(jobs ...models.Job) *fakeJobStore {
	m := make(map[string]models.Job, len(jobs))
	for _, j := range jobs {
		m[j.ID] = j
	}
	return &fakeJobStore{jobs: m}
}

func (f *fakeJobStore) GetJob(_ context.Context, id string) (models.Job, error) {
	j, ok := f.jobs[id]
	if !ok {
		return models.Job{}, store.ErrNotFound
	}
	return j, nil
}

func (f *fakeJobStore) UpdateJobStatus(_ context.Context, id, status string, attempts int, _ time.Time, _ *string) error {
	j := f.jobs[id]
	j.Status = status
	j.Attempts = attempts
	f.jobs[id] = j
	f.statuses = append(f.statuses, status)
	return nil
}

func (f *fakeJobStore) MarkCompleted(_ context.Context, id string) error {
	j := f.jobs[id]
	j.Status = models.StatusCompleted
	f.jobs[id] = j
	f.statuses = append(f.statuses, models.StatusCompleted)
	return nil
}

func (f *fakeJobStore) MarkDead(_ context.Context, id, lastError string) error {
	j := f.jobs[id]
	j.Status = models.StatusDead
	j.LastError = &lastError
	f.jobs[id] = j
	f.statuses = append(f.statuses, models.StatusDead)
	return nil
}

func (f *fakeJobStore) RecordFailure(_ context.Context, id string, attempts int, _ time.Time, lastErr string) error {
	j := f.jobs[id]
	j.Status = models.StatusQueued
	j.Attempts = attempts
	j.LastError = &lastErr
	f.jobs[id] = j
	f.statuses = append(f.statuses, models.StatusQueued)
	return nil
}

func (f *fakeJobStore) SetWorkerID(_ context.Context, id, workerID string) error {
	j := f.jobs[id]
	j.WorkerID = &workerID
	f.jobs[id] = j
	return nil
}

func (f *fakeJobStore) AppendAudit(context.Context, string, string, string) error { return nil }

func newTestProcessor(q *fakeJobQueue, st *fakeJobStore) *Processor {
	cfg := config.Config{
		MaxAttempts:    3,
		BackoffInitial: time.Millisecond,
		BackoffMax:     10 * time.Millisecond,
	}
	return NewProcessor(cfg, q, st, "test-worker", zerolog.Nop())
}

func TestProcessOneSuccess(t *testing.T) {
	q := &fakeJobQueue{}
	st := newFakeJobStore(models.Job{ID: "job-1", Type: "noop", MaxAttempts: 3})
	p := newTestProcessor(q, st)
	p.RegisterHandler("noop", func(context.Context, models.Job) error { return nil })

	p.processOne(context.Background(), "job-1")

	job := st.jobs["job-1"]
	if job.Status != models.StatusCompleted {
		t.Fatalf("status = %q, want completed", job.Status)
	}
	if job.WorkerID == nil || *job.WorkerID != "test-worker" {
		t.Fatalf("worker id not recorded: %+v", job)
	}
	if len(q.acked) != 1 || q.acked[0] != "job-1" {
		t.Fatalf("acked = %v", q.acked)
	}
	// queued -> active -> completed
	if len(st.statuses) < 2 || st.statuses[0] != models.StatusActive || st.statuses[len(st.statuses)-1] != models.StatusCompleted {
		t.Fatalf("unexpected transitions: %v", st.statuses)
	}
}

func TestProcessOneFailureSchedulesRetry(t *testing.T) {
	q := &fakeJobQueue{}
	st := newFakeJobStore(models.Job{ID: "job-1", Type: "boom", MaxAttempts: 3})
	p := newTestProcessor(q, st)
	p.RegisterHandler("boom", func(context.Context, models.Job) error {
		return errors.New("kaput")
	})

	p.processOne(context.Background(), "job-1")

	job := st.jobs["job-1"]
	if job.Status != models.StatusQueued {
		t.Fatalf("status = %q, want queued for retry", job.Status)
	}
	if job.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", job.Attempts)
	}
	if len(q.scheduled) != 1 {
		t.Fatalf("expected retry schedule, got %v", q.scheduled)
	}
	if len(q.dlq) != 0 {
		t.Fatalf("retryable failure went to dlq: %v", q.dlq)
	}
}

func TestProcessOneDeadLettersAfterMaxAttempts(t *testing.T) {
	q := &fakeJobQueue{}
	st := newFakeJobStore(models.Job{ID: "job-1", Type: "boom", Attempts: 2, MaxAttempts: 3})
	p := newTestProcessor(q, st)
	p.RegisterHandler("boom", func(context.Context, models.Job) error {
		return errors.New("kaput")
	})

	p.processOne(context.Background(), "job-1")

	job := st.jobs["job-1"]
	if job.Status != models.StatusDead {
		t.Fatalf("status = %q, want dead", job.Status)
	}
	if len(q.dlq) != 1 || q.dlq[0] != "job-1" {
		t.Fatalf("dlq = %v, want [job-1]", q.dlq)
	}
	if len(q.scheduled) != 0 {
		t.Fatalf("dead job was rescheduled: %v", q.scheduled)
	}
}

func TestProcessOneSkipsTerminalJob(t *testing.T) {
	q := &fakeJobQueue{}
	st := newFakeJobStore(models.Job{ID: "job-1", Type: "noop", Status: models.StatusCompleted})
	p := newTestProcessor(q, st)

	var ran bool
	p.RegisterHandler("noop", func(context.Context, models.Job) error {
		ran = true
		return nil
	})

	p.processOne(context.Background(), "job-1")
	if ran {
		t.Fatal("terminal job was re-run")
	}
	if len(q.acked) != 1 {
		t.Fatalf("stale redelivery not acked: %v", q.acked)
	}
}

func TestProcessOneRecoversHandlerPanic(t *testing.T) {
	q := &fakeJobQueue{}
	st := newFakeJobStore(models.Job{ID: "job-1", Type: "panic", MaxAttempts: 3})
	p := newTestProcessor(q, st)
	p.RegisterHandler("panic", func(context.Context, models.Job) error {
		panic("payload exploded")
	})

	p.processOne(context.Background(), "job-1")

	job := st.jobs["job-1"]
	if job.Status != models.StatusQueued {
		t.Fatalf("status = %q, want queued for retry after panic", job.Status)
	}
}

func TestProcessOneMissingHandler(t *testing.T) {
	q := &fakeJobQueue{}
	st := newFakeJobStore(models.Job{ID: "job-1", Type: "mystery", Attempts: 2, MaxAttempts: 3})
	p := newTestProcessor(q, st)

	p.processOne(context.Background(), "job-1")
	if st.jobs["job-1"].Status != models.StatusDead {
		t.Fatalf("status = %q, want dead", st.jobs["job-1"].Status)
	}
}

func TestBackoffWithJitter(t *testing.T) {
	base := time.Second
	max := 8 * time.Second

	b1 := backoffWithJitter(base, max, 1)
	if b1 < base/2 || b1 > max {
		t.Fatalf("backoff out of range: %s", b1)
	}

	b3 := backoffWithJitter(base, max, 3)
	if b3 < base || b3 > max {
		t.Fatalf("backoff out of range for attempt 3: %s", b3)
	}

	b10 := backoffWithJitter(base, max, 10)
	if b10 > max {
		t.Fatalf("backoff exceeded max: %s", b10)
	}
}
