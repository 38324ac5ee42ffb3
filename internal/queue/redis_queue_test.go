package queue

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"movie-catalog/internal/config"
)

func newTestQueue(t *testing.T, visibility time.Duration) *RedisQueue {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisQueueWithClient(client, config.Config{VisibilityTimeout: visibility})
}

func TestEnqueueDequeueAck(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, 30*time.Second)

	if err := q.Enqueue(ctx, "job-1", time.Now()); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	depth, err := q.ReadyDepth(ctx)
	if err != nil || depth != 1 {
		t.Fatalf("ready depth = %d (%v), want 1", depth, err)
	}

	id, err := q.DequeueWithLease(ctx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if id != "job-1" {
		t.Fatalf("dequeued %q, want job-1", id)
	}

	// The claimed job is invisible to other consumers.
	id2, err := q.DequeueWithLease(ctx)
	if err != nil {
		t.Fatalf("second dequeue: %v", err)
	}
	if id2 != "" {
		t.Fatalf("second dequeue got %q, want empty", id2)
	}

	if err := q.Ack(ctx, "job-1"); err != nil {
		t.Fatalf("ack: %v", err)
	}
	reclaimed, err := q.RequeueExpired(ctx, time.Now().Add(time.Hour), 10)
	if err != nil {
		t.Fatalf("requeue expired: %v", err)
	}
	if len(reclaimed) != 0 {
		t.Fatalf("acked job was reclaimed: %v", reclaimed)
	}
}

func TestExpiredLeaseIsReclaimed(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, 50*time.Millisecond)

	if err := q.Enqueue(ctx, "job-1", time.Now()); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := q.DequeueWithLease(ctx); err != nil {
		t.Fatalf("dequeue: %v", err)
	}

	// Before the deadline nothing is reclaimable.
	reclaimed, err := q.RequeueExpired(ctx, time.Now(), 10)
	if err != nil {
		t.Fatalf("requeue expired: %v", err)
	}
	if len(reclaimed) != 0 {
		t.Fatalf("unexpired lease reclaimed: %v", reclaimed)
	}

	// Past the deadline the job becomes visible again.
	reclaimed, err = q.RequeueExpired(ctx, time.Now().Add(time.Second), 10)
	if err != nil {
		t.Fatalf("requeue expired: %v", err)
	}
	if len(reclaimed) != 1 || reclaimed[0] != "job-1" {
		t.Fatalf("reclaimed = %v, want [job-1]", reclaimed)
	}

	id, err := q.DequeueWithLease(ctx)
	if err != nil || id != "job-1" {
		t.Fatalf("redelivery got %q (%v), want job-1", id, err)
	}
}

func TestExtendLease(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, 50*time.Millisecond)

	_ = q.Enqueue(ctx, "job-1", time.Now())
	if _, err := q.DequeueWithLease(ctx); err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if err := q.ExtendLease(ctx, "job-1", time.Hour); err != nil {
		t.Fatalf("extend: %v", err)
	}

	reclaimed, err := q.RequeueExpired(ctx, time.Now().Add(time.Minute), 10)
	if err != nil {
		t.Fatalf("requeue expired: %v", err)
	}
	if len(reclaimed) != 0 {
		t.Fatalf("extended lease reclaimed: %v", reclaimed)
	}
}

func TestScheduledPromotion(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, 30*time.Second)

	runAt := time.Now().Add(time.Minute)
	if err := q.Enqueue(ctx, "job-later", runAt); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	// Not ready before its run time.
	if id, _ := q.DequeueWithLease(ctx); id != "" {
		t.Fatalf("scheduled job dequeued early: %q", id)
	}
	n, err := q.PromoteScheduled(ctx, time.Now(), 10)
	if err != nil || n != 0 {
		t.Fatalf("promoted %d (%v), want 0", n, err)
	}

	n, err = q.PromoteScheduled(ctx, runAt.Add(time.Second), 10)
	if err != nil || n != 1 {
		t.Fatalf("promoted %d (%v), want 1", n, err)
	}
	id, err := q.DequeueWithLease(ctx)
	if err != nil || id != "job-later" {
		t.Fatalf("dequeue after promote got %q (%v)", id, err)
	}
}

func TestDLQ(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, 30*time.Second)

	if err := q.DLQPush(ctx, "job-dead"); err != nil {
		t.Fatalf("dlq push: %v", err)
	}
	items, err := q.DLQPeek(ctx, 10)
	if err != nil {
		t.Fatalf("dlq peek: %v", err)
	}
	if len(items) != 1 || items[0] != "job-dead" {
		t.Fatalf("dlq = %v, want [job-dead]", items)
	}
}
