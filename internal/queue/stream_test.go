package queue

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestStreamRoundTrip(t *testing.T) {
	_, rdb := newRedis(t)
	ctx := context.Background()
	q := NewStreamQueue(rdb, "kangsantri:jobs", "workers", "w1", 50*time.Millisecond)

	if err := q.EnsureGroup(ctx); err != nil {
		t.Fatalf("ensure group: %v", err)
	}
	if err := q.EnsureGroup(ctx); err != nil {
		t.Fatalf("ensure group twice: %v", err)
	}

	if _, err := q.Enqueue(ctx, Job{Kind: KindImage, ChatID: 7, Text: "sunrise", Count: 2}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := q.Enqueue(ctx, Job{ChatID: 7, Text: "hello"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	msgs, err := q.Read(ctx, 10)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(msgs))
	}
	if msgs[0].Job.Kind != KindImage || msgs[0].Job.Count != 2 || msgs[0].Job.JobID == "" {
		t.Fatalf("unexpected first job %+v", msgs[0].Job)
	}
	if msgs[1].Job.Kind != KindChat || msgs[1].Job.EnqueuedAt.IsZero() {
		t.Fatalf("defaults not applied: %+v", msgs[1].Job)
	}

	for _, m := range msgs {
		if err := q.Ack(ctx, m.ID); err != nil {
			t.Fatalf("ack: %v", err)
		}
	}
	if n := rdb.XLen(ctx, "kangsantri:jobs").Val(); n != 0 {
		t.Fatalf("acked jobs must be deleted, %d left", n)
	}

	msgs, err = q.Read(ctx, 10)
	if err != nil {
		t.Fatalf("read empty: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected no jobs, got %d", len(msgs))
	}
}

func TestReadDropsUndecodableEntries(t *testing.T) {
	_, rdb := newRedis(t)
	ctx := context.Background()
	q := NewStreamQueue(rdb, "jobs", "g", "c", 10*time.Millisecond)
	if err := q.EnsureGroup(ctx); err != nil {
		t.Fatalf("ensure group: %v", err)
	}
	rdb.XAdd(ctx, &redis.XAddArgs{Stream: "jobs", Values: map[string]any{"payload": "{broken"}})

	msgs, err := q.Read(ctx, 10)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected broken entry to be dropped, got %d", len(msgs))
	}
	if n := rdb.XLen(ctx, "jobs").Val(); n != 0 {
		t.Fatalf("broken entry must be removed, %d left", n)
	}
}
