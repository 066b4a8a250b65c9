package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisCleanupQueueEnqueueTracksStatus(t *testing.T) {
	redisSrv := miniredis.RunT(t)
	q, err := NewRedisCleanupQueue(Config{
		Addr:   redisSrv.Addr(),
		Stream: "test:cleanup",
	})
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}

	ctx := context.Background()
	job, err := q.Enqueue(ctx, "acme-2025/report.pdf")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if job.ID == "" || job.StorageKey != "acme-2025/report.pdf" {
		t.Fatalf("unexpected job: %+v", job)
	}

	got, ok, err := q.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if !ok || got.Status != StatusQueued || got.StorageKey != job.StorageKey {
		t.Fatalf("unexpected tracked job: ok=%v %+v", ok, got)
	}

	if _, ok, err := q.GetJob(ctx, "missing"); err != nil || ok {
		t.Fatalf("missing job should be (false, nil), got ok=%v err=%v", ok, err)
	}
}

func TestRedisCleanupQueueRejectsEmptyKey(t *testing.T) {
	redisSrv := miniredis.RunT(t)
	q, err := NewRedisCleanupQueue(Config{Addr: redisSrv.Addr(), Stream: "test:cleanup"})
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}
	if _, err := q.Enqueue(context.Background(), "   "); err == nil {
		t.Fatalf("expected error for empty storage key")
	}
}

func TestRedisCleanupQueueRequeueAndAckSuccess(t *testing.T) {
	q, ctx, msgID, jobID, storageKey := newPendingQueueMessage(t)

	if err := q.requeueAndAck(ctx, msgID, jobID, storageKey); err != nil {
		t.Fatalf("requeue and ack: %v", err)
	}

	pending, err := q.client.XPending(ctx, q.stream, q.group).Result()
	if err != nil {
		t.Fatalf("xpending: %v", err)
	}
	if pending.Count != 0 {
		t.Fatalf("expected no pending messages, got %d", pending.Count)
	}

	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: "consumer-2",
		Streams:  []string{q.stream, ">"},
		Count:    1,
		Block:    0,
	}).Result()
	if err != nil {
		t.Fatalf("read requeued message: %v", err)
	}
	if len(streams) != 1 || len(streams[0].Messages) != 1 {
		t.Fatalf("expected one requeued message, got %+v", streams)
	}
	got := streams[0].Messages[0]
	if got.Values["job_id"] != jobID || got.Values["storage_key"] != storageKey {
		t.Fatalf("unexpected requeued payload: %+v", got.Values)
	}
}

func TestRedisCleanupQueueRequeueAndAckFailureKeepsPendingMessage(t *testing.T) {
	q, ctx, msgID, jobID, storageKey := newPendingQueueMessage(t)

	canceledCtx, cancel := context.WithCancel(ctx)
	cancel()
	if err := q.requeueAndAck(canceledCtx, msgID, jobID, storageKey); err == nil {
		t.Fatalf("expected requeueAndAck to fail on canceled context")
	}

	pending, err := q.client.XPending(ctx, q.stream, q.group).Result()
	if err != nil {
		t.Fatalf("xpending: %v", err)
	}
	if pending.Count != 1 {
		t.Fatalf("expected original message to remain pending, got %d", pending.Count)
	}

	streamLen, err := q.client.XLen(ctx, q.stream).Result()
	if err != nil {
		t.Fatalf("xlen: %v", err)
	}
	if streamLen != 1 {
		t.Fatalf("expected no new message in stream on failure, got len=%d", streamLen)
	}
}

func newPendingQueueMessage(t *testing.T) (*RedisCleanupQueue, context.Context, string, string, string) {
	t.Helper()

	redisSrv := miniredis.RunT(t)
	q, err := NewRedisCleanupQueue(Config{
		Addr:       redisSrv.Addr(),
		Stream:     "test:cleanup",
		Group:      "test-group",
		Consumer:   "consumer-1",
		RetryDelay: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}

	ctx := context.Background()
	q.ensureGroup(ctx)

	job, err := q.Enqueue(ctx, "acme-2025/report.pdf")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: "consumer-1",
		Streams:  []string{q.stream, ">"},
		Count:    1,
		Block:    0,
	}).Result()
	if err != nil {
		t.Fatalf("readgroup: %v", err)
	}
	if len(streams) != 1 || len(streams[0].Messages) != 1 {
		t.Fatalf("expected one pending message, got %+v", streams)
	}

	msg := streams[0].Messages[0]
	return q, ctx, msg.ID, job.ID, job.StorageKey
}
