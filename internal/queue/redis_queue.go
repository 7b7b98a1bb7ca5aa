// Package queue carries background access-check work from the request path
// to the worker pool, so the HTTP response can return immediately while the
// ESP lookup happens off-thread.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// CheckJob is one unit of background access-check work
type CheckJob struct {
	ID             string `json:"id"`
	AccessRecordID string `json:"access_record_id"`
	TenantID       string `json:"tenant_id"`
	RequiredTagID  string `json:"required_tag_id"`
}

// RedisCheckQueue is a redis-list-backed job queue. Jobs are pushed by the
// access cache on a stale hit and popped by the worker pool; terminal state
// lives in the access record, not the queue, so a lost job only delays the
// next check.
type RedisCheckQueue struct {
	client *redis.Client
	key    string
	block  time.Duration
}

// NewRedisCheckQueue creates a queue on the given redis list key
func NewRedisCheckQueue(client *redis.Client, key string) *RedisCheckQueue {
	return &RedisCheckQueue{
		client: client,
		key:    key,
		block:  2 * time.Second,
	}
}

// Enqueue pushes a check job, assigning a job ID when the caller left it
// empty. The ID exists for log correlation between enqueue and worker.
func (q *RedisCheckQueue) Enqueue(ctx context.Context, job CheckJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode check job: %w", err)
	}

	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("failed to enqueue check job: %w", err)
	}

	return nil
}

// Dequeue blocks briefly for the next job. Returns (nil, nil) when the
// queue stayed empty for the whole block window, so worker loops can check
// for shutdown between waits.
func (q *RedisCheckQueue) Dequeue(ctx context.Context) (*CheckJob, error) {
	res, err := q.client.BRPop(ctx, q.block, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue check job: %w", err)
	}

	// BRPop returns [key, value]
	if len(res) != 2 {
		return nil, fmt.Errorf("unexpected BRPOP reply of length %d", len(res))
	}

	var job CheckJob
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return nil, fmt.Errorf("failed to decode check job: %w", err)
	}

	return &job, nil
}

// Len returns the number of queued jobs
func (q *RedisCheckQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read queue length: %w", err)
	}
	return n, nil
}
