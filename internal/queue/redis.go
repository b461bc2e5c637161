package queue

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"lumen-backend/internal/shared/metrics"
	"lumen-backend/internal/shared/telemetry"
)

// Redis is a Queue backed by a Redis list. LPUSH plus BRPOP gives FIFO.
type Redis struct {
	client *redis.Client
	name   string
}

// NewRedis wraps an existing Redis client as a job queue.
func NewRedis(client *redis.Client, name string) *Redis {
	return &Redis{client: client, name: name}
}

// Push enqueues jobID unless the queue is at capacity.
func (q *Redis) Push(ctx context.Context, jobID string) (bool, error) {
	size, err := q.client.LLen(ctx, q.name).Result()
	if err != nil {
		return false, err
	}
	if size >= MaxQueueSize {
		metrics.IncQueueRejected()
		telemetry.Error("queue.full", map[string]any{
			"queue":  q.name,
			"size":   size,
			"job_id": jobID,
		})
		return false, nil
	}

	if err := q.client.LPush(ctx, q.name, jobID).Err(); err != nil {
		return false, err
	}
	telemetry.Info("queue.pushed", map[string]any{
		"queue":  q.name,
		"size":   size + 1,
		"job_id": jobID,
	})
	return true, nil
}

// Pop blocks up to timeoutSec for the next job ID.
func (q *Redis) Pop(ctx context.Context, timeoutSec int) (string, error) {
	result, err := q.client.BRPop(ctx, time.Duration(timeoutSec)*time.Second, q.name).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if len(result) < 2 {
		return "", nil
	}
	return result[1], nil
}

// Size reports pending jobs in the list.
func (q *Redis) Size(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.name).Result()
}

var _ Queue = (*Redis)(nil)
