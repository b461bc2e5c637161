package queue

import (
	"context"
	"time"

	"lumen-backend/internal/shared/metrics"
)

// Memory is an in-process Queue for tests and single-node development.
type Memory struct {
	ch chan string
}

// NewMemory builds an in-memory queue with the standard capacity.
func NewMemory() *Memory {
	return &Memory{ch: make(chan string, MaxQueueSize)}
}

// Push enqueues jobID unless the queue is at capacity.
func (q *Memory) Push(ctx context.Context, jobID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	select {
	case q.ch <- jobID:
		return true, nil
	default:
		metrics.IncQueueRejected()
		return false, nil
	}
}

// Pop blocks up to timeoutSec for the next job ID.
func (q *Memory) Pop(ctx context.Context, timeoutSec int) (string, error) {
	timer := time.NewTimer(time.Duration(timeoutSec) * time.Second)
	defer timer.Stop()
	select {
	case jobID := <-q.ch:
		return jobID, nil
	case <-timer.C:
		return "", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Size reports pending jobs.
func (q *Memory) Size(ctx context.Context) (int64, error) {
	return int64(len(q.ch)), nil
}

var _ Queue = (*Memory)(nil)
