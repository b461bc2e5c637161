package queue

import "context"

// MaxQueueSize caps pending jobs so a burst of uploads cannot exhaust
// broker memory.
const MaxQueueSize = 1000

// Queue is a FIFO job queue keyed by job ID.
type Queue interface {
	// Push enqueues a job ID. It returns false when the queue is full.
	Push(ctx context.Context, jobID string) (bool, error)
	// Pop blocks up to timeoutSec for the next job ID, returning ""
	// when nothing arrived in time.
	Pop(ctx context.Context, timeoutSec int) (string, error)
	// Size reports the number of pending jobs.
	Size(ctx context.Context) (int64, error)
}
