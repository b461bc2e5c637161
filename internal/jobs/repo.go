package jobs

import (
	"context"
	"time"
)

// JobsRepo defines persistence operations for jobs.
type JobsRepo interface {
	Create(ctx context.Context, job Job) error
	GetByID(ctx context.Context, id string) (Job, error)
	// UpdateState moves a job to a new status/stage/progress. A nil
	// errorMessage clears any previous failure message.
	UpdateState(ctx context.Context, id, status, stage string, progress int, errorMessage *string) error
	// ListCreatedBefore returns non-expired jobs created before cutoff.
	ListCreatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]Job, error)
	// MarkExpiredBefore flips queued/completed/failed jobs older than
	// cutoff to expired, returning how many rows changed.
	MarkExpiredBefore(ctx context.Context, cutoff time.Time) (int, error)
	// PurgeExpiredBefore deletes expired jobs older than cutoff.
	PurgeExpiredBefore(ctx context.Context, cutoff time.Time) (int, error)
}
