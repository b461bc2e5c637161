package jobs

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory implementation of JobsRepo.
type MemoryRepo struct {
	mu   sync.RWMutex
	data map[string]Job
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{data: make(map[string]Job)}
}

// Create stores a new job.
func (r *MemoryRepo) Create(ctx context.Context, job Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[job.ID] = job
	return nil
}

// GetByID returns a job by ID.
func (r *MemoryRepo) GetByID(ctx context.Context, id string) (Job, error) {
	if err := ctx.Err(); err != nil {
		return Job{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.data[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	return job, nil
}

// UpdateState moves a job to a new status/stage/progress.
func (r *MemoryRepo) UpdateState(ctx context.Context, id, status, stage string, progress int, errorMessage *string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.data[id]
	if !ok {
		return ErrNotFound
	}
	job.Status = status
	job.Stage = stage
	job.Progress = progress
	job.ErrorMessage = errorMessage
	job.UpdatedAt = time.Now().UTC()
	r.data[id] = job
	return nil
}

// ListCreatedBefore returns non-expired jobs created before cutoff,
// oldest first.
func (r *MemoryRepo) ListCreatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Job
	for _, job := range r.data {
		if job.Status != StatusExpired && job.CreatedAt.Before(cutoff) {
			out = append(out, job)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MarkExpiredBefore flips old terminal/queued jobs to expired.
func (r *MemoryRepo) MarkExpiredBefore(ctx context.Context, cutoff time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	changed := 0
	for id, job := range r.data {
		if job.Status == StatusExpired || job.Status == StatusProcessing {
			continue
		}
		if job.CreatedAt.Before(cutoff) {
			job.Status = StatusExpired
			job.UpdatedAt = time.Now().UTC()
			r.data[id] = job
			changed++
		}
	}
	return changed, nil
}

// PurgeExpiredBefore deletes expired jobs older than cutoff.
func (r *MemoryRepo) PurgeExpiredBefore(ctx context.Context, cutoff time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	deleted := 0
	for id, job := range r.data {
		if job.Status == StatusExpired && job.CreatedAt.Before(cutoff) {
			delete(r.data, id)
			deleted++
		}
	}
	return deleted, nil
}

var _ JobsRepo = (*MemoryRepo)(nil)
