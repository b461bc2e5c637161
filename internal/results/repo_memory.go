package results

import (
	"context"
	"sync"
)

// MemoryRepo is an in-memory implementation of ResultsRepo.
type MemoryRepo struct {
	mu   sync.RWMutex
	data map[string]Record
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{data: make(map[string]Record)}
}

// Insert stores the result for a job, replacing any earlier record.
func (r *MemoryRepo) Insert(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[rec.JobID] = rec
	return nil
}

// GetByJobID fetches the result for a job.
func (r *MemoryRepo) GetByJobID(ctx context.Context, jobID string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.data[jobID]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

var _ ResultsRepo = (*MemoryRepo)(nil)
