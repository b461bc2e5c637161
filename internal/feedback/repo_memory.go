package feedback

import (
	"context"
	"sync"
)

// MemoryRepo is an in-memory implementation of FeedbackRepo.
type MemoryRepo struct {
	mu   sync.RWMutex
	data map[string][]Feedback
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{data: make(map[string][]Feedback)}
}

// Create stores a feedback entry.
func (r *MemoryRepo) Create(ctx context.Context, fb Feedback) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[fb.JobID] = append(r.data[fb.JobID], fb)
	return nil
}

// ListByJobID returns feedback for a job in insertion order.
func (r *MemoryRepo) ListByJobID(ctx context.Context, jobID string) ([]Feedback, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := r.data[jobID]
	out := make([]Feedback, len(entries))
	copy(out, entries)
	return out, nil
}

var _ FeedbackRepo = (*MemoryRepo)(nil)
