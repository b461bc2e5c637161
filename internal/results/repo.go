package results

import "context"

// ResultsRepo defines persistence operations for explanation results.
type ResultsRepo interface {
	// Insert stores the result for a job, replacing any earlier row for
	// the same job ID.
	Insert(ctx context.Context, rec Record) error
	GetByJobID(ctx context.Context, jobID string) (Record, error)
}
