package feedback

import "context"

// FeedbackRepo defines persistence operations for feedback.
type FeedbackRepo interface {
	Create(ctx context.Context, fb Feedback) error
	ListByJobID(ctx context.Context, jobID string) ([]Feedback, error)
}
