package feedback

import (
	"context"
	"database/sql"
)

// PGRepo implements FeedbackRepo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// Create inserts a feedback row.
func (r *PGRepo) Create(ctx context.Context, fb Feedback) error {
	const query = `
INSERT INTO feedback (id, job_id, rating, comment, created_at)
VALUES ($1, $2, $3, $4, $5)`

	_, err := r.DB.ExecContext(ctx, query, fb.ID, fb.JobID, fb.Rating, fb.Comment, fb.CreatedAt)
	return err
}

// ListByJobID returns feedback for a job, oldest first.
func (r *PGRepo) ListByJobID(ctx context.Context, jobID string) ([]Feedback, error) {
	const query = `
SELECT id, job_id, rating, comment, created_at
FROM feedback
WHERE job_id = $1
ORDER BY created_at ASC`

	rows, err := r.DB.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Feedback
	for rows.Next() {
		var fb Feedback
		if err := rows.Scan(&fb.ID, &fb.JobID, &fb.Rating, &fb.Comment, &fb.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, fb)
	}
	return out, rows.Err()
}

var _ FeedbackRepo = (*PGRepo)(nil)
