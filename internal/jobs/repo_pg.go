package jobs

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PGRepo implements JobsRepo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// Create inserts a new job row.
func (r *PGRepo) Create(ctx context.Context, job Job) error {
	const query = `
INSERT INTO jobs (
    id,
    file_path,
    locale,
    context,
    status,
    stage,
    progress,
    error_message,
    created_at,
    updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	var errorMessage sql.NullString
	if job.ErrorMessage != nil {
		errorMessage = sql.NullString{String: *job.ErrorMessage, Valid: true}
	}

	_, err := r.DB.ExecContext(
		ctx,
		query,
		job.ID,
		job.FilePath,
		job.Locale,
		job.Context,
		job.Status,
		job.Stage,
		job.Progress,
		errorMessage,
		job.CreatedAt,
		job.UpdatedAt,
	)
	return err
}

// GetByID fetches a job by ID.
func (r *PGRepo) GetByID(ctx context.Context, id string) (Job, error) {
	const query = `
SELECT id, file_path, locale, context, status, stage, progress, error_message, created_at, updated_at
FROM jobs
WHERE id = $1`

	var job Job
	var errorMessage sql.NullString
	err := r.DB.QueryRowContext(ctx, query, id).Scan(
		&job.ID,
		&job.FilePath,
		&job.Locale,
		&job.Context,
		&job.Status,
		&job.Stage,
		&job.Progress,
		&errorMessage,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Job{}, ErrNotFound
		}
		return Job{}, err
	}
	if errorMessage.Valid {
		job.ErrorMessage = &errorMessage.String
	}
	return job, nil
}

// UpdateState moves a job to a new status/stage/progress.
func (r *PGRepo) UpdateState(ctx context.Context, id, status, stage string, progress int, errorMessage *string) error {
	const query = `
UPDATE jobs
SET status = $1, stage = $2, progress = $3, error_message = $4, updated_at = $5
WHERE id = $6`

	var msg sql.NullString
	if errorMessage != nil {
		msg = sql.NullString{String: *errorMessage, Valid: true}
	}

	res, err := r.DB.ExecContext(ctx, query, status, stage, progress, msg, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListCreatedBefore returns non-expired jobs created before cutoff,
// oldest first.
func (r *PGRepo) ListCreatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `
SELECT id, file_path, locale, context, status, stage, progress, error_message, created_at, updated_at
FROM jobs
WHERE status <> 'expired' AND created_at < $1
ORDER BY created_at ASC
LIMIT $2`

	rows, err := r.DB.QueryContext(ctx, query, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		var job Job
		var errorMessage sql.NullString
		if err := rows.Scan(
			&job.ID,
			&job.FilePath,
			&job.Locale,
			&job.Context,
			&job.Status,
			&job.Stage,
			&job.Progress,
			&errorMessage,
			&job.CreatedAt,
			&job.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if errorMessage.Valid {
			job.ErrorMessage = &errorMessage.String
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// MarkExpiredBefore flips old non-running jobs to expired.
func (r *PGRepo) MarkExpiredBefore(ctx context.Context, cutoff time.Time) (int, error) {
	const query = `
UPDATE jobs
SET status = 'expired', updated_at = $1
WHERE created_at < $2 AND status NOT IN ('expired', 'processing')`

	res, err := r.DB.ExecContext(ctx, query, time.Now().UTC(), cutoff)
	if err != nil {
		return 0, err
	}
	changed, _ := res.RowsAffected()
	return int(changed), nil
}

// PurgeExpiredBefore deletes expired jobs older than cutoff. Result and
// feedback rows go with them via ON DELETE CASCADE.
func (r *PGRepo) PurgeExpiredBefore(ctx context.Context, cutoff time.Time) (int, error) {
	const query = `
DELETE FROM jobs
WHERE status = 'expired' AND created_at < $1`

	res, err := r.DB.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	deleted, _ := res.RowsAffected()
	return int(deleted), nil
}

var _ JobsRepo = (*PGRepo)(nil)
