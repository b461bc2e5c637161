package results

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// PGRepo implements ResultsRepo using Postgres. The result document is
// stored as JSONB.
type PGRepo struct {
	DB *sql.DB
}

// Insert stores the result for a job. Re-processing the same job
// overwrites the previous row.
func (r *PGRepo) Insert(ctx context.Context, rec Record) error {
	const query = `
INSERT INTO results (
    job_id,
    result,
    confidence,
    processing_time_ms,
    llm_provider,
    llm_model,
    cached,
    created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (job_id) DO UPDATE SET
    result = EXCLUDED.result,
    confidence = EXCLUDED.confidence,
    processing_time_ms = EXCLUDED.processing_time_ms,
    llm_provider = EXCLUDED.llm_provider,
    llm_model = EXCLUDED.llm_model,
    cached = EXCLUDED.cached,
    created_at = EXCLUDED.created_at`

	data, err := json.Marshal(rec.Result)
	if err != nil {
		return err
	}

	_, err = r.DB.ExecContext(
		ctx,
		query,
		rec.JobID,
		data,
		rec.Confidence,
		rec.ProcessingTimeMS,
		rec.LLMProvider,
		rec.Model,
		rec.Cached,
		rec.CreatedAt,
	)
	return err
}

// GetByJobID fetches the result for a job.
func (r *PGRepo) GetByJobID(ctx context.Context, jobID string) (Record, error) {
	const query = `
SELECT job_id, result, confidence, processing_time_ms, llm_provider, llm_model, cached, created_at
FROM results
WHERE job_id = $1`

	var rec Record
	var data []byte
	err := r.DB.QueryRowContext(ctx, query, jobID).Scan(
		&rec.JobID,
		&data,
		&rec.Confidence,
		&rec.ProcessingTimeMS,
		&rec.LLMProvider,
		&rec.Model,
		&rec.Cached,
		&rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	if err := json.Unmarshal(data, &rec.Result); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return rec, nil
}

var _ ResultsRepo = (*PGRepo)(nil)
