package results

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPGRepoInsertUpsertsByJobID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}
	rec := Record{
		JobID:            "job_abc123",
		Result:           map[string]any{"overall_summary": "All values within range."},
		Confidence:       0.92,
		ProcessingTimeMS: 31500,
		LLMProvider:      "openai",
		Model:            "gpt-4o-mini",
		CreatedAt:        time.Now().UTC(),
	}

	mock.ExpectExec("INSERT INTO results").
		WithArgs(
			rec.JobID,
			sqlmock.AnyArg(), // result JSONB
			rec.Confidence,
			rec.ProcessingTimeMS,
			rec.LLMProvider,
			rec.Model,
			rec.Cached,
			sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.Insert(context.Background(), rec); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoGetByJobIDDecodesResult(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}
	created := time.Now().UTC().Truncate(time.Second)

	rows := sqlmock.NewRows([]string{
		"job_id", "result", "confidence", "processing_time_ms", "llm_provider", "llm_model", "cached", "created_at",
	}).AddRow(
		"job_abc123",
		[]byte(`{"overall_summary":"Most values look fine.","confidence_score":0.92}`),
		0.92,
		31500,
		"openai",
		"gpt-4o-mini",
		false,
		created,
	)
	mock.ExpectQuery("SELECT job_id, result, confidence").
		WithArgs("job_abc123").
		WillReturnRows(rows)

	rec, err := repo.GetByJobID(context.Background(), "job_abc123")
	if err != nil {
		t.Fatalf("GetByJobID: %v", err)
	}
	if rec.Result["overall_summary"] != "Most values look fine." {
		t.Fatalf("result = %v", rec.Result)
	}
	if rec.LLMProvider != "openai" || rec.Model != "gpt-4o-mini" {
		t.Fatalf("provider/model = %q/%q", rec.LLMProvider, rec.Model)
	}
}

func TestPGRepoGetByJobIDCorruptJSON(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}
	rows := sqlmock.NewRows([]string{
		"job_id", "result", "confidence", "processing_time_ms", "llm_provider", "llm_model", "cached", "created_at",
	}).AddRow(
		"job_abc123",
		[]byte(`{"overall_summary": truncated`),
		0.92,
		31500,
		"openai",
		"gpt-4o-mini",
		false,
		time.Now().UTC(),
	)
	mock.ExpectQuery("SELECT job_id, result, confidence").
		WithArgs("job_abc123").
		WillReturnRows(rows)

	if _, err := repo.GetByJobID(context.Background(), "job_abc123"); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("err = %v, want ErrCorrupt", err)
	}
}

func TestPGRepoGetByJobIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}
	mock.ExpectQuery("SELECT job_id, result, confidence").
		WithArgs("job_missing").
		WillReturnRows(sqlmock.NewRows([]string{"job_id"}))

	if _, err := repo.GetByJobID(context.Background(), "job_missing"); err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
