package jobs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"lumen-backend/internal/cache"
	"lumen-backend/internal/catalog"
	"lumen-backend/internal/extract"
	"lumen-backend/internal/parse"
	"lumen-backend/internal/results"
	"lumen-backend/internal/shared/metrics"
	"lumen-backend/internal/shared/telemetry"
)

// TextExtractor pulls text from a stored document.
type TextExtractor interface {
	ExtractText(ctx context.Context, fileKey string) (extract.Result, error)
}

// ResultGenerator turns parsed report data into an explanation result.
// It never fails outright; exhausted retries yield a catalog fallback.
type ResultGenerator interface {
	Generate(ctx context.Context, parsed parse.Parsed) map[string]any
	Provider() string
	Model() string
}

// Processor runs one job through extract -> parse -> explain -> persist.
type Processor struct {
	Jobs      JobsRepo
	Results   results.ResultsRepo
	Catalog   *catalog.Store
	Extractor TextExtractor
	Generator ResultGenerator
	Cache     cache.ResultCache
	CacheTTL  time.Duration

	now func() time.Time
}

// NewProcessor wires a Processor with its collaborators.
func NewProcessor(jobsRepo JobsRepo, resultsRepo results.ResultsRepo, cat *catalog.Store, extractor TextExtractor, generator ResultGenerator, resultCache cache.ResultCache, cacheTTL time.Duration) *Processor {
	return &Processor{
		Jobs:      jobsRepo,
		Results:   resultsRepo,
		Catalog:   cat,
		Extractor: extractor,
		Generator: generator,
		Cache:     resultCache,
		CacheTTL:  cacheTTL,
		now:       time.Now,
	}
}

// Process executes the full pipeline for one job ID. The job row is the
// source of truth for progress; every stage transition is persisted
// before the stage runs so pollers see live state.
func (p *Processor) Process(ctx context.Context, jobID string) error {
	job, err := p.Jobs.GetByID(ctx, jobID)
	if err != nil {
		telemetry.Error("job.load_failed", map[string]any{
			"job_id": jobID,
			"error":  err.Error(),
		})
		return err
	}
	if job.Status != StatusQueued {
		telemetry.Warn("job.skip_not_queued", map[string]any{
			"job_id": jobID,
			"status": job.Status,
		})
		return nil
	}

	metrics.IncJobStarted()
	started := p.now()
	telemetry.Info("job.started", map[string]any{
		"job_id":    jobID,
		"file_path": job.FilePath,
	})

	result, perr := p.run(ctx, job)
	if perr != nil {
		return p.fail(ctx, jobID, started, perr)
	}

	elapsed := p.now().Sub(started)
	metrics.IncJobCompleted()
	metrics.ObserveJobDurationMs(float64(elapsed.Milliseconds()))
	telemetry.Info("job.completed", map[string]any{
		"job_id":      jobID,
		"duration_ms": elapsed.Milliseconds(),
		"confidence":  result["confidence_score"],
	})
	return nil
}

func (p *Processor) run(ctx context.Context, job Job) (map[string]any, error) {
	started := p.now()

	if err := p.transition(ctx, job.ID, StageExtracting); err != nil {
		return nil, err
	}
	extracted, err := p.Extractor.ExtractText(ctx, job.FilePath)
	if err != nil {
		return nil, &PipelineError{Kind: ErrorKindStorage, Err: err}
	}
	if strings.TrimSpace(extracted.Text) == "" {
		return nil, &PipelineError{
			Kind: ErrorKindOCREmptyText,
			Err:  fmt.Errorf("no text could be extracted from the document"),
		}
	}

	if err := p.transition(ctx, job.ID, StageParsing); err != nil {
		return nil, err
	}
	snap := p.Catalog.Snapshot()
	parsed := parse.NewParser(snap).Parse(extracted.Text)
	telemetry.Info("job.parsed", map[string]any{
		"job_id":    job.ID,
		"tests":     len(parsed.Tests),
		"medicines": len(parsed.Medicines),
	})

	if err := p.transition(ctx, job.ID, StageGenerating); err != nil {
		return nil, err
	}
	result := p.Generator.Generate(ctx, parsed)

	if err := p.transition(ctx, job.ID, StageFinalizing); err != nil {
		return nil, err
	}
	elapsed := p.now().Sub(started)
	result["job_id"] = job.ID
	result["status"] = StatusCompleted
	attachMetadata(result, elapsed, extracted.Method, p.Generator.Provider(), p.Generator.Model())

	rec := results.Record{
		JobID:            job.ID,
		Result:           result,
		Confidence:       confidenceOf(result),
		ProcessingTimeMS: elapsed.Milliseconds(),
		LLMProvider:      p.Generator.Provider(),
		Model:            p.Generator.Model(),
		Cached:           false,
		CreatedAt:        p.now().UTC(),
	}
	// The durable row must exist before the job reads completed, so a
	// cache eviction can never lose the result.
	if err := p.Results.Insert(ctx, rec); err != nil {
		return nil, &PipelineError{Kind: ErrorKindStorage, Err: err}
	}

	if p.Cache != nil {
		if err := p.Cache.Set(ctx, job.ID, result, p.CacheTTL); err != nil {
			telemetry.Warn("cache.set_failed", map[string]any{
				"job_id": job.ID,
				"error":  err.Error(),
			})
		}
	}

	if err := p.Jobs.UpdateState(ctx, job.ID, StatusCompleted, StageDone, ProgressByStage[StageDone], nil); err != nil {
		return nil, &PipelineError{Kind: ErrorKindStorage, Err: err}
	}
	return result, nil
}

func (p *Processor) transition(ctx context.Context, jobID, stage string) error {
	if err := p.Jobs.UpdateState(ctx, jobID, StatusProcessing, stage, ProgressByStage[stage], nil); err != nil {
		return &PipelineError{Kind: ErrorKindStorage, Err: err}
	}
	telemetry.Info("job.stage", map[string]any{
		"job_id": jobID,
		"stage":  stage,
	})
	return nil
}

func (p *Processor) fail(ctx context.Context, jobID string, started time.Time, perr error) error {
	metrics.IncJobFailed()
	msg := FailureMessage(perr)
	telemetry.Error("job.failed", map[string]any{
		"job_id":      jobID,
		"error":       msg,
		"duration_ms": p.now().Sub(started).Milliseconds(),
	})
	if err := p.Jobs.UpdateState(ctx, jobID, StatusFailed, StageFailed, ProgressByStage[StageFailed], &msg); err != nil {
		telemetry.Error("job.fail_state_update_failed", map[string]any{
			"job_id": jobID,
			"error":  err.Error(),
		})
	}
	return perr
}

// attachMetadata stamps processing facts onto the result document.
func attachMetadata(result map[string]any, elapsed time.Duration, ocrMethod, provider, model string) {
	meta, _ := result["metadata"].(map[string]any)
	if meta == nil {
		meta = map[string]any{}
	}
	meta["processing_time_sec"] = int(elapsed.Seconds())
	meta["ocr_engine"] = ocrMethod
	meta["llm_provider"] = provider
	meta["model"] = model
	meta["cached"] = false
	result["metadata"] = meta
}

func confidenceOf(result map[string]any) float64 {
	switch v := result["confidence_score"].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}
