package lifecycle

import (
	"context"
	"time"

	"lumen-backend/internal/jobs"
	"lumen-backend/internal/shared/storage/object"
	"lumen-backend/internal/shared/telemetry"
)

const listBatchSize = 500

// Cleaner expires old jobs and removes their uploaded files. Expired
// rows are kept for one extra retention window so pollers see a Gone
// response instead of a 404, then purged.
type Cleaner struct {
	Jobs      jobs.JobsRepo
	Store     object.ObjectStore
	Retention time.Duration

	now func() time.Time
}

// NewCleaner wires a Cleaner. retention is how long a job stays
// readable after creation.
func NewCleaner(jobsRepo jobs.JobsRepo, store object.ObjectStore, retention time.Duration) *Cleaner {
	return &Cleaner{
		Jobs:      jobsRepo,
		Store:     store,
		Retention: retention,
		now:       time.Now,
	}
}

// Run performs one cleanup sweep.
func (c *Cleaner) Run(ctx context.Context) error {
	cutoff := c.now().UTC().Add(-c.Retention)

	aged, err := c.Jobs.ListCreatedBefore(ctx, cutoff, listBatchSize)
	if err != nil {
		return err
	}
	removed := 0
	for _, job := range aged {
		if job.FilePath == "" {
			continue
		}
		if err := c.Store.Delete(ctx, job.FilePath); err != nil {
			telemetry.Warn("cleanup.delete_file_failed", map[string]any{
				"job_id": job.ID,
				"path":   job.FilePath,
				"error":  err.Error(),
			})
			continue
		}
		removed++
	}

	expired, err := c.Jobs.MarkExpiredBefore(ctx, cutoff)
	if err != nil {
		return err
	}

	purgeCutoff := cutoff.Add(-c.Retention)
	purged, err := c.Jobs.PurgeExpiredBefore(ctx, purgeCutoff)
	if err != nil {
		return err
	}

	telemetry.Info("cleanup.sweep", map[string]any{
		"files_removed": removed,
		"jobs_expired":  expired,
		"jobs_purged":   purged,
	})
	return nil
}

// RunLoop runs cleanup sweeps on a fixed interval until ctx is done.
// One sweep runs immediately on start.
func (c *Cleaner) RunLoop(ctx context.Context, interval time.Duration) {
	if err := c.Run(ctx); err != nil {
		telemetry.Error("cleanup.sweep_failed", map[string]any{"error": err.Error()})
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Run(ctx); err != nil {
				telemetry.Error("cleanup.sweep_failed", map[string]any{"error": err.Error()})
			}
		}
	}
}
