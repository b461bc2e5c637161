package cache

import (
	"context"
	"time"
)

// ResultCache is a read-through cache for sanitized explanation results.
type ResultCache interface {
	// Get returns the cached result for jobID and whether it was present.
	Get(ctx context.Context, jobID string) (map[string]any, bool, error)
	// Set stores the result under jobID for ttl.
	Set(ctx context.Context, jobID string, result map[string]any, ttl time.Duration) error
}

func resultKey(jobID string) string {
	return "result:" + jobID
}
