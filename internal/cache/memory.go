package cache

import (
	"context"
	"sync"
	"time"

	"lumen-backend/internal/explain"
	"lumen-backend/internal/shared/metrics"
)

type memoryEntry struct {
	result    map[string]any
	expiresAt time.Time
}

// Memory is an in-process ResultCache for tests and single-node development.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemory builds an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Get returns the cached result for jobID if it has not expired.
func (c *Memory) Get(ctx context.Context, jobID string) (map[string]any, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[resultKey(jobID)]
	if !ok || c.now().After(entry.expiresAt) {
		delete(c.entries, resultKey(jobID))
		metrics.IncCacheMiss()
		return nil, false, nil
	}
	metrics.IncCacheHit()
	return explain.Sanitize(entry.result), true, nil
}

// Set stores a sanitized copy of result under jobID for ttl.
func (c *Memory) Set(ctx context.Context, jobID string, result map[string]any, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[resultKey(jobID)] = memoryEntry{
		result:    explain.Sanitize(result),
		expiresAt: c.now().Add(ttl),
	}
	return nil
}

var _ ResultCache = (*Memory)(nil)
