package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"lumen-backend/internal/explain"
	"lumen-backend/internal/shared/metrics"
	"lumen-backend/internal/shared/telemetry"
)

// Redis caches sanitized results as JSON strings with a TTL.
type Redis struct {
	client *redis.Client
}

// NewRedis wraps an existing Redis client as a result cache.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// Get returns the cached result for jobID. Entries are sanitized again on
// the way out so a stale entry written by an older release still conforms
// to the current result shape.
func (c *Redis) Get(ctx context.Context, jobID string) (map[string]any, bool, error) {
	raw, err := c.client.Get(ctx, resultKey(jobID)).Result()
	if errors.Is(err, redis.Nil) {
		metrics.IncCacheMiss()
		return nil, false, nil
	}
	if err != nil {
		metrics.IncCacheMiss()
		return nil, false, err
	}

	var result map[string]any
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		metrics.IncCacheMiss()
		telemetry.Warn("cache.corrupt_entry", map[string]any{
			"job_id": jobID,
			"error":  err.Error(),
		})
		return nil, false, nil
	}
	metrics.IncCacheHit()
	return explain.Sanitize(result), true, nil
}

// Set stores a sanitized copy of result under jobID for ttl.
func (c *Redis) Set(ctx context.Context, jobID string, result map[string]any, ttl time.Duration) error {
	data, err := json.Marshal(explain.Sanitize(result))
	if err != nil {
		return err
	}
	return c.client.SetEx(ctx, resultKey(jobID), data, ttl).Err()
}

var _ ResultCache = (*Redis)(nil)
