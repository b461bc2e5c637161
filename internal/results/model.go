package results

import (
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrCorrupt reports a stored result whose JSON no longer decodes.
	ErrCorrupt = errors.New("stored result is corrupt")
)

// Record is the durable copy of one job's explanation result.
type Record struct {
	JobID            string
	Result           map[string]any
	Confidence       float64
	ProcessingTimeMS int64
	LLMProvider      string
	Model            string
	Cached           bool
	CreatedAt        time.Time
}
