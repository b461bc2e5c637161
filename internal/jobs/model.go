package jobs

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Job statuses follow the lifecycle queued -> processing -> completed,
// with failed and expired as terminal branches.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusExpired    = "expired"
)

// Job is one uploaded report moving through the explanation pipeline.
type Job struct {
	ID           string
	FilePath     string
	Locale       string
	Context      string
	Status       string
	Stage        string
	Progress     int
	ErrorMessage *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewJobID returns a short opaque job identifier.
func NewJobID() string {
	return "job_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
}
