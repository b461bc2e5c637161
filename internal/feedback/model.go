package feedback

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

// Feedback is one user rating of a generated explanation.
type Feedback struct {
	ID        string
	JobID     string
	Rating    int
	Comment   string
	CreatedAt time.Time
}
