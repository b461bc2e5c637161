package jobs

import (
	"errors"
	"fmt"
	"strings"
)

var ErrNotFound = errors.New("not found")

// Error kinds recorded against failed jobs.
const (
	ErrorKindOCREmptyText = "OCR_EMPTY_TEXT"
	ErrorKindStorage      = "STORAGE_ERROR"
	ErrorKindInternal     = "INTERNAL_ERROR"
)

const maxErrorMessageLen = 500

// PipelineError tags a processing failure with the stage-independent
// kind stored on the job row.
type PipelineError struct {
	Kind string
	Err  error
}

func (e *PipelineError) Error() string {
	return e.Kind + ": " + e.Err.Error()
}

func (e *PipelineError) Unwrap() error { return e.Err }

// FailureMessage renders err as the user-visible error_message column,
// truncated so an enormous wrapped error cannot bloat the row.
func FailureMessage(err error) string {
	var pe *PipelineError
	msg := ""
	if errors.As(err, &pe) {
		msg = pe.Error()
	} else {
		msg = fmt.Sprintf("%s: %v", ErrorKindInternal, err)
	}
	msg = strings.TrimSpace(msg)
	if len(msg) > maxErrorMessageLen {
		msg = msg[:maxErrorMessageLen]
	}
	return msg
}
