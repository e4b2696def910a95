package recruiting

import (
	"errors"
	"fmt"

	"github.com/Sternrassler/ashby-resumes/pkg/client"
)

// Caller input errors, rejected before any upstream call.
var (
	ErrMissingJobID  = errors.New("job id is required")
	ErrNoFileHandles = errors.New("no file handles provided")
	ErrNoFileURL     = errors.New("file has no download url")
)

var inputMessages = map[error]string{
	ErrMissingJobID:  "Job ID is required",
	ErrNoFileHandles: "No file handles provided",
	ErrNoFileURL:     "No file URL available",
}

// OpError is a failed operation with the message shown to callers.
type OpError struct {
	Op      string
	Message string
	Err     error
}

func (e *OpError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// IsInputError reports whether err was caused by invalid caller input.
func IsInputError(err error) bool {
	for sentinel := range inputMessages {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// Message returns the caller-facing text for err.
func Message(err error) string {
	var opErr *OpError
	if errors.As(err, &opErr) && opErr.Message != "" {
		return opErr.Message
	}
	for sentinel, msg := range inputMessages {
		if errors.Is(err, sentinel) {
			return msg
		}
	}
	return client.Message(err)
}
