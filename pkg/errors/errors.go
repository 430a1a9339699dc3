package huddle_errors

import (
	"errors"
	"time"
)

// Error taxonomy for the upload core. Validation-class errors are
// deterministic and returned to the caller as-is; infrastructure-class
// errors are retryable.
var (
	ErrSessionNotFound      = errors.New("upload session not found")
	ErrInvalidChunkSequence = errors.New("chunk index does not match expected next index")
	ErrInvalidState         = errors.New("upload session is in a terminal state")
	ErrConflict             = errors.New("conflict")
	ErrAlreadyExists        = errors.New("already exists")
	ErrInvalidInput         = errors.New("invalid input")
	ErrTooLarge             = errors.New("chunk exceeds remaining session size")
	ErrStorageFailure       = errors.New("chunk storage unavailable")
	ErrFinalizeFailed       = errors.New("upload finalize failed")
	ErrUnauthorized         = errors.New("unauthorized")
)

// NowPtr returns a pointer to current time
func NowPtr() *time.Time {
	now := time.Now()
	return &now
}
