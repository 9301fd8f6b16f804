package domain

import "errors"

var (
	// ErrModelNotTraining is returned when a claimed model is missing or already terminal
	ErrModelNotTraining = errors.New("model not found or not in training status")

	// ErrInvalidMessage is returned when a queue message cannot be decoded
	ErrInvalidMessage = errors.New("invalid training message")

	// ErrInvalidDocument is returned when a training document is missing or unreadable
	ErrInvalidDocument = errors.New("invalid training document")

	// ErrMaxRetriesExceeded is returned when a model has exceeded its retry limit
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)

// RetryableError wraps transient errors that should trigger a requeue
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}

// IsRetryable reports whether err wraps a RetryableError.
func IsRetryable(err error) bool {
	var retryableErr *RetryableError
	return errors.As(err, &retryableErr)
}
