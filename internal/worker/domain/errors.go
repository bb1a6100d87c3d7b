package domain

import "errors"

// ErrInvalidEvent is returned when a message body is not a valid step event
var ErrInvalidEvent = errors.New("invalid step event")

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

// NewRetryableError wraps err so the message is requeued
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}
