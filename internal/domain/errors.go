package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrAPIFailure signals a non-recoverable provider error (auth, bad request).
	ErrAPIFailure = errors.New("provider API failure")
	// ErrRetriesExhausted signals that rate-limit/timeout retries ran out.
	ErrRetriesExhausted = errors.New("retries exhausted")
	// ErrIndexUnavailable signals an unreachable destination index.
	ErrIndexUnavailable = errors.New("index unavailable")
	// ErrCheckpointCorrupt signals an unreadable persisted checkpoint.
	ErrCheckpointCorrupt = errors.New("checkpoint corrupt")
)

// APIError wraps ErrAPIFailure with the HTTP status and response body for
// diagnostics. Never retried.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", ErrAPIFailure.Error(), e.Status, e.Body)
}

func (e *APIError) Unwrap() error { return ErrAPIFailure }

// NewAPIError creates a non-retryable provider API error.
func NewAPIError(status int, body string) error {
	return &APIError{Status: status, Body: body}
}
