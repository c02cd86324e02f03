package models

import (
	"errors"
	"fmt"
	"time"
)

// Domain sentinel errors. Callers classify failures with errors.Is; the HTTP
// layer maps each to a status code and error envelope.
var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation failed")
	ErrInvalidState = errors.New("invalid state")
	ErrRateLimited  = errors.New("rate limit exceeded")
	ErrUnauthorized = errors.New("authentication required")
)

// RateLimitError is returned when an enqueue or retry is denied admission.
// It matches ErrRateLimited under errors.Is and carries the denial detail
// the HTTP layer surfaces to the caller.
type RateLimitError struct {
	RetryAfterSeconds int
	ResetAt           time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %ds", e.RetryAfterSeconds)
}

// Is reports a match against ErrRateLimited so callers can use errors.Is
// without knowing the concrete type.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}
