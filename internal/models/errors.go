package models

import (
	"errors"
	"fmt"
)

// Business-rule errors returned by the lifecycle engine. Callers are expected
// to match them with errors.Is and translate them into user-facing replies;
// anything else coming out of the engine is a store failure.
var (
	// ErrNotFound means the referenced pool, participant or user does not
	// exist, or a join code points to a closed pool
	ErrNotFound = errors.New("not found")

	// ErrForbidden means the caller is not the pool owner for an
	// owner-gated operation
	ErrForbidden = errors.New("forbidden")

	// ErrPoolClosed means a join or payment-state mutation was attempted
	// against a closed pool
	ErrPoolClosed = errors.New("pool is closed")

	// ErrPoolOpen means deletion was attempted against an open pool
	ErrPoolOpen = errors.New("pool is still open")
)

// ValidationError reports malformed input, caught before any store mutation
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError for the given field
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidationError reports whether err is (or wraps) a ValidationError
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
