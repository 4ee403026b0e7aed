package ingest

import (
	"errors"
	"fmt"
)

// ScopeError reports a missing or malformed tenant/branch pair.
type ScopeError struct {
	Field string
}

func (e *ScopeError) Error() string {
	return fmt.Sprintf("%s is required", e.Field)
}

// IdentityError reports client-supplied identity fields that cannot be used.
type IdentityError struct {
	Field  string
	Reason string
}

func (e *IdentityError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// ValidationError carries the human readable reason of the first failed check.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// PersistenceError wraps a storage failure. Its message is never shown to clients.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("ingest: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

var (
	// ErrRecordNotFound is returned by review transitions on an unknown globalId.
	ErrRecordNotFound = errors.New("record not found")
	// ErrReviewConflict is returned when a transition contradicts the current review state.
	ErrReviewConflict = errors.New("record review state does not allow this transition")
)

// IsClientError reports whether err should be answered with a 400.
func IsClientError(err error) bool {
	var scopeErr *ScopeError
	var identityErr *IdentityError
	var validationErr *ValidationError
	return errors.As(err, &scopeErr) || errors.As(err, &identityErr) || errors.As(err, &validationErr)
}
