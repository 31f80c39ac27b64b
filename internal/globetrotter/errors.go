package globetrotter

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for unknown challenge or destination ids.
	ErrNotFound = errors.New("not found")
	// ErrValidation marks missing or invalid input.
	ErrValidation = errors.New("validation failed")
	// ErrConflict marks a request that is valid but not allowed in the
	// challenge's current state.
	ErrConflict = errors.New("conflict")
	// ErrUpstream marks a failure of the persistence service.
	ErrUpstream = errors.New("upstream store failure")
)

// Invalid returns an error wrapping ErrValidation.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Conflict returns an error wrapping ErrConflict.
func Conflict(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// UpstreamError wraps a persistence failure. It matches both ErrUpstream and
// the underlying cause with errors.Is.
type UpstreamError struct {
	Op  string
	Err error
}

func Upstream(op string, err error) error {
	if err == nil {
		return nil
	}
	return &UpstreamError{Op: op, Err: err}
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() []error {
	return []error{ErrUpstream, e.Err}
}
