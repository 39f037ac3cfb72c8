package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an operation targets an item that is
	// no longer in its collection (or a survey/submission that does not exist).
	ErrNotFound = errors.New("not found")
	// ErrValidation marks a malformed input to a model operation,
	// e.g. adding an option to a non-select field.
	ErrValidation = errors.New("validation failed")
	// ErrAuthExpired signals that a call was rejected with expired
	// credentials; callers refresh and retry the call exactly once.
	ErrAuthExpired = errors.New("authorization expired")
	// ErrVersionConflict is returned when an update carries a stale
	// survey version (optimistic lock failure).
	ErrVersionConflict = errors.New("survey version conflict")
	// ErrAlreadySubmitted rejects a second submission from the same
	// client for the same survey.
	ErrAlreadySubmitted = errors.New("already submitted")
)

// Validationf wraps ErrValidation with a formatted message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}

// ParseError records malformed structured option text. It carries the raw
// input so editors can re-display it; it is never stored in place of the
// parsed options themselves.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse options: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// RemoteError is any non-success response from an external call.
type RemoteError struct {
	Status  int
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote call failed (%d): %s", e.Status, e.Message)
}
