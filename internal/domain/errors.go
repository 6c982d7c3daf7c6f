package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is returned by constructors and aggregate mutations
	// when an input would break an invariant. The receiver is left unchanged.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrCurrencyMismatch is returned when Money values of different currencies are added.
	ErrCurrencyMismatch = errors.New("currency mismatch")

	// ErrPersistence classifies every storage-layer failure surfaced by a repository.
	ErrPersistence = errors.New("persistence error")

	// ErrConcurrencyConflict means the stored order changed after it was loaded.
	ErrConcurrencyConflict = errors.New("order was modified concurrently")
)

// Error carries the field and a readable message for a domain rule violation.
// errors.Is matches it against its Kind.
type Error struct {
	Kind    error
	Field   string
	Message string
}

func (e *Error) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func invalidArgument(field, message string) error {
	return &Error{Kind: ErrInvalidArgument, Field: field, Message: message}
}

// PersistenceError wraps a storage failure. It matches both ErrPersistence
// and the underlying cause, so driver errors stay inspectable with errors.As.
type PersistenceError struct {
	Op  string
	Err error
}

func NewPersistenceError(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() []error {
	return []error{ErrPersistence, e.Err}
}
