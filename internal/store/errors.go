package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write would violate a uniqueness constraint.
	ErrConflict = errors.New("conflict")
	// ErrInvalidArgument is returned for malformed input such as a bad list range.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrStorageUnavailable wraps any failure reported by the backing engine.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrMalformedRecord is returned when a stored record cannot be decoded.
	ErrMalformedRecord = errors.New("malformed stored record")
)

// Error is the error type returned by every store operation.
// errors.Is matches both Kind and the underlying cause.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("store: %s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("store: %s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(op string, kind, err error) error {
	return &Error{Op: op, Kind: kind, Err: err}
}

func notFound(op, recordID string) error {
	return newError(op, ErrNotFound, fmt.Errorf("record %q", recordID))
}

func invalid(op, message string) error {
	return newError(op, ErrInvalidArgument, errors.New(message))
}

// unavailable wraps a raw engine error unless it already carries a store kind.
func unavailable(op string, err error) error {
	var storeErr *Error
	if errors.As(err, &storeErr) {
		return err
	}
	return newError(op, ErrStorageUnavailable, err)
}
