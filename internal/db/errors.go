package db

import (
	"errors"
	"fmt"
)

// Storage errors shared by the repositories.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when a record with the same identity already exists.
	ErrDuplicateKey = errors.New("duplicate key")
)

// StoreError reports a read or write failure against the persistence layer.
// It is fatal to the current refresh run; callers decide retry policy.
type StoreError struct {
	// Op names the failed operation, e.g. "count history" or "update signals".
	Op string
	// Ref identifies the row involved, if any.
	Ref string
	Err error
}

func (e *StoreError) Error() string {
	if e.Ref != "" {
		return fmt.Sprintf("store %s [%s]: %v", e.Op, e.Ref, e.Err)
	}
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// WrapStore wraps err in a StoreError. A nil err yields nil, and an err that
// already is a StoreError is returned unchanged.
func WrapStore(op, ref string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Ref: ref, Err: err}
}

// IsStoreError reports whether err carries a StoreError.
func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}
