package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a record does not exist, or exists but is
	// not visible to the caller.
	ErrNotFound = errors.New("not found")
	// ErrForbidden is returned when the caller does not own the record.
	ErrForbidden = errors.New("not authorized")
	// ErrInvalid is returned for malformed input. No state is changed.
	ErrInvalid = errors.New("invalid input")
)

// StorageError wraps a failure of the underlying database. It is fatal for
// the operation that produced it.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

// IsStorage reports whether err carries a StorageError.
func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
