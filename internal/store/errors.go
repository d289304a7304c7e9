package store

import (
	"errors"
	"fmt"
)

// Error is the single error kind surfaced by the store and by everything
// built on it. Callers cannot recover differently per SQL failure mode, so
// the underlying cause is kept only for its message and for errors.Is.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("storage error (%s): %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsStorageError reports whether err is (or wraps) a storage error
func IsStorageError(err error) bool {
	var se *Error
	return errors.As(err, &se)
}

// wrapErr converts err into a storage error unless it already is one
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return &Error{Op: op, Err: err}
}

// Errorf builds a storage error for failures detected above the SQL layer,
// such as a broken invariant in stored data.
func Errorf(op, format string, args ...interface{}) error {
	return &Error{Op: op, Err: fmt.Errorf(format, args...)}
}
