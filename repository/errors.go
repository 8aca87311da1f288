package repository

import (
	"errors"
	"fmt"
)

var (
	// ErrNotSoftDeletable is returned by RestoreMany and ForceDeleteMany on
	// stores whose record type does not implement model.SoftDeletable.
	ErrNotSoftDeletable = errors.New("record type does not support soft delete")

	// ErrUnknownColumn is returned when FindBy or Update names a column the
	// model does not have.
	ErrUnknownColumn = errors.New("unknown column")
)

// Error wraps a record-store failure with the operation and namespace it
// happened in.
type Error struct {
	Op        string
	Namespace string
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("repository %s.%s: %v", e.Namespace, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (s *Store[T]) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Namespace: s.namespace, Err: err}
}
