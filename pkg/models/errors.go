package models

import (
	"errors"
	"fmt"
)

// ValidationError rejects bad or missing input before any transaction opens.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a reference to a reading or entry that does not exist.
type NotFoundError struct {
	Resource string
	ID       int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Resource, e.ID)
}

func NewNotFoundError(resource string, id int64) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// StorageError wraps a transaction or commit failure from the underlying store.
// The original state is preserved exactly when a StorageError is returned.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func NewStorageError(op string, err error) *StorageError {
	return &StorageError{Op: op, Err: err}
}

// MigrationError carries the name and detail of a failed schema migration. It
// is recorded and logged but does not stop unrelated migrations or boot.
type MigrationError struct {
	Name   string
	Detail string
	Err    error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("migration %q failed: %s", e.Name, e.Detail)
}

func (e *MigrationError) Unwrap() error {
	return e.Err
}

func NewMigrationError(name string, err error) *MigrationError {
	return &MigrationError{Name: name, Detail: err.Error(), Err: err}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nfe *NotFoundError
	return errors.As(err, &nfe)
}
