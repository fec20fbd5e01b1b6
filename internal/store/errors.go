// Package store persists documents and workflow instances and defines the
// error taxonomy shared by the lifecycle manager, workflow engine and reaper.
package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested document or workflow instance does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition indicates a status transition was attempted from a
	// state the state machine does not allow. Raced or repeated transitions
	// surface as this error, never as silent success.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrUnknownWorkflowType indicates no workflow definition is registered
	// under the requested name.
	ErrUnknownWorkflowType = errors.New("unknown workflow type")

	// ErrActiveWorkflowExists indicates a document already has a running
	// workflow instance.
	ErrActiveWorkflowExists = errors.New("document already has an active workflow")

	// ErrConcurrentUpdate indicates a write lost a race: the row changed
	// after the caller read it. The caller must re-read before retrying.
	ErrConcurrentUpdate = errors.New("instance modified concurrently")
)

// StorageError wraps an infrastructure failure from the backing database.
// Callers must not assume partial writes are visible.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

// IsStorageError reports whether err is an infrastructure failure rather
// than a domain error.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
