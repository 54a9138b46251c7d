// Package persistence provides standardized error types shared by all
// storage backends.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations must use.
var (
	// ErrFlowNotFound indicates a flow was not found by the given identifier.
	ErrFlowNotFound = errors.New("flow not found")

	// ErrVersionNotFound indicates a flow version was not found.
	ErrVersionNotFound = errors.New("flow version not found")

	// ErrRunNotFound indicates a run was not found by the given identifier.
	ErrRunNotFound = errors.New("run not found")

	// ErrEntityNotFound indicates an entity was not found.
	ErrEntityNotFound = errors.New("entity not found")

	// ErrWebhookConfigNotFound indicates no webhook config exists for a key.
	ErrWebhookConfigNotFound = errors.New("webhook config not found")

	// ErrVersionAlreadyExists indicates an attempt to overwrite an immutable
	// version snapshot.
	ErrVersionAlreadyExists = errors.New("flow version already exists")

	// ErrRunConcurrentUpdate indicates a conditional run update lost the race
	// against another writer; the caller must re-read and retry.
	ErrRunConcurrentUpdate = errors.New("run was updated concurrently")

	// ErrRunAlreadyCompleted indicates the run's completion marker was
	// already set by an earlier writer.
	ErrRunAlreadyCompleted = errors.New("run already marked completed")
)

// RunError wraps run-related storage errors with operation context.
type RunError struct {
	Op    string
	RunID string
	Err   error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("%s operation failed for run %s: %v", e.Op, e.RunID, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

func (e *RunError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewRunError creates a run error with context.
func NewRunError(op, runID string, err error) *RunError {
	return &RunError{Op: op, RunID: runID, Err: err}
}

// EntityError wraps entity-related storage errors with operation context.
type EntityError struct {
	Op       string
	EntityID string
	Err      error
}

func (e *EntityError) Error() string {
	return fmt.Sprintf("%s operation failed for entity %s: %v", e.Op, e.EntityID, e.Err)
}

func (e *EntityError) Unwrap() error {
	return e.Err
}

func (e *EntityError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewEntityError creates an entity error with context.
func NewEntityError(op, entityID string, err error) *EntityError {
	return &EntityError{Op: op, EntityID: entityID, Err: err}
}

// IsNotFound checks whether an error is any of the not-found sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrFlowNotFound) ||
		errors.Is(err, ErrVersionNotFound) ||
		errors.Is(err, ErrRunNotFound) ||
		errors.Is(err, ErrEntityNotFound) ||
		errors.Is(err, ErrWebhookConfigNotFound)
}

// IsConcurrentUpdate checks whether an error indicates a lost conditional
// write.
func IsConcurrentUpdate(err error) bool {
	return errors.Is(err, ErrRunConcurrentUpdate)
}
