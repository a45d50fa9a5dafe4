package services

import (
	"errors"
	"fmt"
)

// ErrUnauthorized is returned when a request carries no accepted credential.
var ErrUnauthorized = errors.New("unauthorized")

// StoreUnavailableError means the persistence layer could not be reached before
// any mutation was attempted.
type StoreUnavailableError struct {
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("store unavailable: %v", e.Err)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Err }

// EntityError is a failure scoped to one listing. The listing is skipped for
// the current run and retried on the next one.
type EntityError struct {
	ListingID string
	Phase     string
	Err       error
}

func (e *EntityError) Error() string {
	return fmt.Sprintf("listing %s (%s): %v", e.ListingID, e.Phase, e.Err)
}

func (e *EntityError) Unwrap() error { return e.Err }

// BatchCommitError means a commit failed. Commits before Batch stand.
type BatchCommitError struct {
	Batch int // 1-based index of the failed commit
	Ops   int // operations in the failed commit
	Err   error
}

func (e *BatchCommitError) Error() string {
	return fmt.Sprintf("batch %d (%d operations) failed to commit: %v", e.Batch, e.Ops, e.Err)
}

func (e *BatchCommitError) Unwrap() error { return e.Err }
