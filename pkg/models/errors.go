package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates an unknown number or ingestion job.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState indicates the current status or holder does not satisfy
	// the precondition of the requested operation.
	ErrInvalidState = errors.New("invalid state")

	ErrIllegalTransition = errors.New("illegal status transition")

	// ErrConcurrencyConflict indicates the number was modified by someone else
	// between read and write. Callers should retry the whole operation.
	ErrConcurrencyConflict = errors.New("concurrent modification")

	// ErrMalformedInput indicates an ingestion payload or request that cannot
	// be interpreted.
	ErrMalformedInput = errors.New("malformed input")
)

// IllegalTransitionError names the rejected from/to pair.
type IllegalTransitionError struct {
	From Status
	To   Status
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition from %s to %s", e.From, e.To)
}

func (e *IllegalTransitionError) Unwrap() error {
	return ErrIllegalTransition
}
