package store

import "errors"

var (
	// ErrInvalidStateTransition is returned when a caller requests a
	// task state change the state machine does not allow.
	ErrInvalidStateTransition = errors.New("invalid task state transition")

	// ErrTaskCorrupt marks an artifact whose content cannot be parsed.
	// Pollers skip such items and surface them through stats; they
	// never crash on them.
	ErrTaskCorrupt = errors.New("task artifact is corrupt")

	// ErrInvalidTask is returned by Enqueue for tasks that fail
	// validation before any file is written.
	ErrInvalidTask = errors.New("invalid task")
)
