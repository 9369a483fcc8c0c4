package store

import "fmt"

// IMPORTANT:
// All task state transitions MUST go through validateTransition.
// Any file move between queue directories outside this gate is a
// correctness bug.

// Task states map one-to-one onto authoritative file locations: a task
// lives in exactly one of inbox (unleased or leased), outbox, or
// deadletter at any instant.
const (
	TaskPending      = "PENDING"      // inbox, no live lease
	TaskLeased       = "LEASED"       // inbox, live lease held
	TaskCompleted    = "COMPLETED"    // outbox
	TaskDeadlettered = "DEADLETTERED" // deadletter
)

var terminalStates = map[string]bool{
	TaskCompleted: true,
}

var allowedTransitions = map[string]map[string]bool{
	TaskPending: {
		TaskLeased: true,
	},
	TaskLeased: {
		TaskPending:      true, // retry reschedule
		TaskCompleted:    true,
		TaskDeadlettered: true,
	},
	TaskDeadlettered: {
		TaskPending: true, // explicit operator requeue only
	},
}

func validateTransition(from, to string) error {
	if terminalStates[from] {
		return fmt.Errorf("%w: %s is terminal", ErrInvalidStateTransition, from)
	}

	if allowed, ok := allowedTransitions[from][to]; !ok || !allowed {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, from, to)
	}

	return nil
}
