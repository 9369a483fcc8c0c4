package store

import (
	"strings"
	"time"
)

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Task is one unit of work. TaskID should be deterministically derived
// from stable business identifiers so re-submission of logically
// identical work is naturally deduplicated.
type Task struct {
	TaskID       string         `json:"task_id"`
	TaskType     string         `json:"task_type,omitempty"`
	WorkerName   string         `json:"worker_name"`
	Payload      map[string]any `json:"payload"`
	AttemptCount int            `json:"attempt_count"`
	MaxAttempts  int            `json:"max_attempts"`
	CreatedAt    time.Time      `json:"created_at"`
	NotBefore    time.Time      `json:"not_before"`
}

// Result is the outcome of one execution attempt.
type Result struct {
	TaskID     string         `json:"task_id"`
	Status     string         `json:"status"`
	Payload    map[string]any `json:"payload,omitempty"`
	Error      string         `json:"error,omitempty"`
	ProducedAt time.Time      `json:"produced_at"`
}

// DeadletterEntry wraps a task that exhausted its attempt budget. The
// task is kept verbatim so an operator requeue restores it unchanged
// apart from the reset counters.
type DeadletterEntry struct {
	Task           Task      `json:"task"`
	FinalError     string    `json:"final_error"`
	DeadletteredAt time.Time `json:"deadlettered_at"`
}

// RunRecord is the audit trail of a single execution attempt, written
// into runs/{worker} regardless of outcome.
type RunRecord struct {
	RunID      string    `json:"run_id"`
	WorkerName string    `json:"worker_name"`
	TaskID     string    `json:"task_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	DurationMS int64     `json:"duration_ms"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
}

// LeasedTask couples a task with the lease that protects it. All
// mutations of a leased task go back through the store that issued it.
type LeasedTask struct {
	Task  Task
	Owner string

	path string
}

// safeTaskID maps a task ID to a filename-safe form.
func safeTaskID(taskID string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '_'
		}
	}, taskID)
}
