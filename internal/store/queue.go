package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/duraq/duraq/internal/lease"
)

// Enqueue writes the task into the inbox. It is idempotent: a task_id
// that already has a terminal record, or already sits in the inbox,
// produces no new artifact and no change to existing state. The boolean
// reports whether a new entry was created.
func (s *QueueStore) Enqueue(ctx context.Context, task Task) (bool, error) {
	if task.TaskID == "" {
		return false, fmt.Errorf("%w: empty task_id", ErrInvalidTask)
	}
	if task.MaxAttempts == 0 {
		task.MaxAttempts = s.policy.MaxAttempts
	}
	if task.MaxAttempts < 1 {
		return false, fmt.Errorf("%w: max_attempts must be at least 1, got %d", ErrInvalidTask, task.MaxAttempts)
	}
	if task.AttemptCount < 0 {
		return false, fmt.Errorf("%w: negative attempt_count", ErrInvalidTask)
	}

	now := s.now()
	task.WorkerName = s.worker
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	if task.NotBefore.IsZero() {
		task.NotBefore = now
	}

	if s.hasTerminalRecord(task.TaskID) {
		return false, nil
	}

	err := publishJSONExclusive(s.inboxPath(task.TaskID), task)
	if errors.Is(err, fs.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return true, nil
}

// PollLeasable scans the inbox in lexical order for a ready task, takes
// a lease on it, durably increments its attempt counter, and returns it.
// It returns (nil, nil) when nothing is ready. Corrupt artifacts and
// live-leased tasks are skipped; an inbox entry that already has a
// terminal record (crash window of Complete) is repaired in passing.
func (s *QueueStore) PollLeasable(ctx context.Context, owner string, leaseDuration time.Duration) (*LeasedTask, error) {
	entries, err := os.ReadDir(s.dirs.inbox)
	if err != nil {
		return nil, fmt.Errorf("scan inbox: %w", err)
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			continue
		}

		path := filepath.Join(s.dirs.inbox, name)

		var task Task
		if err := readJSON(path, &task); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue // completed or deadlettered under our feet
			}
			s.collector.IncCorrupt()
			s.logger.Warn("skipping corrupt inbox artifact", "worker", s.worker, "file", name, "error", err)
			continue
		}

		if task.NotBefore.After(s.now()) {
			continue
		}

		lt, err := s.tryLease(ctx, task, path, owner, leaseDuration)
		if err != nil {
			return nil, err
		}
		if lt != nil {
			return lt, nil
		}
	}

	return nil, nil
}

func (s *QueueStore) tryLease(ctx context.Context, task Task, path, owner string, leaseDuration time.Duration) (*LeasedTask, error) {
	if err := validateTransition(TaskPending, TaskLeased); err != nil {
		return nil, err
	}

	_, err := s.leases.TryAcquire(task.TaskID, s.worker, owner, leaseDuration)
	if errors.Is(err, lease.ErrDenied) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	// Holding the lease now; nothing else mutates the task file. Re-read
	// it: another holder may have rescheduled or finished the task
	// between our scan and the acquisition.
	if err := readJSON(path, &task); err != nil {
		_ = s.leases.Release(task.TaskID)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		s.collector.IncCorrupt()
		s.logger.Warn("skipping corrupt inbox artifact", "worker", s.worker, "file", filepath.Base(path), "error", err)
		return nil, nil
	}
	if task.NotBefore.After(s.now()) {
		_ = s.leases.Release(task.TaskID)
		return nil, nil
	}

	if s.hasTerminalRecord(task.TaskID) {
		// Crash window repair: Complete published the terminal artifact
		// but died before removing the inbox copy.
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			_ = s.leases.Release(task.TaskID)
			return nil, fmt.Errorf("repair stale inbox entry: %w", err)
		}
		_ = s.leases.Release(task.TaskID)
		s.logger.Info("removed stale inbox entry with terminal record", "worker", s.worker, "task_id", task.TaskID)
		return nil, nil
	}

	// The attempt is consumed before dispatch: a crash mid-handler still
	// counts against the budget.
	task.AttemptCount++
	if err := writeJSONAtomic(path, task); err != nil {
		_ = s.leases.Release(task.TaskID)
		return nil, fmt.Errorf("record attempt: %w", err)
	}

	s.collector.IncLeased()

	return &LeasedTask{Task: task, Owner: owner, path: path}, nil
}

// Complete publishes the result into the outbox, removes the inbox
// entry, and releases the lease. Duplicate completions are idempotent:
// an existing outbox artifact is left untouched and no error is raised.
func (s *QueueStore) Complete(ctx context.Context, lt *LeasedTask, result Result) error {
	if err := validateTransition(TaskLeased, TaskCompleted); err != nil {
		return err
	}
	defer func() {
		if err := s.leases.Release(lt.Task.TaskID); err != nil {
			s.logger.Warn("lease release failed", "task_id", lt.Task.TaskID, "error", err)
		}
	}()

	result.TaskID = lt.Task.TaskID
	if result.Status == "" {
		result.Status = StatusOK
	}
	if result.ProducedAt.IsZero() {
		result.ProducedAt = s.now()
	}

	err := ioRetry(ctx, s.logger, "publish result", func() error {
		return publishJSONExclusive(s.outboxPath(lt.Task.TaskID), result)
	})
	if err != nil && !errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("complete task %s: %w", lt.Task.TaskID, err)
	}

	if err := os.Remove(lt.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove inbox entry for %s: %w", lt.Task.TaskID, err)
	}

	s.collector.IncCompleted()

	return nil
}

// Fail consults the retry policy and either reschedules the task with a
// new not_before or moves it to the deadletter, then releases the lease.
// The attempt counter was already consumed at poll time.
func (s *QueueStore) Fail(ctx context.Context, lt *LeasedTask, handlerErr error) error {
	defer func() {
		if err := s.leases.Release(lt.Task.TaskID); err != nil {
			s.logger.Warn("lease release failed", "task_id", lt.Task.TaskID, "error", err)
		}
	}()

	task := lt.Task
	message := "handler failure"
	if handlerErr != nil {
		message = handlerErr.Error()
	}

	decision := s.policy.Decide(task.AttemptCount, task.MaxAttempts)
	if decision.Deadletter {
		return s.deadletter(ctx, lt, message)
	}

	if err := validateTransition(TaskLeased, TaskPending); err != nil {
		return err
	}

	task.NotBefore = s.now().Add(decision.Delay)
	if err := writeJSONAtomic(lt.path, task); err != nil {
		return fmt.Errorf("reschedule task %s: %w", task.TaskID, err)
	}

	s.collector.IncRescheduled()
	s.logger.Info("task rescheduled",
		"worker", s.worker,
		"task_id", task.TaskID,
		"attempt", task.AttemptCount,
		"max_attempts", task.MaxAttempts,
		"not_before", task.NotBefore,
		"error", message,
	)

	return nil
}

func (s *QueueStore) deadletter(ctx context.Context, lt *LeasedTask, message string) error {
	if err := validateTransition(TaskLeased, TaskDeadlettered); err != nil {
		return err
	}

	entry := DeadletterEntry{
		Task:           lt.Task,
		FinalError:     message,
		DeadletteredAt: s.now(),
	}

	err := ioRetry(ctx, s.logger, "publish deadletter", func() error {
		return publishJSONExclusive(s.deadletterPath(lt.Task.TaskID), entry)
	})
	if err != nil && !errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("deadletter task %s: %w", lt.Task.TaskID, err)
	}

	if err := os.Remove(lt.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove inbox entry for %s: %w", lt.Task.TaskID, err)
	}

	s.collector.IncDeadlettered()
	s.logger.Warn("task deadlettered",
		"worker", s.worker,
		"task_id", lt.Task.TaskID,
		"attempts", lt.Task.AttemptCount,
		"error", message,
	)

	return nil
}

// WriteRunRecord appends one execution audit record under runs/{worker}.
func (s *QueueStore) WriteRunRecord(ctx context.Context, record RunRecord) error {
	if record.RunID == "" {
		return fmt.Errorf("run record needs a run_id")
	}
	record.WorkerName = s.worker

	path := filepath.Join(s.dirs.runs, safeTaskID(record.RunID)+".json")
	err := ioRetry(ctx, s.logger, "publish run record", func() error {
		return publishJSONExclusive(path, record)
	})
	if err != nil && !errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("write run record: %w", err)
	}

	return nil
}
