package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// requeueLeaseDuration bounds the lease a requeue holds while moving a
// task from the deadletter back to the inbox. The critical section is
// two file operations; a minute is generous.
const requeueLeaseDuration = time.Minute

// Stats is a point-in-time census of one worker's queue directories.
// Corrupt counts artifacts that could not be parsed during this scan;
// they remain on disk for inspection.
type Stats struct {
	Worker        string `json:"worker"`
	InboxUnleased int    `json:"inbox_unleased"`
	InboxLeased   int    `json:"inbox_leased"`
	Outbox        int    `json:"outbox"`
	Deadletter    int    `json:"deadletter"`
	Runs          int    `json:"runs"`
	Corrupt       int    `json:"corrupt"`
}

func (s *QueueStore) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{Worker: s.worker}

	entries, err := os.ReadDir(s.dirs.inbox)
	if err != nil {
		return stats, fmt.Errorf("scan inbox: %w", err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			continue
		}

		var task Task
		if err := readJSON(filepath.Join(s.dirs.inbox, name), &task); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			stats.Corrupt++
			continue
		}

		if s.leases.Holder(task.TaskID) != nil {
			stats.InboxLeased++
		} else {
			stats.InboxUnleased++
		}
	}

	stats.Outbox, err = s.countArtifacts(s.dirs.outbox)
	if err != nil {
		return stats, err
	}
	stats.Deadletter, err = s.countArtifacts(s.dirs.deadletter)
	if err != nil {
		return stats, err
	}
	stats.Runs, err = s.countArtifacts(s.dirs.runs)
	if err != nil {
		return stats, err
	}

	return stats, nil
}

func (s *QueueStore) countArtifacts(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("scan %s: %w", dir, err)
	}

	n := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			continue
		}
		n++
	}

	return n, nil
}

// DeadletterList returns every deadlettered entry in lexical task order.
// Corrupt entries are skipped and logged, never fatal to the listing.
func (s *QueueStore) DeadletterList(ctx context.Context) ([]DeadletterEntry, error) {
	entries, err := os.ReadDir(s.dirs.deadletter)
	if err != nil {
		return nil, fmt.Errorf("scan deadletter: %w", err)
	}

	var out []DeadletterEntry
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			continue
		}

		var dl DeadletterEntry
		if err := readJSON(filepath.Join(s.dirs.deadletter, name), &dl); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			s.collector.IncCorrupt()
			s.logger.Warn("skipping corrupt deadletter artifact", "worker", s.worker, "file", name, "error", err)
			continue
		}
		out = append(out, dl)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Task.TaskID < out[j].Task.TaskID
	})

	return out, nil
}

// DeadletterRequeue moves deadlettered tasks back to the inbox with a
// fresh attempt budget (attempt_count reset to zero, not_before = now).
// An empty taskID requeues everything. This is an explicit operator
// action; the runtime never requeues on its own.
func (s *QueueStore) DeadletterRequeue(ctx context.Context, taskID string) (int, error) {
	items, err := s.DeadletterList(ctx)
	if err != nil {
		return 0, err
	}

	owner := "requeue:" + uuid.NewString()[:8]
	requeued := 0
	for _, item := range items {
		if taskID != "" && item.Task.TaskID != taskID {
			continue
		}
		if err := validateTransition(TaskDeadlettered, TaskPending); err != nil {
			return requeued, err
		}

		task := item.Task
		task.AttemptCount = 0
		task.NotBefore = s.now()

		// Hold the lease across the publish-then-remove pair. Poll's
		// stale-entry repair only runs under a held lease, so this keeps
		// a concurrent poller from seeing the fresh inbox entry next to
		// the still-present deadletter record and discarding it.
		if _, err := s.leases.TryAcquire(task.TaskID, s.worker, owner, requeueLeaseDuration); err != nil {
			return requeued, fmt.Errorf("requeue task %s: %w", task.TaskID, err)
		}

		err := publishJSONExclusive(s.inboxPath(task.TaskID), task)
		if err != nil && !errors.Is(err, fs.ErrExist) {
			_ = s.leases.Release(task.TaskID)
			return requeued, fmt.Errorf("requeue task %s: %w", task.TaskID, err)
		}

		if err := os.Remove(s.deadletterPath(task.TaskID)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			_ = s.leases.Release(task.TaskID)
			return requeued, fmt.Errorf("remove deadletter entry for %s: %w", task.TaskID, err)
		}

		if err := s.leases.Release(task.TaskID); err != nil {
			s.logger.Warn("lease release failed", "task_id", task.TaskID, "error", err)
		}

		s.logger.Info("task requeued from deadletter", "worker", s.worker, "task_id", task.TaskID)
		requeued++
	}

	return requeued, nil
}
