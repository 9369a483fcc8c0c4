// Package store is the durable queue backend. All task state lives in a
// per-worker directory set under one workspace root; every state
// transition is an atomic file publication or move, so a crash at any
// point leaves each task in exactly one valid location.
package store

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/duraq/duraq/internal/lease"
	"github.com/duraq/duraq/internal/retry"
)

// Collector receives queue-level counters. The zero implementation
// drops them; internal/metrics provides a Prometheus-backed one.
type Collector interface {
	IncLeased()
	IncCompleted()
	IncRescheduled()
	IncDeadlettered()
	IncCorrupt()
}

type nopCollector struct{}

func (nopCollector) IncLeased()       {}
func (nopCollector) IncCompleted()    {}
func (nopCollector) IncRescheduled()  {}
func (nopCollector) IncDeadlettered() {}
func (nopCollector) IncCorrupt()      {}

type dirSet struct {
	inbox      string
	outbox     string
	runs       string
	deadletter string
	locks      string
}

func newDirSet(workspace, worker string) dirSet {
	return dirSet{
		inbox:      filepath.Join(workspace, "inbox", worker),
		outbox:     filepath.Join(workspace, "outbox", worker),
		runs:       filepath.Join(workspace, "runs", worker),
		deadletter: filepath.Join(workspace, "deadletter", worker),
		locks:      filepath.Join(workspace, "locks", worker),
	}
}

func (d dirSet) ensure() error {
	for _, dir := range []string{d.inbox, d.outbox, d.runs, d.deadletter, d.locks} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create queue dir: %w", err)
		}
	}

	return nil
}

// QueueStore is one worker's view of the filesystem queue. Multiple
// stores in multiple processes may point at the same directories; the
// lease manager is the only synchronization between them.
type QueueStore struct {
	worker    string
	dirs      dirSet
	leases    *lease.Manager
	policy    retry.Policy
	now       func() time.Time
	logger    *slog.Logger
	collector Collector
}

type Option func(*QueueStore)

// WithClock replaces the time source. Test hook.
func WithClock(now func() time.Time) Option {
	return func(s *QueueStore) { s.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *QueueStore) { s.logger = logger }
}

func WithCollector(c Collector) Option {
	return func(s *QueueStore) { s.collector = c }
}

// New opens (creating on demand) the queue directory set for one worker
// name. The policy is validated eagerly: a bad attempt budget or backoff
// parameter fails here, at startup, never mid-run.
func New(workspace, worker string, policy retry.Policy, opts ...Option) (*QueueStore, error) {
	if worker == "" {
		return nil, fmt.Errorf("worker name must not be empty")
	}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("queue policy: %w", err)
	}

	dirs := newDirSet(workspace, worker)
	if err := dirs.ensure(); err != nil {
		return nil, err
	}

	leases, err := lease.NewManager(dirs.locks)
	if err != nil {
		return nil, err
	}

	s := &QueueStore{
		worker:    worker,
		dirs:      dirs,
		leases:    leases,
		policy:    policy,
		now:       time.Now,
		logger:    slog.Default(),
		collector: nopCollector{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.leases.SetClock(s.now)

	return s, nil
}

// WorkerName returns the queue partition this store operates on.
func (s *QueueStore) WorkerName() string {
	return s.worker
}

func (s *QueueStore) inboxPath(taskID string) string {
	return filepath.Join(s.dirs.inbox, safeTaskID(taskID)+".json")
}

func (s *QueueStore) outboxPath(taskID string) string {
	return filepath.Join(s.dirs.outbox, safeTaskID(taskID)+".json")
}

func (s *QueueStore) deadletterPath(taskID string) string {
	return filepath.Join(s.dirs.deadletter, safeTaskID(taskID)+".json")
}

// hasTerminalRecord reports whether taskID already finished, in either
// direction. Enqueue and poll both consult it: a terminal record is the
// authoritative location for a task even if a crashed Complete left a
// stale inbox copy behind.
func (s *QueueStore) hasTerminalRecord(taskID string) bool {
	return exists(s.outboxPath(taskID)) || exists(s.deadletterPath(taskID))
}
