// Package lease implements an exclusive, time-bounded claim on a single
// task, backed only by filesystem primitives. Publication uses
// write-temp-then-hard-link, which fails if the lock already exists, so
// two concurrent claimants can never both win the same lease.
package lease

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrDenied is returned when another owner holds a live lease on the task.
// It is a normal contention outcome, not a failure: callers should skip
// the task and try another.
var ErrDenied = errors.New("lease denied: task is held by a live lease")

type Lease struct {
	TaskID     string    `json:"task_id"`
	WorkerName string    `json:"worker_name"`
	Owner      string    `json:"owner"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Expired reports whether the lease is abandoned at the given instant.
func (l *Lease) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}

// Manager hands out leases for one worker's lock directory.
type Manager struct {
	lockDir string
	now     func() time.Time
}

func NewManager(lockDir string) (*Manager, error) {
	if err := os.MkdirAll(lockDir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}

	return &Manager{
		lockDir: lockDir,
		now:     time.Now,
	}, nil
}

// SetClock replaces the time source. Test hook.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// safeLockName maps a task ID to a filename-safe form so a hostile or
// malformed ID cannot place the lock outside the lock directory.
func safeLockName(taskID string) string {
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

func (m *Manager) lockPath(taskID string) string {
	return filepath.Join(m.lockDir, safeLockName(taskID)+".lock")
}

// TryAcquire attempts to take an exclusive lease on taskID. It returns
// ErrDenied while another owner holds a live lease. A lock whose
// expires_at has passed, or whose content cannot be parsed (crashed
// writer), is reclaimable by any claimant; the reclaim path guarantees
// exactly one winner.
func (m *Manager) TryAcquire(taskID, workerName, owner string, duration time.Duration) (*Lease, error) {
	if duration <= 0 {
		return nil, fmt.Errorf("lease duration must be positive, got %v", duration)
	}

	lockPath := m.lockPath(taskID)

	for {
		now := m.now()
		candidate := &Lease{
			TaskID:     taskID,
			WorkerName: workerName,
			Owner:      owner,
			AcquiredAt: now,
			ExpiresAt:  now.Add(duration),
		}

		err := m.publish(lockPath, candidate)
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, err
		}

		existing, readErr := m.readLock(lockPath)
		if readErr == nil && !existing.Expired(m.now()) {
			return nil, ErrDenied
		}
		if readErr != nil && errors.Is(readErr, fs.ErrNotExist) {
			// Released between our publish attempt and the read.
			continue
		}

		// Stale or unparsable lock. Reclaim it and retry the exclusive
		// create. Exactly one racing claimant wins the rename; losers
		// loop back and contend on the fresh lock.
		reclaimed, err := m.reclaim(lockPath, taskID)
		if err != nil {
			return nil, err
		}
		if !reclaimed {
			return nil, ErrDenied
		}
	}
}

// reclaim atomically moves an expired lock aside and deletes it. Lock
// files are never rewritten in place, so the expiry verdict read before
// the rename stays valid for as long as the file exists. The rename is
// the single winner-selection point: it succeeds for exactly one
// claimant; everyone else sees ENOENT.
func (m *Manager) reclaim(lockPath, taskID string) (bool, error) {
	reapPath := filepath.Join(m.lockDir, fmt.Sprintf(".%s.reap.%s", safeLockName(taskID), uuid.NewString()[:8]))

	if err := os.Rename(lockPath, reapPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// Another claimant reclaimed it first.
			return true, nil
		}
		return false, fmt.Errorf("reclaim lock: %w", err)
	}

	return m.resolveReaped(lockPath, reapPath)
}

// resolveReaped decides the fate of a lock taken aside by the reap
// rename. A live lease is put back: the previous owner may have
// released and a new owner published between our read and the rename.
// If a third claimant already refilled the slot the restore fails and
// the displaced lease is lost either way. Everything else is deleted.
// The reap file never outlives this call.
func (m *Manager) resolveReaped(lockPath, reapPath string) (bool, error) {
	reaped, err := m.readLockFile(reapPath)
	if err == nil && !reaped.Expired(m.now()) {
		_ = m.publish(lockPath, reaped)
		if err := os.Remove(reapPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return false, fmt.Errorf("remove reaped lock: %w", err)
		}
		return false, nil
	}

	if err := os.Remove(reapPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("remove reclaimed lock: %w", err)
	}

	return true, nil
}

// Release deletes the lock file. Best-effort by contract: a delayed or
// failed delete is safe because expiry eventually reclaims the slot.
func (m *Manager) Release(taskID string) error {
	err := os.Remove(m.lockPath(taskID))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("release lease: %w", err)
	}

	return nil
}

// Holder returns the current lease for taskID, or nil when the slot is
// free, expired, or unreadable.
func (m *Manager) Holder(taskID string) *Lease {
	l, err := m.readLock(m.lockPath(taskID))
	if err != nil {
		return nil
	}
	if l.Expired(m.now()) {
		return nil
	}

	return l
}

// publish writes the lease to a scratch file and hard-links it into
// place. The link fails with fs.ErrExist if the destination is taken.
func (m *Manager) publish(lockPath string, l *Lease) error {
	raw, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("encode lease: %w", err)
	}

	tmp := filepath.Join(m.lockDir, ".tmp."+uuid.NewString())
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write lease scratch: %w", err)
	}
	defer os.Remove(tmp)

	if err := os.Link(tmp, lockPath); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("publish lease: %w", fs.ErrExist)
		}
		return fmt.Errorf("publish lease: %w", err)
	}

	return nil
}

func (m *Manager) readLock(lockPath string) (*Lease, error) {
	return m.readLockFile(lockPath)
}

// readLockFile tolerates partially-written content from a crashed
// writer: an unparsable lock is reported as an error and treated by
// callers as "no valid lease".
func (m *Manager) readLockFile(path string) (*Lease, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var l Lease
	if err := json.Unmarshal(raw, &l); err != nil {
		return nil, fmt.Errorf("parse lock: %w", err)
	}
	if l.ExpiresAt.IsZero() {
		return nil, fmt.Errorf("parse lock: missing expires_at")
	}

	return &l, nil
}
