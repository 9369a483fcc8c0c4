package lease

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestManager(t *testing.T) (*Manager, *fakeClock) {
	t.Helper()

	m, err := NewManager(filepath.Join(t.TempDir(), "locks"))
	require.NoError(t, err)

	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	m.SetClock(clock.Now)

	return m, clock
}

func TestTryAcquireExclusive(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t)

	const attempts = 8
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		wins   int
		denies int
	)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, err := m.TryAcquire("t1", "enrich", "owner", 30*time.Second)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else {
				require.ErrorIs(t, err, ErrDenied)
				denies++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, attempts-1, denies)
}

func TestTryAcquireDeniedWhileLive(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t)

	first, err := m.TryAcquire("t2", "enrich", "a", time.Minute)
	require.NoError(t, err)
	require.Equal(t, "a", first.Owner)

	_, err = m.TryAcquire("t2", "enrich", "b", time.Minute)
	require.ErrorIs(t, err, ErrDenied)
}

func TestExpiredLockReacquired(t *testing.T) {
	t.Parallel()

	m, clock := newTestManager(t)

	_, err := m.TryAcquire("t3", "enrich", "a", time.Second)
	require.NoError(t, err)

	clock.Advance(2 * time.Second)

	second, err := m.TryAcquire("t3", "enrich", "b", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "b", second.Owner)
	assert.Equal(t, clock.Now().Add(time.Minute), second.ExpiresAt)
}

func TestUnparsableLockIsClaimable(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t)

	// A crashed writer left a half-written lock behind.
	lockPath := m.lockPath("t4")
	require.NoError(t, os.WriteFile(lockPath, []byte(`{"expires_at":`), 0o644))

	l, err := m.TryAcquire("t4", "enrich", "b", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "b", l.Owner)
}

func TestReleaseFreesSlot(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t)

	_, err := m.TryAcquire("t5", "enrich", "a", time.Minute)
	require.NoError(t, err)

	require.NoError(t, m.Release("t5"))

	_, err = m.TryAcquire("t5", "enrich", "b", time.Minute)
	require.NoError(t, err)
}

func TestReleaseMissingLockIsNoError(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t)
	require.NoError(t, m.Release("never-acquired"))
}

func TestHolder(t *testing.T) {
	t.Parallel()

	m, clock := newTestManager(t)

	assert.Nil(t, m.Holder("t6"))

	_, err := m.TryAcquire("t6", "enrich", "a", time.Second)
	require.NoError(t, err)
	require.NotNil(t, m.Holder("t6"))
	assert.Equal(t, "a", m.Holder("t6").Owner)

	clock.Advance(2 * time.Second)
	assert.Nil(t, m.Holder("t6"))
}

func TestLockNameSanitized(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t)

	taskID := "../escape/t x"
	_, err := m.TryAcquire(taskID, "enrich", "a", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, m.Holder(taskID))

	// The lock lives inside the lock directory under a mapped name.
	entries, err := os.ReadDir(m.lockDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ".._escape_t_x.lock", entries[0].Name())

	require.NoError(t, m.Release(taskID))
	assert.Nil(t, m.Holder(taskID))
}

func TestResolveReapedNeverOrphansReapFile(t *testing.T) {
	t.Parallel()

	m, clock := newTestManager(t)

	displaced := &Lease{
		TaskID:     "t9",
		WorkerName: "enrich",
		Owner:      "displaced",
		AcquiredAt: clock.Now(),
		ExpiresAt:  clock.Now().Add(time.Minute),
	}

	// Restore succeeds: slot is free, the displaced lease goes back.
	reapPath := filepath.Join(m.lockDir, ".t9.reap.aaaa")
	require.NoError(t, m.publish(reapPath, displaced))

	won, err := m.resolveReaped(m.lockPath("t9"), reapPath)
	require.NoError(t, err)
	assert.False(t, won)
	assert.NoFileExists(t, reapPath)
	require.NotNil(t, m.Holder("t9"))
	assert.Equal(t, "displaced", m.Holder("t9").Owner)

	// Restore fails: a third claimant already refilled the slot. The
	// displaced lease is lost, but the reap file must still be deleted.
	require.NoError(t, m.Release("t9"))
	third := &Lease{
		TaskID:     "t9",
		WorkerName: "enrich",
		Owner:      "third",
		AcquiredAt: clock.Now(),
		ExpiresAt:  clock.Now().Add(time.Minute),
	}
	require.NoError(t, m.publish(m.lockPath("t9"), third))

	reapPath = filepath.Join(m.lockDir, ".t9.reap.bbbb")
	require.NoError(t, m.publish(reapPath, displaced))

	won, err = m.resolveReaped(m.lockPath("t9"), reapPath)
	require.NoError(t, err)
	assert.False(t, won)
	assert.NoFileExists(t, reapPath)
	assert.Equal(t, "third", m.Holder("t9").Owner)
}

func TestExpiredReclaimSingleWinner(t *testing.T) {
	t.Parallel()

	m, clock := newTestManager(t)

	_, err := m.TryAcquire("t7", "enrich", "a", time.Second)
	require.NoError(t, err)
	clock.Advance(5 * time.Second)

	const racers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.TryAcquire("t7", "enrich", "racer", time.Minute); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}
