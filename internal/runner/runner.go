// Package runner drives one worker's handler against its queue until a
// stopping condition. It holds no cross-instance coordination state:
// any number of runners, in any number of processes, may poll the same
// worker name, and correctness is delegated entirely to the lease
// primitive inside the backend.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dmitysh/wopo"
	"github.com/google/uuid"

	"github.com/duraq/duraq/internal/store"
)

const poolBufferFactor = 2

// Config bounds one runner invocation. Once with MaxTasks=0 processes a
// single batch of at most one task. Every, when set, spaces batches on
// a fixed interval instead of tight polling.
type Config struct {
	Once          bool
	MaxTasks      int
	Parallel      int
	LeaseDuration time.Duration
	PollInterval  time.Duration
	Every         time.Duration
}

func (c Config) withDefaults() Config {
	if c.Parallel < 1 {
		c.Parallel = 1
	}
	if c.LeaseDuration <= 0 {
		c.LeaseDuration = 2 * time.Minute
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 500 * time.Millisecond
	}

	return c
}

type Runner struct {
	queue  *store.QueueStore
	cfg    Config
	owner  string
	logger *slog.Logger
	exec   *executor
}

// New binds a handler to its queue. The owner token identifies this
// runner instance in lock files across processes.
func New(queue *store.QueueStore, handler Handler, cfg Config, logger *slog.Logger) (*Runner, error) {
	if handler.Name() != queue.WorkerName() {
		return nil, fmt.Errorf("handler %q does not serve queue %q", handler.Name(), queue.WorkerName())
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown-host"
	}

	return &Runner{
		queue:  queue,
		cfg:    cfg.withDefaults(),
		owner:  fmt.Sprintf("%s:%s", hostname, uuid.NewString()[:8]),
		logger: logger,
		exec: &executor{
			queue:   queue,
			handler: handler,
			logger:  logger,
		},
	}, nil
}

// Run polls for leasable tasks and dispatches them until the stopping
// condition: the batch bound in Once mode, or context cancellation in
// continuous mode. On cancellation it stops polling, drains in-flight
// tasks, and only then returns; leases are never abandoned by a clean
// shutdown. Returns the number of tasks processed.
func (r *Runner) Run(ctx context.Context) (int, error) {
	pool := wopo.NewPool(
		r.exec.execute,
		wopo.WithWorkerCount[*store.LeasedTask, empty](r.cfg.Parallel),
		wopo.WithTaskBufferSize[*store.LeasedTask, empty](r.cfg.Parallel*poolBufferFactor),
		wopo.WithResultBufferSize[*store.LeasedTask, empty](-1),
	)
	pool.Start()

	if r.cfg.Once {
		err := r.runBatch(ctx, pool)
		pool.Stop()
		return int(r.exec.processed.Load()), err
	}

	err := r.runContinuous(ctx, pool)
	pool.Stop()

	return int(r.exec.processed.Load()), err
}

// runBatch leases up to the batch target and pushes each task into the
// pool, stopping early when the queue has nothing ready.
func (r *Runner) runBatch(ctx context.Context, pool *wopo.Pool[*store.LeasedTask, empty]) error {
	target := r.cfg.MaxTasks
	if target < 1 {
		target = 1
	}

	for i := 0; i < target; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		leased, err := r.queue.PollLeasable(ctx, r.owner, r.cfg.LeaseDuration)
		if err != nil {
			return fmt.Errorf("poll: %w", err)
		}
		if leased == nil {
			return nil
		}

		// The task is already leased, so it must reach a pool worker and
		// flow through Complete or Fail even if shutdown lands right
		// here. Pushing with the cancellable context would drop it and
		// abandon the lease until expiry.
		pool.PushTask(context.Background(), leased)
	}

	return nil
}

func (r *Runner) runContinuous(ctx context.Context, pool *wopo.Pool[*store.LeasedTask, empty]) error {
	interval := r.cfg.PollInterval
	if r.cfg.Every > 0 {
		interval = r.cfg.Every
	}

	t := time.NewTimer(time.Nanosecond)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if err := r.runBatch(ctx, pool); err != nil && ctx.Err() == nil {
				r.logger.Error("batch failed", "worker", r.queue.WorkerName(), "error", err)
			}
			t.Reset(interval)
		}
	}
}
