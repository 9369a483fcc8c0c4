package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/duraq/duraq/internal/store"
)

type empty = struct{}

// executor drives one leased task through its handler and reports the
// outcome back to the backend. The lease is always released on every
// exit path: Complete and Fail both release it, and a handler panic is
// converted into a failure rather than escaping.
type executor struct {
	queue   *store.QueueStore
	handler Handler
	logger  *slog.Logger

	processed atomic.Int64
}

func (e *executor) execute(ctx context.Context, lt *store.LeasedTask) (empty, error) {
	started := time.Now()

	result, handlerErr := e.safeHandle(ctx, lt.Task)
	if handlerErr == nil && result.Status == store.StatusError {
		if result.Error != "" {
			handlerErr = errors.New(result.Error)
		} else {
			handlerErr = errors.New("handler reported error status")
		}
	}

	status := store.StatusOK
	message := ""
	if handlerErr != nil {
		status = store.StatusError
		message = handlerErr.Error()
		if err := e.queue.Fail(ctx, lt, handlerErr); err != nil {
			e.logger.Error("fail transition failed", "task_id", lt.Task.TaskID, "error", err)
			return empty{}, err
		}
	} else {
		if err := e.queue.Complete(ctx, lt, result); err != nil {
			e.logger.Error("complete transition failed", "task_id", lt.Task.TaskID, "error", err)
			return empty{}, err
		}
	}

	e.processed.Add(1)

	finished := time.Now()
	record := store.RunRecord{
		RunID:      uuid.NewString(),
		TaskID:     lt.Task.TaskID,
		StartedAt:  started,
		FinishedAt: finished,
		DurationMS: finished.Sub(started).Milliseconds(),
		Status:     status,
		Error:      message,
	}
	if err := e.queue.WriteRunRecord(ctx, record); err != nil {
		e.logger.Warn("run record not written", "task_id", lt.Task.TaskID, "error", err)
	}

	return empty{}, nil
}

func (e *executor) safeHandle(ctx context.Context, task store.Task) (result store.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in handler: %v\n%s", r, debug.Stack())
		}
	}()

	return e.handler.Handle(ctx, task)
}
