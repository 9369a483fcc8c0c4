package runner

import (
	"context"
	"errors"
	"fmt"

	"github.com/duraq/duraq/internal/store"
)

// Built-in diagnostic handlers. Business handlers live outside the
// runtime and are registered by the embedding program.

// NoopHandler acknowledges every task without doing anything.
type NoopHandler struct{ WorkerName string }

func (h NoopHandler) Name() string { return h.WorkerName }

func (h NoopHandler) Handle(_ context.Context, task store.Task) (store.Result, error) {
	return store.Result{TaskID: task.TaskID, Status: store.StatusOK}, nil
}

// EchoHandler succeeds and reflects the task payload into the result.
type EchoHandler struct{ WorkerName string }

func (h EchoHandler) Name() string { return h.WorkerName }

func (h EchoHandler) Handle(_ context.Context, task store.Task) (store.Result, error) {
	return store.Result{
		TaskID:  task.TaskID,
		Status:  store.StatusOK,
		Payload: task.Payload,
	}, nil
}

// FailHandler fails every task. Paired with max_attempts=1 it gives a
// deterministic single-shot deadletter path for diagnostic runs.
type FailHandler struct{ WorkerName string }

func (h FailHandler) Name() string { return h.WorkerName }

func (h FailHandler) Handle(_ context.Context, task store.Task) (store.Result, error) {
	return store.Result{}, fmt.Errorf("forced failure for task %s", task.TaskID)
}

// DefaultRegistry holds the diagnostic handlers under conventional
// worker names.
func DefaultRegistry() Registry {
	r, err := NewRegistry(
		NoopHandler{WorkerName: "noop"},
		EchoHandler{WorkerName: "echo"},
		FailHandler{WorkerName: "fail"},
	)
	if err != nil {
		panic(errors.Join(errors.New("default registry"), err))
	}

	return r
}
