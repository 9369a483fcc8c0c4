package runner

import (
	"context"
	"fmt"

	"github.com/duraq/duraq/internal/store"
)

// Handler implements the business work for exactly one worker name. The
// runtime never interprets the payload; it only routes the result.
type Handler interface {
	Name() string
	Handle(ctx context.Context, task store.Task) (store.Result, error)
}

// Registry maps worker names to handlers. Resolution happens once at
// runner startup, not per task.
type Registry map[string]Handler

func NewRegistry(handlers ...Handler) (Registry, error) {
	r := Registry{}
	for _, h := range handlers {
		if err := r.Register(h); err != nil {
			return nil, err
		}
	}

	return r, nil
}

func (r Registry) Register(h Handler) error {
	if h.Name() == "" {
		return fmt.Errorf("handler name must not be empty")
	}
	if _, exists := r[h.Name()]; exists {
		return fmt.Errorf("handler %q already registered", h.Name())
	}
	r[h.Name()] = h

	return nil
}

func (r Registry) Lookup(name string) (Handler, error) {
	h, ok := r[name]
	if !ok {
		return nil, fmt.Errorf("no handler registered for worker %q", name)
	}

	return h, nil
}
