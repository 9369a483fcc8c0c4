// Package api is the HTTP ops surface over the filesystem queue: queue
// stats, deadletter inspection and requeue, enqueue, and the usual
// health and metrics endpoints. It is an operator tool; task execution
// never flows through it.
package api

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/duraq/duraq/internal/config"
	"github.com/duraq/duraq/internal/metrics"
	"github.com/duraq/duraq/internal/store"
)

type Server struct {
	cfg      config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	router   *mux.Router

	mu     sync.Mutex
	queues map[string]*store.QueueStore
}

func NewServer(cfg config.Config, logger *slog.Logger) *Server {
	server := &Server{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
		queues:   map[string]*store.QueueStore{},
	}

	server.registerRoutes()

	return server
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// queueFor opens (once) the store for a worker name. Stores are cached
// so Prometheus collectors register a single time per worker.
func (s *Server) queueFor(worker string) (*store.QueueStore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if q, ok := s.queues[worker]; ok {
		return q, nil
	}

	q, err := store.New(
		s.cfg.Workspace,
		worker,
		s.cfg.Policy(),
		store.WithLogger(s.logger),
		store.WithCollector(metrics.New(s.registry, worker)),
	)
	if err != nil {
		return nil, err
	}
	s.queues[worker] = q

	return q, nil
}
