package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	r := mux.NewRouter()
	r.Use(s.requestIDMiddleware)

	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)

	r.HandleFunc("/v1/queues/{worker}/tasks", s.handleEnqueue).Methods(http.MethodPost)
	r.HandleFunc("/v1/queues/{worker}/stats", s.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/v1/queues/{worker}/deadletter", s.handleDeadletterList).Methods(http.MethodGet)
	r.HandleFunc("/v1/queues/{worker}/deadletter/requeue", s.handleDeadletterRequeue).Methods(http.MethodPost)

	s.router = r
}
