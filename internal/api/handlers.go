package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/duraq/duraq/internal/observability"
	"github.com/duraq/duraq/internal/store"
)

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		requestID := request.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := observability.WithRequestID(request.Context(), requestID)
		writer.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(writer, request.WithContext(ctx))
	})
}

func (s *Server) handleHealth(writer http.ResponseWriter, _ *http.Request) {
	writer.WriteHeader(http.StatusOK)
	_, _ = writer.Write([]byte("ok"))
}

// handleReady probes that the workspace is reachable and writable; the
// filesystem is this system's only backing store.
func (s *Server) handleReady(writer http.ResponseWriter, _ *http.Request) {
	probe := filepath.Join(s.cfg.Workspace, ".readyz")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		http.Error(writer, "workspace not writable", http.StatusServiceUnavailable)
		return
	}
	_ = os.Remove(probe)

	writer.WriteHeader(http.StatusOK)
	_, _ = writer.Write([]byte("ready"))
}

func (s *Server) handleEnqueue(writer http.ResponseWriter, request *http.Request) {
	worker := mux.Vars(request)["worker"]

	var enqueueRequest EnqueueTaskRequest
	if err := json.NewDecoder(request.Body).Decode(&enqueueRequest); err != nil {
		http.Error(writer, "invalid JSON body", http.StatusBadRequest)
		return
	}

	queue, err := s.queueFor(worker)
	if err != nil {
		http.Error(writer, "failed to open queue", http.StatusInternalServerError)
		return
	}

	enqueued, err := queue.Enqueue(request.Context(), store.Task{
		TaskID:      enqueueRequest.TaskID,
		TaskType:    enqueueRequest.TaskType,
		Payload:     enqueueRequest.Payload,
		MaxAttempts: enqueueRequest.MaxAttempts,
	})
	if err != nil {
		if errors.Is(err, store.ErrInvalidTask) {
			http.Error(writer, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(writer, "failed to enqueue task", http.StatusInternalServerError)
		return
	}

	s.logRequest(request).Info("task enqueued", "worker", worker, "task_id", enqueueRequest.TaskID, "new", enqueued)

	status := http.StatusOK
	if enqueued {
		status = http.StatusCreated
	}
	writeJSON(writer, status, EnqueueTaskResponse{TaskID: enqueueRequest.TaskID, Enqueued: enqueued})
}

func (s *Server) handleStats(writer http.ResponseWriter, request *http.Request) {
	worker := mux.Vars(request)["worker"]

	queue, err := s.queueFor(worker)
	if err != nil {
		http.Error(writer, "failed to open queue", http.StatusInternalServerError)
		return
	}

	stats, err := queue.Stats(request.Context())
	if err != nil {
		http.Error(writer, "failed to read stats", http.StatusInternalServerError)
		return
	}

	writeJSON(writer, http.StatusOK, stats)
}

func (s *Server) handleDeadletterList(writer http.ResponseWriter, request *http.Request) {
	worker := mux.Vars(request)["worker"]

	queue, err := s.queueFor(worker)
	if err != nil {
		http.Error(writer, "failed to open queue", http.StatusInternalServerError)
		return
	}

	entries, err := queue.DeadletterList(request.Context())
	if err != nil {
		http.Error(writer, "failed to list deadletter", http.StatusInternalServerError)
		return
	}

	response := DeadletterListResponse{Items: make([]DeadletterItemResponse, 0, len(entries))}
	for _, entry := range entries {
		response.Items = append(response.Items, deadletterItem(entry))
	}

	writeJSON(writer, http.StatusOK, response)
}

func (s *Server) handleDeadletterRequeue(writer http.ResponseWriter, request *http.Request) {
	worker := mux.Vars(request)["worker"]

	var requeueRequest RequeueRequest
	if request.ContentLength > 0 {
		if err := json.NewDecoder(request.Body).Decode(&requeueRequest); err != nil {
			http.Error(writer, "invalid JSON body", http.StatusBadRequest)
			return
		}
	}

	queue, err := s.queueFor(worker)
	if err != nil {
		http.Error(writer, "failed to open queue", http.StatusInternalServerError)
		return
	}

	requeued, err := queue.DeadletterRequeue(request.Context(), requeueRequest.TaskID)
	if err != nil {
		http.Error(writer, "failed to requeue", http.StatusInternalServerError)
		return
	}

	s.logRequest(request).Info("deadletter requeued", "worker", worker, "task_id", requeueRequest.TaskID, "count", requeued)
	writeJSON(writer, http.StatusOK, RequeueResponse{Requeued: requeued})
}

func (s *Server) logRequest(request *http.Request) *slog.Logger {
	requestID, _ := observability.RequestIDFromContext(request.Context())
	return s.logger.With("request_id", requestID)
}

func writeJSON(writer http.ResponseWriter, status int, v any) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	_ = json.NewEncoder(writer).Encode(v)
}
