package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duraq/duraq/internal/config"
	"github.com/duraq/duraq/internal/observability"
	"github.com/duraq/duraq/internal/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	cfg := config.Default()
	cfg.Workspace = t.TempDir()
	require.NoError(t, cfg.Validate())

	return NewServer(cfg, observability.NewLogger("test"))
}

func doJSON(t *testing.T, server *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	var request *http.Request
	if body == "" {
		request = httptest.NewRequest(method, target, nil)
	} else {
		request = httptest.NewRequest(method, target, strings.NewReader(body))
	}

	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, request)

	return recorder
}

func TestHealthAndReady(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)

	assert.Equal(t, http.StatusOK, doJSON(t, server, http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusOK, doJSON(t, server, http.MethodGet, "/readyz", "").Code)
}

func TestEnqueueAndStats(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)

	created := doJSON(t, server, http.MethodPost, "/v1/queues/enrich/tasks",
		`{"task_id":"t1","payload":{"x":1}}`)
	require.Equal(t, http.StatusCreated, created.Code)

	duplicate := doJSON(t, server, http.MethodPost, "/v1/queues/enrich/tasks",
		`{"task_id":"t1","payload":{"x":1}}`)
	require.Equal(t, http.StatusOK, duplicate.Code)

	var response EnqueueTaskResponse
	require.NoError(t, json.Unmarshal(duplicate.Body.Bytes(), &response))
	assert.False(t, response.Enqueued)

	statsRec := doJSON(t, server, http.MethodGet, "/v1/queues/enrich/stats", "")
	require.Equal(t, http.StatusOK, statsRec.Code)

	var stats store.Stats
	require.NoError(t, json.Unmarshal(statsRec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.InboxUnleased)
}

func TestEnqueueRejectsInvalidTask(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)

	rec := doJSON(t, server, http.MethodPost, "/v1/queues/enrich/tasks", `{"payload":{}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, server, http.MethodPost, "/v1/queues/enrich/tasks", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeadletterListAndRequeue(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)

	// Drive a task into the deadletter directly through the store.
	queue, err := server.queueFor("enrich")
	require.NoError(t, err)

	ctx := context.Background()
	_, err = queue.Enqueue(ctx, store.Task{TaskID: "t1", MaxAttempts: 1})
	require.NoError(t, err)

	lt, err := queue.PollLeasable(ctx, "tester", config.Default().LeaseDuration.Std())
	require.NoError(t, err)
	require.NotNil(t, lt)
	require.NoError(t, queue.Fail(ctx, lt, assert.AnError))

	listRec := doJSON(t, server, http.MethodGet, "/v1/queues/enrich/deadletter", "")
	require.Equal(t, http.StatusOK, listRec.Code)

	var list DeadletterListResponse
	require.NoError(t, json.Unmarshal(listRec.Body.Bytes(), &list))
	require.Len(t, list.Items, 1)
	assert.Equal(t, "t1", list.Items[0].TaskID)

	requeueRec := doJSON(t, server, http.MethodPost, "/v1/queues/enrich/deadletter/requeue",
		`{"task_id":"t1"}`)
	require.Equal(t, http.StatusOK, requeueRec.Code)

	var requeued RequeueResponse
	require.NoError(t, json.Unmarshal(requeueRec.Body.Bytes(), &requeued))
	assert.Equal(t, 1, requeued.Requeued)
}

func TestRequestIDPropagated(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)

	rec := doJSON(t, server, http.MethodGet, "/healthz", "")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
