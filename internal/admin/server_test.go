package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/velmie/netq"
	"github.com/velmie/netq/internal/stats"
	"github.com/velmie/netq/memstore"
)

type fakeSupervisor struct {
	status    netq.WorkerStatus
	restarted int
}

func (f *fakeSupervisor) Restart() bool {
	if f.status != netq.WorkerRunning {
		return false
	}
	f.restarted++

	return true
}

func (f *fakeSupervisor) Status() netq.WorkerStatus { return f.status }

func (f *fakeSupervisor) CheckUp() error {
	if f.status != netq.WorkerRunning {
		return netq.ErrWorkerDown
	}

	return nil
}

func do(t *testing.T, s *Server, method, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	return rec, body
}

func TestWake(t *testing.T) {
	wake := netq.NewWake()
	s := New(Config{Wake: wake})

	rec, body := do(t, s, http.MethodPost, "/wake")
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, "woken", body["status"])

	signalled, err := wake.Wait(context.Background(), 0)
	require.NoError(t, err)
	require.True(t, signalled)
}

func TestRestartAndHealth(t *testing.T) {
	worker := &fakeSupervisor{status: netq.WorkerRunning}
	s := New(Config{Worker: worker})

	rec, body := do(t, s, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "running", body["status"])

	rec, _ = do(t, s, http.MethodGet, "/readyz")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, s, http.MethodPost, "/restart")
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, 1, worker.restarted)

	worker.status = netq.WorkerExited
	rec, body = do(t, s, http.MethodGet, "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "exited", body["status"])
	require.Equal(t, netq.ErrWorkerDown.Error(), body["error"])

	rec, _ = do(t, s, http.MethodPost, "/restart")
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestResponses(t *testing.T) {
	store := memstore.New()
	s := New(Config{Collector: netq.NewCollector(store, netq.WithPollInterval(time.Millisecond))})
	ctx := context.Background()

	id, err := store.Enqueue(ctx, netq.Get("https://example.com"))
	require.NoError(t, err)

	rec, body := do(t, s, http.MethodGet, "/responses/"+id.String())
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "PENDING", body["status"])
	require.NotContains(t, body, "response")

	rec, body = do(t, s, http.MethodGet, "/responses/"+id.String()+"?blocking=true&max_wait=5ms")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "PENDING", body["status"])

	reqs, err := store.DequeueBatch(ctx, netq.DequeueOptions{Limit: 1})
	require.NoError(t, err)
	outcome := netq.SucceededOutcome(201, map[string]string{"Content-Type": "text/plain"}, []byte("created"), netq.Timing{})
	require.NoError(t, store.Complete(ctx, netq.Completion{Request: reqs[0], Outcome: outcome}))

	rec, body = do(t, s, http.MethodGet, "/responses/"+id.String())
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "SUCCESS", body["status"])
	require.Equal(t, "ok", body["message"])
	resp := body["response"].(map[string]any)
	require.EqualValues(t, 201, resp["status_code"])
	require.Equal(t, "created", resp["body"])
	require.Equal(t, "success", resp["status"])

	rec, body = do(t, s, http.MethodGet, "/responses/42")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "NOT_FOUND", body["status"])

	rec, _ = do(t, s, http.MethodGet, "/responses/abc")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = do(t, s, http.MethodGet, "/responses/1?blocking=maybe")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = do(t, s, http.MethodGet, "/responses/1?max_wait=-1s")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStats(t *testing.T) {
	counters := stats.New(clockwork.NewFakeClock())
	counters.AddSucceeded(2)
	counters.SetPending(5)
	s := New(Config{Stats: counters})

	rec, body := do(t, s, http.MethodGet, "/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	require.EqualValues(t, 2, body["succeeded"])
	require.EqualValues(t, 5, body["pending"])
}

func TestDisabledRoutes(t *testing.T) {
	s := New(Config{})

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/wake", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
