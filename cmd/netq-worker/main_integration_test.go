//go:build integration

package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/velmie/netq"
	"github.com/velmie/netq/cmd/internal/testutil"
	"github.com/velmie/netq/internal/config"
)

func TestWorkerProcessesQueueIntegration(t *testing.T) {
	ctx := context.Background()
	env := testutil.StartEnv(t, ctx)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.DSN = env.HostDSN
	cfg.Worker.Instance = "it-worker"
	cfg.Worker.HeartbeatInterval = 50 * time.Millisecond
	cfg.Wake.PollInterval = 10 * time.Millisecond
	cfg.Stats.Interval = 0

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- run(runCtx, cfg, logger) }()

	store := env.Store(t)
	liveness := store.Liveness()
	waitCtx, waitCancel := context.WithTimeout(ctx, 30*time.Second)
	defer waitCancel()
	require.NoError(t, liveness.WaitUntilRunning(waitCtx, 20*time.Millisecond))

	ids := env.Enqueue(t, ctx, store, netq.Post(server.URL+"/echo", []byte(`{"n":1}`)))

	collection, err := netq.NewCollector(store).Collect(ctx, ids[0], netq.CollectOptions{Blocking: true, MaxWait: 10 * time.Second})
	require.NoError(t, err)
	require.Equal(t, netq.CollectSuccess, collection.Status)
	require.Equal(t, 200, collection.Response.StatusCode)
	require.JSONEq(t, `{"n":1}`, string(collection.Response.Body))

	cancel()
	require.NoError(t, <-done)

	state, err := liveness.State(ctx)
	require.NoError(t, err)
	require.Equal(t, "it-worker", state.Instance)
	require.False(t, state.ExitedAt.IsZero())
}
