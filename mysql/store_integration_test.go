//go:build integration

package mysql_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	_ "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/velmie/netq"
	"github.com/velmie/netq/mysql"
)

func TestStoreEnqueueDequeueCompleteIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test disabled in short mode")
	}

	ctx := context.Background()
	container, db := startMySQLContainer(t, ctx)
	t.Cleanup(func() {
		_ = db.Close()
		_ = container.Terminate(ctx)
	})

	setupSchema(t, ctx, db)

	store, err := mysql.NewStore(db)
	require.NoError(t, err)

	ids := enqueueRequests(t, ctx, db, store,
		netq.Get("https://example.com/a", netq.WithParams(map[string]string{"q": "1"})),
		netq.Post("https://example.com/b", []byte(`{"id":2}`), netq.WithHeader("X-Trace", "abc")),
		netq.Delete("https://example.com/c", netq.WithTimeout(time.Second), netq.WithTTL(time.Minute)),
	)
	require.Len(t, ids, 3)
	require.Less(t, ids[0], ids[1])
	require.Less(t, ids[1], ids[2])

	batch, err := store.DequeueBatch(ctx, netq.DequeueOptions{Limit: 2})
	require.NoError(t, err)
	require.Len(t, batch, 2)
	require.Equal(t, ids[0], batch[0].ID)
	require.Equal(t, "https://example.com/a?q=1", batch[0].URL)
	require.Equal(t, netq.MethodPost, batch[1].Method)
	require.Equal(t, "abc", batch[1].Headers["X-Trace"])
	require.Equal(t, "application/json", batch[1].Headers["Content-Type"])
	require.JSONEq(t, `{"id":2}`, string(batch[1].Body))
	require.Equal(t, netq.DefaultTimeout, batch[0].Timeout)

	rest, err := store.DequeueBatch(ctx, netq.DequeueOptions{Limit: 2, AfterID: batch[1].ID})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	require.Equal(t, time.Second, rest[0].Timeout)
	require.Equal(t, time.Minute, rest[0].TTL)

	require.NoError(t, store.Complete(ctx, netq.Completion{
		Request: batch[1],
		Outcome: netq.SucceededOutcome(201, map[string]string{"Content-Type": "text/plain"}, []byte("created"), netq.Timing{Total: 3 * time.Millisecond}),
	}))

	resp, err := store.ReadResponse(ctx, batch[1].ID)
	require.NoError(t, err)
	require.Equal(t, netq.StatusSuccess, resp.Status)
	require.Equal(t, 201, resp.StatusCode)
	require.Equal(t, "text/plain", resp.ContentType)
	require.Equal(t, []byte("created"), resp.Body)
	require.Equal(t, 3*time.Millisecond, resp.Timing.Total)
	require.WithinDuration(t, resp.CreatedAt.Add(netq.DefaultTTL), resp.ExpiresAt, time.Millisecond)

	exists, err := store.RequestExists(ctx, batch[1].ID)
	require.NoError(t, err)
	require.False(t, exists)

	pending, err := store.PendingCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, pending)

	err = store.Complete(ctx, netq.Completion{Request: batch[1], Outcome: netq.FailedOutcome(errors.New("late"), netq.Timing{})})
	require.ErrorIs(t, err, netq.ErrAlreadyCompleted)
}

func TestStoreFailedAndTimedOutResponsesIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test disabled in short mode")
	}

	ctx := context.Background()
	container, db := startMySQLContainer(t, ctx)
	t.Cleanup(func() {
		_ = db.Close()
		_ = container.Terminate(ctx)
	})

	setupSchema(t, ctx, db)

	store, err := mysql.NewStore(db)
	require.NoError(t, err)

	ids := enqueueRequests(t, ctx, db, store,
		netq.Get("http://127.0.0.1:1/refused"),
		netq.Get("https://example.com/slow", netq.WithTimeout(50*time.Millisecond)),
	)

	batch, err := store.DequeueBatch(ctx, netq.DequeueOptions{Limit: 10})
	require.NoError(t, err)
	require.Len(t, batch, 2)

	require.NoError(t, store.Complete(ctx, netq.Completion{
		Request: batch[0],
		Outcome: netq.FailedOutcome(errors.New("connection refused"), netq.Timing{}),
	}))
	require.NoError(t, store.Complete(ctx, netq.Completion{
		Request: batch[1],
		Outcome: netq.TimedOutOutcome(50*time.Millisecond, netq.Timing{Total: 51 * time.Millisecond}),
	}))

	failed, err := store.ReadResponse(ctx, ids[0])
	require.NoError(t, err)
	require.Equal(t, netq.StatusError, failed.Status)
	require.Equal(t, "connection refused", failed.Error)
	require.Zero(t, failed.StatusCode)
	require.Nil(t, failed.Body)

	timedOut, err := store.ReadResponse(ctx, ids[1])
	require.NoError(t, err)
	require.Equal(t, netq.StatusTimeout, timedOut.Status)
	require.True(t, timedOut.TimedOut)
	require.Contains(t, timedOut.Error, "Timeout of 50 ms reached")
}

func TestStoreRequestDeletedInFlightIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test disabled in short mode")
	}

	ctx := context.Background()
	container, db := startMySQLContainer(t, ctx)
	t.Cleanup(func() {
		_ = db.Close()
		_ = container.Terminate(ctx)
	})

	setupSchema(t, ctx, db)

	store, err := mysql.NewStore(db)
	require.NoError(t, err)

	ids := enqueueRequests(t, ctx, db, store, netq.Get("https://example.com"))
	batch, err := store.DequeueBatch(ctx, netq.DequeueOptions{Limit: 1})
	require.NoError(t, err)
	require.Len(t, batch, 1)

	require.NoError(t, store.DeleteRequest(ctx, ids[0]))
	require.NoError(t, store.Complete(ctx, netq.Completion{
		Request: batch[0],
		Outcome: netq.SucceededOutcome(200, nil, nil, netq.Timing{}),
	}))

	resp, err := store.ReadResponse(ctx, ids[0])
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
}

func TestStoreOversizedResponseLeavesQueueIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test disabled in short mode")
	}

	ctx := context.Background()
	container, db := startMySQLContainer(t, ctx)
	t.Cleanup(func() {
		_ = db.Close()
		_ = container.Terminate(ctx)
	})

	setupSchema(t, ctx, db)

	store, err := mysql.NewStore(db)
	require.NoError(t, err)

	ids := enqueueRequests(t, ctx, db, store,
		netq.Get("https://example.com/long-type"),
		netq.Get("https://example.com/far-expiry", netq.WithTTL(netq.MaxTTL)),
	)
	batch, err := store.DequeueBatch(ctx, netq.DequeueOptions{Limit: 2})
	require.NoError(t, err)
	require.Len(t, batch, 2)

	longType := "text/plain; charset=" + strings.Repeat("x", 300)
	require.NoError(t, store.Complete(ctx, netq.Completion{
		Request: batch[0],
		Outcome: netq.SucceededOutcome(200, map[string]string{"Content-Type": longType}, []byte("ok"), netq.Timing{}),
	}))
	resp, err := store.ReadResponse(ctx, ids[0])
	require.NoError(t, err)
	require.Equal(t, netq.StatusSuccess, resp.Status)
	require.Equal(t, longType[:255], resp.ContentType)

	require.NoError(t, store.Complete(ctx, netq.Completion{
		Request: batch[1],
		Outcome: netq.SucceededOutcome(200, nil, nil, netq.Timing{}),
	}))
	resp, err = store.ReadResponse(ctx, ids[1])
	require.NoError(t, err)
	require.WithinDuration(t, resp.CreatedAt.Add(netq.MaxTTL), resp.ExpiresAt, time.Millisecond)
	require.Zero(t, countRows(t, ctx, db, "netq_request_queue"))
}

func TestDispatcherRecordsUnstorableResponseOnceIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test disabled in short mode")
	}

	ctx := context.Background()
	container, db := startMySQLContainer(t, ctx)
	t.Cleanup(func() {
		_ = db.Close()
		_ = container.Terminate(ctx)
	})

	setupSchema(t, ctx, db)
	_, err := db.ExecContext(ctx, "ALTER TABLE netq_response MODIFY content_type VARCHAR(8) NULL")
	require.NoError(t, err)

	store, err := mysql.NewStore(db)
	require.NoError(t, err)

	ids := enqueueRequests(t, ctx, db, store, netq.Post("https://example.com/charge", []byte(`{"amount":1}`)))

	var sent atomic.Int32
	engine := netq.NewEngine(netq.TransportFunc(func(context.Context, netq.Request) netq.Outcome {
		sent.Add(1)
		return netq.SucceededOutcome(200, map[string]string{"Content-Type": "application/json"}, []byte(`{}`), netq.Timing{})
	}))
	dispatcher := netq.NewDispatcher(store, engine, netq.WithoutReaper())

	for i := 0; i < 3; i++ {
		_, err := dispatcher.RunCycle(ctx)
		require.NoError(t, err)
	}
	require.EqualValues(t, 1, sent.Load())

	resp, err := store.ReadResponse(ctx, ids[0])
	require.NoError(t, err)
	require.Equal(t, netq.StatusError, resp.Status)
	require.Contains(t, resp.Error, "response could not be stored")

	exists, err := store.RequestExists(ctx, ids[0])
	require.NoError(t, err)
	require.False(t, exists)
}

func TestStoreReadResponseNotFoundIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test disabled in short mode")
	}

	ctx := context.Background()
	container, db := startMySQLContainer(t, ctx)
	t.Cleanup(func() {
		_ = db.Close()
		_ = container.Terminate(ctx)
	})

	setupSchema(t, ctx, db)

	store, err := mysql.NewStore(db)
	require.NoError(t, err)

	_, err = store.ReadResponse(ctx, 999)
	require.ErrorIs(t, err, netq.ErrNotFound)

	exists, err := store.RequestExists(ctx, 999)
	require.NoError(t, err)
	require.False(t, exists)
}

func TestStoreRollbackDiscardsRequestIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test disabled in short mode")
	}

	ctx := context.Background()
	container, db := startMySQLContainer(t, ctx)
	t.Cleanup(func() {
		_ = db.Close()
		_ = container.Terminate(ctx)
	})

	setupSchema(t, ctx, db)

	store, err := mysql.NewStore(db)
	require.NoError(t, err)

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	_, err = store.Enqueue(ctx, tx, netq.Get("https://example.com"))
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	pending, err := store.PendingCount(ctx)
	require.NoError(t, err)
	require.Zero(t, pending)
	require.Zero(t, countRows(t, ctx, db, "netq_wake"))
}

func TestStoreClearQueueKeepsSequenceIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test disabled in short mode")
	}

	ctx := context.Background()
	container, db := startMySQLContainer(t, ctx)
	t.Cleanup(func() {
		_ = db.Close()
		_ = container.Terminate(ctx)
	})

	setupSchema(t, ctx, db)

	store, err := mysql.NewStore(db)
	require.NoError(t, err)

	first := enqueueRequests(t, ctx, db, store, netq.Get("https://example.com/1"), netq.Get("https://example.com/2"))
	require.NoError(t, store.ClearQueue(ctx))

	pending, err := store.PendingCount(ctx)
	require.NoError(t, err)
	require.Zero(t, pending)

	next := enqueueRequests(t, ctx, db, store, netq.Get("https://example.com/3"))
	require.Greater(t, next[0], first[1])
}

func TestStoreRequireWorkerIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test disabled in short mode")
	}

	ctx := context.Background()
	container, db := startMySQLContainer(t, ctx)
	t.Cleanup(func() {
		_ = db.Close()
		_ = container.Terminate(ctx)
	})

	setupSchema(t, ctx, db)

	store, err := mysql.NewStore(db, mysql.WithRequireWorker(true))
	require.NoError(t, err)

	_, err = store.Enqueue(ctx, db, netq.Get("https://example.com"))
	require.ErrorIs(t, err, netq.ErrWorkerDown)

	require.NoError(t, store.Liveness().Beat(ctx, "worker-1"))
	_, err = store.Enqueue(ctx, db, netq.Get("https://example.com"))
	require.NoError(t, err)
}

func TestLivenessIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test disabled in short mode")
	}

	ctx := context.Background()
	container, db := startMySQLContainer(t, ctx)
	t.Cleanup(func() {
		_ = db.Close()
		_ = container.Terminate(ctx)
	})

	setupSchema(t, ctx, db)

	liveness, err := mysql.NewLiveness(db, mysql.WithHeartbeatTimeout(time.Minute))
	require.NoError(t, err)

	up, err := liveness.IsWorkerUp(ctx)
	require.NoError(t, err)
	require.False(t, up)
	require.ErrorIs(t, liveness.RequestRestart(ctx), netq.ErrWorkerDown)

	require.NoError(t, liveness.Beat(ctx, "worker-1"))
	first, err := liveness.State(ctx)
	require.NoError(t, err)
	require.Equal(t, "worker-1", first.Instance)

	require.NoError(t, liveness.Beat(ctx, "worker-1"))
	second, err := liveness.State(ctx)
	require.NoError(t, err)
	require.True(t, first.StartedAt.Equal(second.StartedAt))
	require.NoError(t, liveness.CheckWorkerIsUp(ctx))

	require.NoError(t, liveness.RequestRestart(ctx))
	require.NoError(t, liveness.RequestRestart(ctx))
	taken, err := liveness.TakeRestart(ctx)
	require.NoError(t, err)
	require.True(t, taken)
	taken, err = liveness.TakeRestart(ctx)
	require.NoError(t, err)
	require.False(t, taken)

	require.NoError(t, liveness.Exit(ctx, "worker-1"))
	require.ErrorIs(t, liveness.CheckWorkerIsUp(ctx), netq.ErrWorkerDown)

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	go func() {
		time.Sleep(100 * time.Millisecond)
		_ = liveness.Beat(context.Background(), "worker-2")
	}()
	require.NoError(t, liveness.WaitUntilRunning(waitCtx, 20*time.Millisecond))
}

func TestWakeWatcherIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test disabled in short mode")
	}

	ctx := context.Background()
	container, db := startMySQLContainer(t, ctx)
	t.Cleanup(func() {
		_ = db.Close()
		_ = container.Terminate(ctx)
	})

	setupSchema(t, ctx, db)

	store, err := mysql.NewStore(db)
	require.NoError(t, err)
	wake := netq.NewWake()
	watcher, err := mysql.NewWakeWatcher(db, wake, mysql.WakeWatcherConfig{})
	require.NoError(t, err)

	woke, err := watcher.Poll(ctx)
	require.NoError(t, err)
	require.False(t, woke)

	enqueueRequests(t, ctx, db, store, netq.Get("https://example.com/1"), netq.Get("https://example.com/2"))
	require.Equal(t, 2, countRows(t, ctx, db, "netq_wake"))

	woke, err = watcher.Poll(ctx)
	require.NoError(t, err)
	require.True(t, woke)
	require.Zero(t, countRows(t, ctx, db, "netq_wake"))

	signalled, err := wake.Wait(ctx, 0)
	require.NoError(t, err)
	require.True(t, signalled)

	require.NoError(t, store.Wake(ctx, nil))
	woke, err = watcher.Poll(ctx)
	require.NoError(t, err)
	require.True(t, woke)
}

func startMySQLContainer(t *testing.T, ctx context.Context) (testcontainers.Container, *sql.DB) {
	t.Helper()
	port := nat.Port("3306/tcp")
	req := testcontainers.ContainerRequest{
		Image:        "mysql:8.0.36",
		ExposedPorts: []string{string(port)},
		Env: map[string]string{
			"MYSQL_ROOT_PASSWORD": "secret",
			"MYSQL_DATABASE":      "netq",
		},
		WaitingFor: wait.ForSQL(port, "mysql", func(host string, port nat.Port) string {
			return fmt.Sprintf("root:secret@tcp(%s:%s)/netq?parseTime=true&multiStatements=true", host, port.Port())
		}).WithStartupTimeout(2 * time.Minute),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("start mysql container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("resolve host: %v", err)
	}
	mappedPort, err := container.MappedPort(ctx, port)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("resolve port: %v", err)
	}

	dsn, err := mysql.NormalizeDSN(fmt.Sprintf("root:secret@tcp(%s:%s)/netq?multiStatements=true", host, mappedPort.Port()))
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("normalize dsn: %v", err)
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("open db: %v", err)
	}
	return container, db
}

func setupSchema(t *testing.T, ctx context.Context, db *sql.DB) {
	t.Helper()
	schema, err := mysql.Schema("netq")
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, schema)
	require.NoError(t, err)
}

func enqueueRequests(t *testing.T, ctx context.Context, db *sql.DB, store *mysql.Store, reqs ...netq.Request) []netq.ID {
	t.Helper()
	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	ids := make([]netq.ID, 0, len(reqs))
	for _, req := range reqs {
		id, err := store.Enqueue(ctx, tx, req)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	require.NoError(t, tx.Commit())
	return ids
}

func countRows(t *testing.T, ctx context.Context, db *sql.DB, table string) int {
	t.Helper()
	var count int
	err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count)
	require.NoError(t, err)
	return count
}
