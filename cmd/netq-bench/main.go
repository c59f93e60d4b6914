// Command netq-bench measures dispatcher throughput and enqueue-to-record latency.
//
// Producers enqueue requests while the dispatcher drains them against a local
// HTTP target. Without --dsn the in-memory store is used.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/velmie/netq"
	"github.com/velmie/netq/httpexec"
	"github.com/velmie/netq/internal/logging"
	"github.com/velmie/netq/internal/stats"
	"github.com/velmie/netq/memstore"
	"github.com/velmie/netq/mysql"
)

const (
	defaultRequests     = 10000
	defaultProducers    = 4
	defaultPayloadBytes = 256
	defaultDrainTimeout = 2 * time.Minute
	drainPoll           = 10 * time.Millisecond
)

var errDrainTimeout = errors.New("netq-bench: requests not drained before timeout")

type benchConfig struct {
	dsn          string
	prefix       string
	requests     int
	producers    int
	payloadBytes int
	batchSize    int
	maxInFlight  int
	startRate    float64
	targetDelay  time.Duration
	timeout      time.Duration
	drainTimeout time.Duration
	reset        bool
}

type result struct {
	Store         string        `json:"store"`
	Requests      int           `json:"requests"`
	Producers     int           `json:"producers"`
	BatchSize     int           `json:"batch_size"`
	MaxInFlight   int           `json:"max_in_flight"`
	PayloadBytes  int           `json:"payload_bytes"`
	TargetDelay   time.Duration `json:"target_delay"`
	Duration      time.Duration `json:"duration"`
	Throughput    float64       `json:"throughput_req_per_sec"`
	Succeeded     int64         `json:"succeeded"`
	Failed        int64         `json:"failed"`
	TimedOut      int64         `json:"timed_out"`
	PersistErrors int64         `json:"persist_errors"`
	LatencyP50Ms  float64       `json:"latency_p50_ms"`
	LatencyP95Ms  float64       `json:"latency_p95_ms"`
	LatencyP99Ms  float64       `json:"latency_p99_ms"`
	LatencyMaxMs  float64       `json:"latency_max_ms"`
	BatchP50Ms    float64       `json:"batch_p50_ms"`
	BatchP95Ms    float64       `json:"batch_p95_ms"`
	BatchMaxMs    float64       `json:"batch_max_ms"`
	Batches       int           `json:"batches"`
}

func main() {
	var (
		cfg      benchConfig
		jsonOut  bool
		logLevel string
	)

	fs := pflag.NewFlagSet("netq-bench", pflag.ExitOnError)
	fs.StringVar(&cfg.dsn, "dsn", "", "MySQL DSN (empty uses the in-memory store)")
	fs.StringVar(&cfg.prefix, "prefix", "netq_bench", "Table prefix (MySQL only)")
	fs.IntVar(&cfg.requests, "requests", defaultRequests, "Number of requests to enqueue")
	fs.IntVar(&cfg.producers, "producers", defaultProducers, "Concurrent producers")
	fs.IntVar(&cfg.payloadBytes, "payload-bytes", defaultPayloadBytes, "POST body size in bytes")
	fs.IntVar(&cfg.batchSize, "batch-size", netq.DefaultBatchSize, "Dispatcher batch size")
	fs.IntVar(&cfg.maxInFlight, "max-in-flight", 0, "Max concurrent exchanges (0 is unbounded)")
	fs.Float64Var(&cfg.startRate, "start-rate", 0, "Max exchanges started per second (0 is unlimited)")
	fs.DurationVar(&cfg.targetDelay, "target-delay", 0, "Delay added by the local target before it answers")
	fs.DurationVar(&cfg.timeout, "timeout", netq.DefaultTimeout, "Per request timeout")
	fs.DurationVar(&cfg.drainTimeout, "drain-timeout", defaultDrainTimeout, "Time to wait for the queue to drain")
	fs.BoolVar(&cfg.reset, "reset", true, "Create the tables and clear old rows (MySQL only)")
	fs.BoolVar(&jsonOut, "json", false, "Print JSON result")
	fs.StringVar(&logLevel, "log-level", "warn", "The log level (debug|info|warn|error)")
	_ = fs.Parse(os.Args[1:])

	logger, err := logging.New(logging.Options{Level: logLevel})
	if err != nil {
		exitErr(err)
	}

	res, err := run(context.Background(), cfg, logging.Adapt(logger))
	if err != nil {
		exitErr(err)
	}

	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			exitErr(err)
		}
		return
	}
	fmt.Println(res.String())
}

// benchStore is the queue under test plus its enqueue path.
type benchStore struct {
	netq.Store
	name    string
	enqueue func(ctx context.Context, req netq.Request) (netq.ID, error)
	close   func() error
}

func openStore(ctx context.Context, cfg benchConfig, wake *netq.Wake) (benchStore, error) {
	if cfg.dsn == "" {
		store := memstore.New(memstore.WithSignal(wake), memstore.WithRequestTimeout(cfg.timeout))
		return benchStore{
			Store:   store,
			name:    "memory",
			enqueue: store.Enqueue,
			close:   func() error { return nil },
		}, nil
	}

	dsn, err := mysql.NormalizeDSN(cfg.dsn)
	if err != nil {
		return benchStore{}, err
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return benchStore{}, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(cfg.producers + 4)
	store, err := mysql.NewStore(db, mysql.WithPrefix(cfg.prefix), mysql.WithRequestTimeout(cfg.timeout), mysql.WithWakeOnEnqueue(false))
	if err != nil {
		_ = db.Close()
		return benchStore{}, err
	}
	if cfg.reset {
		if err := resetTables(ctx, db, store, cfg.prefix); err != nil {
			_ = db.Close()
			return benchStore{}, err
		}
	}

	return benchStore{
		Store: store,
		name:  "mysql",
		enqueue: func(ctx context.Context, req netq.Request) (netq.ID, error) {
			id, err := store.Enqueue(ctx, db, req)
			if err == nil {
				wake.Signal()
			}
			return id, err
		},
		close: db.Close,
	}, nil
}

func resetTables(ctx context.Context, db *sql.DB, store *mysql.Store, prefix string) error {
	stmts, err := mysql.SchemaStatements(prefix)
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	if err := store.ClearQueue(ctx); err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, "DELETE FROM "+prefix+"_response"); err != nil {
		return fmt.Errorf("clear responses: %w", err)
	}

	return nil
}

func startTarget(delay time.Duration) (string, func(), error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", nil, fmt.Errorf("listen: %w", err)
	}
	srv := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if delay > 0 {
				time.Sleep(delay)
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"ok":true}`))
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() { _ = srv.Serve(ln) }()

	return "http://" + ln.Addr().String(), func() { _ = srv.Close() }, nil
}

func run(ctx context.Context, cfg benchConfig, log netq.Logger) (result, error) {
	target, stopTarget, err := startTarget(cfg.targetDelay)
	if err != nil {
		return result{}, err
	}
	defer stopTarget()

	wake := netq.NewWake()
	store, err := openStore(ctx, cfg, wake)
	if err != nil {
		return result{}, err
	}
	defer store.close()

	metrics := newBenchMetrics()
	engine := netq.NewEngine(httpexec.New(httpexec.WithDirect(), httpexec.WithLogger(log)),
		netq.WithMaxInFlight(cfg.maxInFlight),
		netq.WithStartRate(rate.Limit(cfg.startRate), max(1, cfg.producers)),
	)
	dispatcher := netq.NewDispatcher(store, engine,
		netq.WithBatchSize(cfg.batchSize),
		netq.WithWake(wake),
		netq.WithoutReaper(),
		netq.WithLogger(log),
		netq.WithMetrics(metrics),
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	dispatched := make(chan error, 1)
	go func() { dispatched <- dispatcher.Run(runCtx) }()

	payload := []byte(`{"pad":"` + strings.Repeat("x", max(0, cfg.payloadBytes-10)) + `"}`)
	latency := newDurationStats()
	enqueued := newEnqueueLog()

	start := time.Now()
	if err := produce(runCtx, cfg, store, target, payload, enqueued); err != nil {
		return result{}, err
	}
	if err := drain(runCtx, cfg, metrics); err != nil {
		return result{}, err
	}
	elapsed := time.Since(start)
	cancel()
	if err := <-dispatched; err != nil {
		return result{}, err
	}

	for id, at := range enqueued.snapshot() {
		resp, err := store.ReadResponse(ctx, id)
		if err != nil {
			return result{}, fmt.Errorf("read response %s: %w", id, err)
		}
		latency.Record(resp.CreatedAt.Sub(at))
	}

	return buildResult(cfg, store.name, elapsed, metrics, latency.Snapshot()), nil
}

func produce(ctx context.Context, cfg benchConfig, store benchStore, target string, payload []byte, log *enqueueLog) error {
	var next atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	for p := 0; p < max(1, cfg.producers); p++ {
		g.Go(func() error {
			for {
				n := next.Add(1)
				if n > int64(cfg.requests) {
					return nil
				}
				at := time.Now()
				id, err := store.enqueue(gctx, netq.Post(fmt.Sprintf("%s/r/%d", target, n), payload))
				if err != nil {
					return fmt.Errorf("enqueue: %w", err)
				}
				log.add(id, at)
			}
		})
	}

	return g.Wait()
}

func drain(ctx context.Context, cfg benchConfig, metrics *benchMetrics) error {
	deadline := time.Now().Add(cfg.drainTimeout)
	for metrics.completed() < int64(cfg.requests) {
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %d of %d", errDrainTimeout, metrics.completed(), cfg.requests)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(drainPoll):
		}
	}

	return nil
}

type enqueueLog struct {
	mu sync.Mutex
	at map[netq.ID]time.Time
}

func newEnqueueLog() *enqueueLog {
	return &enqueueLog{at: make(map[netq.ID]time.Time)}
}

func (l *enqueueLog) add(id netq.ID, at time.Time) {
	l.mu.Lock()
	l.at[id] = at
	l.mu.Unlock()
}

func (l *enqueueLog) snapshot() map[netq.ID]time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[netq.ID]time.Time, len(l.at))
	for id, at := range l.at {
		out[id] = at
	}

	return out
}

func buildResult(cfg benchConfig, storeName string, elapsed time.Duration, metrics *benchMetrics, lat durationSnapshot) result {
	counts := metrics.Snapshot()
	batches := metrics.batches.Snapshot()

	res := result{
		Store:         storeName,
		Requests:      cfg.requests,
		Producers:     cfg.producers,
		BatchSize:     cfg.batchSize,
		MaxInFlight:   cfg.maxInFlight,
		PayloadBytes:  cfg.payloadBytes,
		TargetDelay:   cfg.targetDelay,
		Duration:      elapsed,
		Succeeded:     counts.Succeeded,
		Failed:        counts.Failed,
		TimedOut:      counts.TimedOut,
		PersistErrors: counts.PersistErrors,
		LatencyP50Ms:  msFloat(lat.P50),
		LatencyP95Ms:  msFloat(lat.P95),
		LatencyP99Ms:  msFloat(lat.P99),
		LatencyMaxMs:  msFloat(lat.Max),
		BatchP50Ms:    msFloat(batches.P50),
		BatchP95Ms:    msFloat(batches.P95),
		BatchMaxMs:    msFloat(batches.Max),
		Batches:       batches.Count,
	}
	if elapsed > 0 {
		res.Throughput = float64(cfg.requests) / elapsed.Seconds()
	}

	return res
}

func (r result) String() string {
	return fmt.Sprintf(
		"store=%s requests=%d duration=%s throughput=%.1f req/s succeeded=%d failed=%d timed_out=%d latency p50=%.1fms p95=%.1fms p99=%.1fms max=%.1fms batches=%d",
		r.Store, r.Requests, r.Duration.Round(time.Millisecond), r.Throughput,
		r.Succeeded, r.Failed, r.TimedOut,
		r.LatencyP50Ms, r.LatencyP95Ms, r.LatencyP99Ms, r.LatencyMaxMs, r.Batches,
	)
}

func msFloat(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func exitErr(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

var _ netq.Metrics = (*benchMetrics)(nil)

// benchMetrics keeps the worker counters and every batch duration.
// Outcomes that failed to persist are also counted as succeeded, failed or timed out.
type benchMetrics struct {
	*stats.Counters
	batches *durationStats
}

func newBenchMetrics() *benchMetrics {
	return &benchMetrics{Counters: stats.New(nil), batches: newDurationStats()}
}

func (m *benchMetrics) ObserveBatchDuration(d time.Duration) {
	m.Counters.ObserveBatchDuration(d)
	m.batches.Record(d)
}

func (m *benchMetrics) completed() int64 {
	s := m.Snapshot()

	return s.Succeeded + s.Failed + s.TimedOut
}
