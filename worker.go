package netq

import (
	"context"
	"errors"
	"sync"
	"time"
)

// DefaultRestartDelay is how long a Worker waits before restarting a failed runner.
const DefaultRestartDelay = time.Second

// WorkerStatus is the lifecycle state of a Worker.
type WorkerStatus int32

const (
	// WorkerNotYet means the runner has not been started.
	WorkerNotYet WorkerStatus = iota
	// WorkerRunning means the runner is executing.
	WorkerRunning
	// WorkerExited means the runner stopped and has not been restarted yet.
	WorkerExited
)

// String returns the status name.
func (s WorkerStatus) String() string {
	switch s {
	case WorkerRunning:
		return "running"
	case WorkerExited:
		return "exited"
	default:
		return "not_yet"
	}
}

// Runner is a long-running loop such as a Dispatcher.
type Runner interface {
	Run(ctx context.Context) error
}

// WorkerConfig defines how the Worker supervises its runner.
type WorkerConfig struct {
	RestartDelay time.Duration
	Logger       Logger
}

func (c WorkerConfig) withDefaults() WorkerConfig {
	if c.RestartDelay <= 0 {
		c.RestartDelay = DefaultRestartDelay
	}
	if c.Logger == nil {
		c.Logger = NopLogger{}
	}

	return c
}

// WorkerOption configures the Worker.
type WorkerOption func(*WorkerConfig)

// WithRestartDelay sets the pause before a failed runner is restarted.
func WithRestartDelay(delay time.Duration) WorkerOption {
	return func(c *WorkerConfig) {
		c.RestartDelay = delay
	}
}

// WithWorkerLogger sets the worker logger.
func WithWorkerLogger(logger Logger) WorkerOption {
	return func(c *WorkerConfig) {
		c.Logger = logger
	}
}

// Worker supervises a Runner: it restarts it after failures and on request,
// and exposes its liveness.
type Worker struct {
	runner Runner
	cfg    WorkerConfig
	logger Logger

	mu        sync.Mutex
	status    WorkerStatus
	changed   chan struct{}
	cancel    context.CancelFunc
	restartRq bool
}

// NewWorker constructs a Worker around runner.
func NewWorker(runner Runner, opts ...WorkerOption) *Worker {
	if runner == nil {
		panic("netq: nil Runner")
	}

	var cfg WorkerConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()

	return &Worker{
		runner:  runner,
		cfg:     cfg,
		logger:  LoggerWith(cfg.Logger, "component", "worker"),
		changed: make(chan struct{}),
	}
}

// Run starts the runner and keeps it running until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	defer w.setStatus(WorkerExited)

	for {
		runCtx, cancel := context.WithCancel(ctx)
		w.mu.Lock()
		w.cancel = cancel
		w.restartRq = false
		w.mu.Unlock()
		w.setStatus(WorkerRunning)

		err := w.runner.Run(runCtx)
		cancel()

		w.mu.Lock()
		w.cancel = nil
		restart := w.restartRq
		w.mu.Unlock()

		if ctx.Err() != nil {
			return nil
		}
		if restart {
			w.logger.Info("netq worker restarting")

			continue
		}

		w.setStatus(WorkerExited)
		if err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Error("netq worker exited", "err", err, "restart_in", w.cfg.RestartDelay)
		} else {
			w.logger.Warn("netq worker exited unexpectedly", "restart_in", w.cfg.RestartDelay)
		}
		if err := sleep(ctx, w.cfg.RestartDelay); err != nil {
			return nil
		}
	}
}

// Restart stops the current runner and starts a new one.
// In-flight work of the stopped runner is abandoned.
// It reports false when no runner is active.
func (w *Worker) Restart() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel == nil {
		return false
	}
	w.restartRq = true
	w.cancel()

	return true
}

// Status returns the lifecycle state.
func (w *Worker) Status() WorkerStatus {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.status
}

// IsUp reports whether the runner is executing.
func (w *Worker) IsUp() bool {
	return w.Status() == WorkerRunning
}

// CheckUp returns ErrWorkerDown unless the runner is executing.
func (w *Worker) CheckUp() error {
	if !w.IsUp() {
		return ErrWorkerDown
	}

	return nil
}

// WaitUntilRunning blocks until the runner is executing or ctx is done.
func (w *Worker) WaitUntilRunning(ctx context.Context) error {
	for {
		w.mu.Lock()
		status, changed := w.status, w.changed
		w.mu.Unlock()

		if status == WorkerRunning {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}

func (w *Worker) setStatus(status WorkerStatus) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.status == status {
		return
	}
	w.status = status
	close(w.changed)
	w.changed = make(chan struct{})
}
