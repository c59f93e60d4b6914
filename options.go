package netq

import (
	"context"
	"time"
)

const (
	// DefaultBatchSize is the number of requests dequeued per batch.
	DefaultBatchSize = 200
	// DefaultIdleTimeout is how long an idle dispatcher waits for a wake before polling again.
	DefaultIdleTimeout = time.Second

	defaultPendingCheck = 0
)

// PersistFailureHandler is called when an outcome cannot be recorded.
type PersistFailureHandler func(ctx context.Context, completion Completion, err error)

// DispatcherConfig defines how the Dispatcher drains the queue.
type DispatcherConfig struct {
	BatchSize    int
	IdleTimeout  time.Duration
	Wake         *Wake
	Reaper       *Reaper
	DisableReap  bool
	Clock        Clock
	ErrorHandler PersistFailureHandler
	Logger       Logger
	Metrics      Metrics
	// PendingInterval is the minimum interval between pending count samples. Zero disables sampling.
	PendingInterval time.Duration
}

func (c DispatcherConfig) withDefaults() DispatcherConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.Wake == nil {
		c.Wake = NewWake()
	}
	if c.Clock == nil {
		c.Clock = SystemClock{}
	}
	if c.Logger == nil {
		c.Logger = NopLogger{}
	}
	if c.Metrics == nil {
		c.Metrics = NopMetrics{}
	}
	if c.PendingInterval <= 0 {
		c.PendingInterval = defaultPendingCheck
	}

	return c
}

// DispatcherOption configures Dispatcher behavior.
type DispatcherOption func(*DispatcherConfig)

// WithBatchSize sets the number of requests dequeued per batch.
func WithBatchSize(size int) DispatcherOption {
	return func(c *DispatcherConfig) {
		c.BatchSize = size
	}
}

// WithIdleTimeout sets how long the dispatcher idles before polling without a wake.
func WithIdleTimeout(timeout time.Duration) DispatcherOption {
	return func(c *DispatcherConfig) {
		c.IdleTimeout = timeout
	}
}

// WithWake sets the wake signal the dispatcher idles on.
func WithWake(wake *Wake) DispatcherOption {
	return func(c *DispatcherConfig) {
		c.Wake = wake
	}
}

// WithReaper sets the reaper run after every drain.
// By default a reaper is built when the store implements Purger.
func WithReaper(reaper *Reaper) DispatcherOption {
	return func(c *DispatcherConfig) {
		c.Reaper = reaper
	}
}

// WithoutReaper disables expiry inside the dispatcher, for deployments that run cleanup separately.
func WithoutReaper() DispatcherOption {
	return func(c *DispatcherConfig) {
		c.DisableReap = true
	}
}

// WithClock sets the dispatcher clock.
func WithClock(clock Clock) DispatcherOption {
	return func(c *DispatcherConfig) {
		c.Clock = clock
	}
}

// WithErrorHandler registers a callback for outcomes that could not be recorded.
func WithErrorHandler(handler PersistFailureHandler) DispatcherOption {
	return func(c *DispatcherConfig) {
		c.ErrorHandler = handler
	}
}

// WithLogger sets the dispatcher logger.
func WithLogger(logger Logger) DispatcherOption {
	return func(c *DispatcherConfig) {
		c.Logger = logger
	}
}

// WithMetrics sets the dispatcher metrics recorder.
func WithMetrics(metrics Metrics) DispatcherOption {
	return func(c *DispatcherConfig) {
		c.Metrics = metrics
	}
}

// WithPendingInterval sets the minimum interval between pending count samples.
// Use a positive value to enable sampling or zero to keep it disabled.
// The default is disabled.
func WithPendingInterval(interval time.Duration) DispatcherOption {
	return func(c *DispatcherConfig) {
		c.PendingInterval = interval
	}
}
