package netq

import (
	"context"
	"fmt"
)

// ReaperConfig defines how expired responses are purged.
type ReaperConfig struct {
	BatchSize int
	Logger    Logger
	Metrics   Metrics
}

func (c ReaperConfig) withDefaults() ReaperConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Logger == nil {
		c.Logger = NopLogger{}
	}
	if c.Metrics == nil {
		c.Metrics = NopMetrics{}
	}

	return c
}

// ReaperOption configures the Reaper.
type ReaperOption func(*ReaperConfig)

// WithReaperBatchSize sets how many responses one purge statement deletes.
func WithReaperBatchSize(size int) ReaperOption {
	return func(c *ReaperConfig) {
		c.BatchSize = size
	}
}

// WithReaperLogger sets the reaper logger.
func WithReaperLogger(logger Logger) ReaperOption {
	return func(c *ReaperConfig) {
		c.Logger = logger
	}
}

// WithReaperMetrics sets the reaper metrics recorder.
func WithReaperMetrics(metrics Metrics) ReaperOption {
	return func(c *ReaperConfig) {
		c.Metrics = metrics
	}
}

// Reaper deletes responses whose TTL has elapsed.
type Reaper struct {
	purger Purger
	cfg    ReaperConfig
}

// NewReaper constructs a Reaper over purger.
func NewReaper(purger Purger, opts ...ReaperOption) *Reaper {
	if purger == nil {
		panic("netq: nil Purger")
	}

	var cfg ReaperConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Reaper{purger: purger, cfg: cfg.withDefaults()}
}

// Pass purges expired responses in batches until a batch comes back short.
// It returns the number of deleted responses.
func (r *Reaper) Pass(ctx context.Context) (int, error) {
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		deleted, err := r.purger.PurgeExpired(ctx, r.cfg.BatchSize)
		total += deleted
		if err != nil {
			r.cfg.Metrics.AddExpired(total)

			return total, fmt.Errorf("netq purge expired: %w", err)
		}
		if deleted < r.cfg.BatchSize {
			break
		}
	}

	r.cfg.Metrics.AddExpired(total)
	if total > 0 {
		r.cfg.Logger.Debug("netq expired responses purged", "count", total)
	}

	return total, nil
}
