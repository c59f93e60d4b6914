// Package stats keeps in-process dispatcher counters.
package stats

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/velmie/netq"
)

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	StartedAt     time.Time     `json:"started_at"`
	Uptime        time.Duration `json:"uptime"`
	Batches       int64         `json:"batches"`
	LastBatch     time.Duration `json:"last_batch"`
	Succeeded     int64         `json:"succeeded"`
	Failed        int64         `json:"failed"`
	TimedOut      int64         `json:"timed_out"`
	PersistErrors int64         `json:"persist_errors"`
	Expired       int64         `json:"expired"`
	Pending       int64         `json:"pending"`
}

// Counters implements netq.Metrics with atomic counters.
type Counters struct {
	clock     netq.Clock
	startedAt time.Time

	batches       atomic.Int64
	lastBatch     atomic.Int64
	succeeded     atomic.Int64
	failed        atomic.Int64
	timedOut      atomic.Int64
	persistErrors atomic.Int64
	expired       atomic.Int64
	pending       atomic.Int64
}

var _ netq.Metrics = (*Counters)(nil)

// New returns zeroed counters. A nil clock uses the system clock.
func New(clock netq.Clock) *Counters {
	if clock == nil {
		clock = netq.SystemClock{}
	}

	return &Counters{clock: clock, startedAt: clock.Now()}
}

// ObserveBatchDuration implements netq.Metrics.
func (c *Counters) ObserveBatchDuration(duration time.Duration) {
	c.batches.Add(1)
	c.lastBatch.Store(int64(duration))
}

// AddSucceeded implements netq.Metrics.
func (c *Counters) AddSucceeded(count int) { c.succeeded.Add(int64(count)) }

// AddFailed implements netq.Metrics.
func (c *Counters) AddFailed(count int) { c.failed.Add(int64(count)) }

// AddTimedOut implements netq.Metrics.
func (c *Counters) AddTimedOut(count int) { c.timedOut.Add(int64(count)) }

// AddPersistErrors implements netq.Metrics.
func (c *Counters) AddPersistErrors(count int) { c.persistErrors.Add(int64(count)) }

// AddExpired implements netq.Metrics.
func (c *Counters) AddExpired(count int) { c.expired.Add(int64(count)) }

// SetPending implements netq.Metrics.
func (c *Counters) SetPending(count int) { c.pending.Store(int64(count)) }

// Snapshot copies the current values.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		StartedAt:     c.startedAt,
		Uptime:        c.clock.Now().Sub(c.startedAt),
		Batches:       c.batches.Load(),
		LastBatch:     time.Duration(c.lastBatch.Load()),
		Succeeded:     c.succeeded.Load(),
		Failed:        c.failed.Load(),
		TimedOut:      c.timedOut.Load(),
		PersistErrors: c.persistErrors.Load(),
		Expired:       c.expired.Load(),
		Pending:       c.pending.Load(),
	}
}

// Log writes a snapshot every interval until ctx is cancelled.
func (c *Counters) Log(ctx context.Context, logger netq.Logger, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s := c.Snapshot()
			logger.Info("netq stats",
				"batches", s.Batches,
				"succeeded", s.Succeeded,
				"failed", s.Failed,
				"timed_out", s.TimedOut,
				"persist_errors", s.PersistErrors,
				"expired", s.Expired,
				"pending", s.Pending,
			)
		}
	}
}
