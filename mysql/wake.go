package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/velmie/netq"
)

const defaultWakePoll = 100 * time.Millisecond

// WakeWatcherConfig controls how the wake table is polled.
type WakeWatcherConfig struct {
	// Prefix is the table prefix, defaults to netq.
	Prefix string
	// PollInterval is the delay between polls.
	PollInterval time.Duration
	// Logger receives warnings about poll failures.
	Logger netq.Logger
}

// WakeWatcher turns committed wake rows into in-process wake signals.
// Rows are inserted by Store.Enqueue and Store.Wake inside the caller's
// transaction, so uncommitted or rolled back enqueues never wake the worker.
type WakeWatcher struct {
	db      *sql.DB
	signal  netq.Signaler
	queries queries
	cfg     WakeWatcherConfig
}

// NewWakeWatcher creates a watcher that signals on every committed wake.
func NewWakeWatcher(db *sql.DB, signal netq.Signaler, cfg WakeWatcherConfig) (*WakeWatcher, error) {
	if db == nil {
		return nil, ErrDBRequired
	}
	if signal == nil {
		return nil, ErrSignalRequired
	}
	if cfg.Prefix == "" {
		cfg.Prefix = defaultPrefix
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultWakePoll
	}
	if cfg.Logger == nil {
		cfg.Logger = netq.NopLogger{}
	}

	t, err := newTables(cfg.Prefix)
	if err != nil {
		return nil, err
	}

	return &WakeWatcher{db: db, signal: signal, queries: newQueries(t), cfg: cfg}, nil
}

// Run polls until ctx is cancelled.
func (w *WakeWatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := w.Poll(ctx); err != nil && ctx.Err() == nil {
			w.cfg.Logger.Warn("netq wake poll failed", "err", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Poll consumes pending wake rows and signals once if there were any.
func (w *WakeWatcher) Poll(ctx context.Context) (bool, error) {
	var last sql.NullInt64
	if err := w.db.QueryRowContext(ctx, w.queries.maxWake).Scan(&last); err != nil {
		return false, fmt.Errorf("netq mysql: select wake failed: %w", err)
	}
	if !last.Valid {
		return false, nil
	}

	// Signal after the delete: it may wait on a concurrent enqueue that has
	// not committed yet, and that request must be visible to the next drain.
	_, err := w.db.ExecContext(ctx, w.queries.deleteWake, last.Int64)
	w.signal.Signal()
	if err != nil {
		return true, fmt.Errorf("netq mysql: consume wake failed: %w", err)
	}

	return true, nil
}
