package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/velmie/netq"
)

const (
	defaultCleanupLimit      = 10000
	defaultCleanupEvery      = time.Minute
	defaultCleanupLockPrefix = "netq:cleanup:"
)

// CleanupMaintainerConfig controls periodic purging of expired responses
// from a process other than the dispatcher.
type CleanupMaintainerConfig struct {
	// Prefix is the table prefix, defaults to netq.
	Prefix string
	// CheckEvery is the interval between cleanup runs.
	CheckEvery time.Duration
	// Limit caps the number of rows deleted per statement (0 uses the default).
	Limit int
	// LockName is the advisory lock name. Defaults to netq:cleanup:<prefix>.
	LockName string
	// Clock overrides time source (useful for tests).
	Clock netq.Clock
	// Logger receives warnings about cleanup failures.
	Logger netq.Logger
	// Metrics receives the number of purged responses.
	Metrics netq.Metrics
}

// CleanupMaintainer purges expired responses under a MySQL advisory lock,
// so that several instances never purge at the same time.
type CleanupMaintainer struct {
	store  *Store
	reaper *netq.Reaper
	cfg    CleanupMaintainerConfig
}

// NewCleanupMaintainer creates a new cleanup maintainer with defaults applied.
func NewCleanupMaintainer(db *sql.DB, cfg CleanupMaintainerConfig) (*CleanupMaintainer, error) {
	if db == nil {
		return nil, ErrDBRequired
	}
	if cfg.Clock == nil {
		cfg.Clock = netq.SystemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = netq.NopLogger{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = netq.NopMetrics{}
	}
	if cfg.CheckEvery <= 0 {
		cfg.CheckEvery = defaultCleanupEvery
	}
	if cfg.Limit == 0 {
		cfg.Limit = defaultCleanupLimit
	}
	if cfg.Limit < 0 {
		return nil, ErrCleanupLimitInvalid
	}

	store, err := NewStore(db, WithPrefix(cfg.Prefix), WithClock(cfg.Clock))
	if err != nil {
		return nil, err
	}
	cfg.Prefix = store.tables.prefix
	if cfg.LockName == "" {
		cfg.LockName = defaultCleanupLockPrefix + cfg.Prefix
	}

	reaper := netq.NewReaper(store,
		netq.WithReaperBatchSize(cfg.Limit),
		netq.WithReaperLogger(cfg.Logger),
		netq.WithReaperMetrics(cfg.Metrics),
	)

	return &CleanupMaintainer{store: store, reaper: reaper, cfg: cfg}, nil
}

// Run periodically purges expired responses until the context is canceled.
func (m *CleanupMaintainer) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.CheckEvery)
	defer ticker.Stop()

	if _, err := m.Ensure(ctx); err != nil {
		m.cfg.Logger.Warn("netq cleanup failed", "err", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := m.Ensure(ctx); err != nil {
				m.cfg.Logger.Warn("netq cleanup failed", "err", err)
			}
		}
	}
}

// Ensure executes a single cleanup pass and returns the number of purged responses.
// It does nothing when another session holds the lock.
func (m *CleanupMaintainer) Ensure(ctx context.Context) (int, error) {
	conn, err := m.store.db.Conn(ctx)
	if err != nil {
		return 0, fmt.Errorf("netq mysql: cleanup conn failed: %w", err)
	}
	defer conn.Close()

	locked, err := m.tryLock(ctx, conn)
	if err != nil {
		return 0, err
	}
	if !locked {
		m.cfg.Logger.Debug("netq cleanup lock held by another session")

		return 0, nil
	}
	defer m.releaseLock(ctx, conn)

	return m.reaper.Pass(ctx)
}

func (m *CleanupMaintainer) tryLock(ctx context.Context, conn *sql.Conn) (bool, error) {
	var got sql.NullInt64
	if err := conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, 0)", m.cfg.LockName).Scan(&got); err != nil {
		return false, fmt.Errorf("netq mysql: acquire cleanup lock failed: %w", err)
	}
	if !got.Valid || got.Int64 == 0 {
		return false, nil
	}

	return true, nil
}

func (m *CleanupMaintainer) releaseLock(ctx context.Context, conn *sql.Conn) {
	var released sql.NullInt64
	if err := conn.QueryRowContext(ctx, "SELECT RELEASE_LOCK(?)", m.cfg.LockName).Scan(&released); err != nil {
		m.cfg.Logger.Warn("netq cleanup release lock failed", "err", err)
	}
}
