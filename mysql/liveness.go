package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/velmie/netq"
)

const defaultLivenessPoll = 100 * time.Millisecond

// WorkerState is the persisted heartbeat row of the dispatcher process.
type WorkerState struct {
	Instance         string
	StartedAt        time.Time
	HeartbeatAt      time.Time
	ExitedAt         time.Time
	RestartRequested bool
}

// Liveness tracks the dispatcher process through a single heartbeat row,
// so that other processes can check and restart it.
type Liveness struct {
	db      *sql.DB
	queries queries
	cfg     Config
}

// NewLiveness constructs a liveness view over the worker table for the configured prefix.
func NewLiveness(db *sql.DB, opts ...Option) (*Liveness, error) {
	store, err := NewStore(db, opts...)
	if err != nil {
		return nil, err
	}

	return store.Liveness(), nil
}

// Beat records that instance is alive.
// A new instance, or one that had exited, gets a fresh start time.
func (l *Liveness) Beat(ctx context.Context, instance string) error {
	if instance == "" {
		return ErrInstanceRequired
	}

	now := l.cfg.Clock.Now()
	if _, err := l.db.ExecContext(ctx, l.queries.beat, instance, now, now); err != nil {
		return fmt.Errorf("netq mysql: heartbeat failed: %w", err)
	}

	return nil
}

// Exit marks instance as stopped.
func (l *Liveness) Exit(ctx context.Context, instance string) error {
	if _, err := l.db.ExecContext(ctx, l.queries.exit, l.cfg.Clock.Now(), instance); err != nil {
		return fmt.Errorf("netq mysql: mark exit failed: %w", err)
	}

	return nil
}

// State returns the heartbeat row, or netq.ErrWorkerDown when no worker ever started.
func (l *Liveness) State(ctx context.Context) (WorkerState, error) {
	var (
		state    WorkerState
		exitedAt sql.NullTime
	)
	err := l.db.QueryRowContext(ctx, l.queries.selectWorker).Scan(
		&state.Instance,
		&state.StartedAt,
		&state.HeartbeatAt,
		&exitedAt,
		&state.RestartRequested,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return WorkerState{}, netq.ErrWorkerDown
	}
	if err != nil {
		return WorkerState{}, fmt.Errorf("netq mysql: select worker failed: %w", err)
	}
	if exitedAt.Valid {
		state.ExitedAt = exitedAt.Time
	}

	return state, nil
}

// IsWorkerUp reports whether a worker has beaten within the heartbeat timeout and not exited.
func (l *Liveness) IsWorkerUp(ctx context.Context) (bool, error) {
	state, err := l.State(ctx)
	if errors.Is(err, netq.ErrWorkerDown) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return l.alive(state), nil
}

// CheckWorkerIsUp returns netq.ErrWorkerDown unless a live worker exists.
func (l *Liveness) CheckWorkerIsUp(ctx context.Context) error {
	up, err := l.IsWorkerUp(ctx)
	if err != nil {
		return err
	}
	if !up {
		return netq.ErrWorkerDown
	}

	return nil
}

// WaitUntilRunning polls every poll interval until a live worker exists or ctx is done.
func (l *Liveness) WaitUntilRunning(ctx context.Context, poll time.Duration) error {
	if poll <= 0 {
		poll = defaultLivenessPoll
	}

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		up, err := l.IsWorkerUp(ctx)
		if err != nil {
			return err
		}
		if up {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RequestRestart asks the running worker to restart its dispatcher.
// It returns netq.ErrWorkerDown when no worker has ever started.
func (l *Liveness) RequestRestart(ctx context.Context) error {
	res, err := l.db.ExecContext(ctx, l.queries.requestRestart)
	if err != nil {
		return fmt.Errorf("netq mysql: request restart failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("netq mysql: request restart rows failed: %w", err)
	}
	if affected > 0 {
		return nil
	}

	// Zero rows also means a restart was already pending.
	_, err = l.State(ctx)

	return err
}

// TakeRestart consumes a pending restart request, reporting whether there was one.
func (l *Liveness) TakeRestart(ctx context.Context) (bool, error) {
	res, err := l.db.ExecContext(ctx, l.queries.takeRestart)
	if err != nil {
		return false, fmt.Errorf("netq mysql: take restart failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("netq mysql: take restart rows failed: %w", err)
	}

	return affected > 0, nil
}

func (l *Liveness) alive(state WorkerState) bool {
	if !state.ExitedAt.IsZero() {
		return false
	}

	return l.cfg.Clock.Now().Sub(state.HeartbeatAt) <= l.cfg.HeartbeatTimeout
}
