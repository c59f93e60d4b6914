package netq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// DispatchState is the dispatcher's position in its control loop.
type DispatchState int32

const (
	// StateIdle means the dispatcher waits for a wake or the idle timeout.
	StateIdle DispatchState = iota
	// StateDraining means the dispatcher is executing queued requests.
	StateDraining
	// StateShuttingDown means the dispatcher has stopped accepting work.
	StateShuttingDown
)

// String returns the state name.
func (s DispatchState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDraining:
		return "draining"
	case StateShuttingDown:
		return "shutting_down"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// CycleResult summarizes one drain cycle.
type CycleResult struct {
	Dequeued      int
	Recorded      int
	Duplicates    int
	PersistErrors int
	Abandoned     int
	Expired       int
}

// Dispatcher drains the request queue through a Submitter and records outcomes.
type Dispatcher struct {
	store   DispatchStore
	engine  Submitter
	cfg     DispatcherConfig
	logger  Logger
	reaper  *Reaper
	pending PendingCounter

	state atomic.Int32

	pendingMu sync.Mutex
	pendingAt time.Time
}

// NewDispatcher constructs a Dispatcher with defaults and optional settings.
func NewDispatcher(store DispatchStore, engine Submitter, opts ...DispatcherOption) *Dispatcher {
	if store == nil {
		panic("netq: nil DispatchStore")
	}
	if engine == nil {
		panic("netq: nil Submitter")
	}

	var cfg DispatcherConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()

	d := &Dispatcher{
		store:  store,
		engine: engine,
		cfg:    cfg,
		logger: LoggerWith(cfg.Logger, "component", "dispatcher"),
		reaper: cfg.Reaper,
	}
	if d.reaper == nil && !cfg.DisableReap {
		if purger, ok := store.(Purger); ok {
			d.reaper = NewReaper(purger,
				WithReaperBatchSize(cfg.BatchSize),
				WithReaperLogger(d.logger),
				WithReaperMetrics(cfg.Metrics),
			)
		}
	}
	if cfg.DisableReap {
		d.reaper = nil
	}
	if counter, ok := store.(PendingCounter); ok {
		d.pending = counter
	}

	return d
}

// Wake returns the signal the dispatcher idles on.
func (d *Dispatcher) Wake() *Wake {
	return d.cfg.Wake
}

// State returns the current loop state.
func (d *Dispatcher) State() DispatchState {
	return DispatchState(d.state.Load())
}

// Run executes drain cycles until ctx is cancelled.
// A failing cycle is logged and retried after the idle wait.
// A panic stops the loop with ErrWorkerPanic.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer d.setState(StateShuttingDown)

	d.logger.Info("netq dispatcher started", "batch_size", d.cfg.BatchSize, "idle_timeout", d.cfg.IdleTimeout)
	for {
		if _, err := d.RunCycle(ctx); err != nil {
			if errors.Is(err, ErrWorkerPanic) {
				return err
			}
			if ctx.Err() == nil {
				d.logger.Error("netq dispatch cycle failed", "err", err)
			}
		}
		if ctx.Err() != nil {
			break
		}

		d.setState(StateIdle)
		woke, err := d.cfg.Wake.Wait(ctx, d.cfg.IdleTimeout)
		if err != nil {
			break
		}
		if woke {
			d.logger.Debug("netq dispatcher woken")
		}
	}

	d.logger.Info("netq dispatcher stopped")
	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

// RunCycle drains the queue once, records every outcome and purges expired responses.
// Requests enqueued after the cycle started may be picked up by the same cycle.
func (d *Dispatcher) RunCycle(ctx context.Context) (result CycleResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Error("netq dispatcher panic", "panic", rec)
			err = fmt.Errorf("%w: %v", ErrWorkerPanic, rec)
		}
	}()

	if err := ctx.Err(); err != nil {
		return result, err
	}
	d.setState(StateDraining)

	drainErr := d.drain(ctx, &result)
	if err := ctx.Err(); err != nil {
		return result, err
	}

	// Expired responses are purged even when the queue could not be read.
	if d.reaper != nil {
		expired, err := d.reaper.Pass(ctx)
		result.Expired = expired
		if err != nil {
			return result, errors.Join(drainErr, err)
		}
	}
	if drainErr != nil {
		return result, drainErr
	}
	d.maybeRecordPending(ctx)

	return result, nil
}

func (d *Dispatcher) drain(ctx context.Context, result *CycleResult) error {
	var cursor ID
	for {
		reqs, err := d.store.DequeueBatch(ctx, DequeueOptions{Limit: d.cfg.BatchSize, AfterID: cursor})
		if err != nil {
			return fmt.Errorf("netq dequeue: %w", err)
		}
		if len(reqs) == 0 {
			return nil
		}

		result.Dequeued += len(reqs)
		cursor = maxID(cursor, reqs)
		d.processBatch(ctx, reqs, result)
		if err := ctx.Err(); err != nil {
			return err
		}
		if len(reqs) < d.cfg.BatchSize {
			return nil
		}
	}
}

func (d *Dispatcher) processBatch(ctx context.Context, reqs []Request, result *CycleResult) {
	start := time.Now()
	defer func() {
		d.cfg.Metrics.ObserveBatchDuration(time.Since(start))
	}()

	var succeeded, failed, timedOut int
	persistErrors := result.PersistErrors
	for completion := range d.engine.Submit(ctx, reqs) {
		if completion.Abandoned {
			result.Abandoned++

			continue
		}

		switch completion.Outcome.Status {
		case StatusSuccess:
			succeeded++
		case StatusTimeout:
			timedOut++
		default:
			failed++
			d.logger.Debug("netq exchange failed", "id", completion.Request.ID, "err", completion.Outcome.Err)
		}

		d.record(ctx, completion, result)
	}

	d.cfg.Metrics.AddSucceeded(succeeded)
	d.cfg.Metrics.AddFailed(failed)
	d.cfg.Metrics.AddTimedOut(timedOut)
	d.cfg.Metrics.AddPersistErrors(result.PersistErrors - persistErrors)
}

func (d *Dispatcher) record(ctx context.Context, completion Completion, result *CycleResult) {
	err := d.store.Complete(ctx, completion)
	switch {
	case err == nil:
		result.Recorded++
	case errors.Is(err, ErrAlreadyCompleted):
		result.Duplicates++
		d.logger.Debug("netq response already recorded", "id", completion.Request.ID)
	default:
		result.PersistErrors++
		d.logger.Error("netq record response failed", "id", completion.Request.ID, "err", err)
		if d.cfg.ErrorHandler != nil {
			d.cfg.ErrorHandler(ctx, completion, err)
		}
	}
}

func (d *Dispatcher) setState(state DispatchState) {
	d.state.Store(int32(state))
}

func (d *Dispatcher) maybeRecordPending(ctx context.Context) {
	if d.pending == nil {
		return
	}
	if d.cfg.PendingInterval <= 0 {
		return
	}
	if ctx.Err() != nil {
		return
	}

	now := d.cfg.Clock.Now()
	d.pendingMu.Lock()
	nextAllowed := d.pendingAt.Add(d.cfg.PendingInterval)
	if !d.pendingAt.IsZero() && now.Before(nextAllowed) {
		d.pendingMu.Unlock()

		return
	}
	d.pendingAt = now
	d.pendingMu.Unlock()

	count, err := d.pending.PendingCount(ctx)
	if err != nil {
		d.logger.Warn("netq pending count failed", "err", err)

		return
	}

	d.cfg.Metrics.SetPending(count)
}

func maxID(cursor ID, reqs []Request) ID {
	for i := range reqs {
		if reqs[i].ID > cursor {
			cursor = reqs[i].ID
		}
	}

	return cursor
}
