package netq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Transport performs a single HTTP exchange.
type Transport interface {
	// Exchange executes req and reports exactly one of success, error or timeout.
	// ctx carries the request deadline.
	Exchange(ctx context.Context, req Request) Outcome
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, req Request) Outcome

// Exchange implements Transport.
func (fn TransportFunc) Exchange(ctx context.Context, req Request) Outcome {
	return fn(ctx, req)
}

// Submitter runs a batch of exchanges concurrently.
type Submitter interface {
	// Submit starts every request and streams completions in completion order.
	// The channel is closed once every request has completed.
	Submit(ctx context.Context, reqs []Request) <-chan Completion
}

// EngineConfig defines how the Engine schedules exchanges.
type EngineConfig struct {
	// MaxInFlight caps concurrent exchanges. Zero means unbounded.
	MaxInFlight int
	// StartRate limits how many exchanges start per second. Zero means unlimited.
	StartRate rate.Limit
	// StartBurst is the limiter burst, defaults to 1.
	StartBurst int
	Clock      Clock
	Logger     Logger
}

func (c EngineConfig) withDefaults() EngineConfig {
	if c.MaxInFlight < 0 {
		c.MaxInFlight = 0
	}
	if c.StartBurst <= 0 {
		c.StartBurst = 1
	}
	if c.Clock == nil {
		c.Clock = SystemClock{}
	}
	if c.Logger == nil {
		c.Logger = NopLogger{}
	}

	return c
}

// EngineOption configures the Engine.
type EngineOption func(*EngineConfig)

// WithMaxInFlight caps the number of concurrent exchanges.
func WithMaxInFlight(n int) EngineOption {
	return func(c *EngineConfig) {
		c.MaxInFlight = n
	}
}

// WithStartRate limits exchange starts to limit per second with the given burst.
func WithStartRate(limit rate.Limit, burst int) EngineOption {
	return func(c *EngineConfig) {
		c.StartRate = limit
		c.StartBurst = burst
	}
}

// WithEngineClock sets the clock used to measure waits before an exchange starts.
func WithEngineClock(clock Clock) EngineOption {
	return func(c *EngineConfig) {
		c.Clock = clock
	}
}

// WithEngineLogger sets the engine logger.
func WithEngineLogger(logger Logger) EngineOption {
	return func(c *EngineConfig) {
		c.Logger = logger
	}
}

// Engine multiplexes exchanges over a Transport.
// Every exchange runs in its own goroutine with its own deadline.
type Engine struct {
	transport Transport
	cfg       EngineConfig
	sem       chan struct{}
	limiter   *rate.Limiter
}

// NewEngine constructs an Engine with defaults and optional settings.
func NewEngine(transport Transport, opts ...EngineOption) *Engine {
	if transport == nil {
		panic("netq: nil Transport")
	}

	var cfg EngineConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()

	e := &Engine{transport: transport, cfg: cfg}
	if cfg.MaxInFlight > 0 {
		e.sem = make(chan struct{}, cfg.MaxInFlight)
	}
	if cfg.StartRate > 0 {
		e.limiter = rate.NewLimiter(cfg.StartRate, cfg.StartBurst)
	}

	return e
}

// Submit implements Submitter.
// Each request's timeout starts when it is submitted, so time spent waiting
// for a free slot counts against it. Cancelling ctx abandons every request
// that has not completed yet.
func (e *Engine) Submit(ctx context.Context, reqs []Request) <-chan Completion {
	out := make(chan Completion, len(reqs))

	var wg sync.WaitGroup
	for i := range reqs {
		req := reqs[i]
		timeout := req.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		reqCtx, cancel := context.WithTimeout(ctx, timeout)
		submitted := e.cfg.Clock.Now()

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer cancel()

			out <- e.run(ctx, reqCtx, req, timeout, submitted)
		}()
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	return out
}

func (e *Engine) run(parent, ctx context.Context, req Request, timeout time.Duration, submitted time.Time) Completion {
	if err := e.acquire(ctx); err != nil {
		return e.interrupted(parent, req, timeout, Timing{Total: e.cfg.Clock.Now().Sub(submitted)})
	}
	defer e.release()

	outcome := e.exchange(ctx, req)
	if parent.Err() != nil {
		return Completion{Request: req, Outcome: outcome, Abandoned: true}
	}
	if outcome.Status == StatusError && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		timing := outcome.Timing
		if timing.Total <= 0 {
			timing.Total = e.cfg.Clock.Now().Sub(submitted)
		}
		outcome = TimedOutOutcome(timeout, timing)
	}

	return Completion{Request: req, Outcome: outcome}
}

func (e *Engine) interrupted(parent context.Context, req Request, timeout time.Duration, timing Timing) Completion {
	if parent.Err() != nil {
		return Completion{Request: req, Abandoned: true}
	}

	return Completion{Request: req, Outcome: TimedOutOutcome(timeout, timing)}
}

func (e *Engine) acquire(ctx context.Context) error {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}

			return context.DeadlineExceeded
		}
	}
	if e.sem == nil {
		return nil
	}

	select {
	case e.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) release() {
	if e.sem != nil {
		<-e.sem
	}
}

func (e *Engine) exchange(ctx context.Context, req Request) (outcome Outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			e.cfg.Logger.Error("netq transport panic", "id", req.ID, "panic", rec)
			outcome = FailedOutcome(fmt.Errorf("%w: %v", ErrTransportPanic, rec), Timing{})
		}
	}()

	return e.transport.Exchange(ctx, req)
}
