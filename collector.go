package netq

import (
	"context"
	"errors"
	"time"
)

const (
	// DefaultPollInterval is how often a blocking collect re-reads the store.
	DefaultPollInterval = 50 * time.Millisecond

	messageOK       = "ok"
	messagePending  = "request is pending processing"
	messageNotFound = "request matching request_id not found"
)

// CollectStatus classifies a collect result.
type CollectStatus int

const (
	// CollectPending means the request is queued but not yet recorded.
	CollectPending CollectStatus = iota
	// CollectSuccess means a response was recorded for a completed exchange.
	CollectSuccess
	// CollectError means the exchange failed or timed out.
	CollectError
	// CollectNotFound means neither a request nor a response exists.
	CollectNotFound
)

// String returns the upper-case status name.
func (s CollectStatus) String() string {
	switch s {
	case CollectSuccess:
		return "SUCCESS"
	case CollectError:
		return "ERROR"
	case CollectNotFound:
		return "NOT_FOUND"
	default:
		return "PENDING"
	}
}

// Collection is the result of a collect.
type Collection struct {
	Status  CollectStatus
	Message string
	// Response is nil unless Status is CollectSuccess or CollectError.
	Response *Response
}

// CollectOptions controls a single collect.
type CollectOptions struct {
	// Blocking polls until the request is recorded or ctx is done.
	Blocking bool
	// MaxWait bounds a blocking collect. Zero waits for ctx only.
	MaxWait time.Duration
}

// CollectorConfig defines how the Collector polls.
type CollectorConfig struct {
	PollInterval time.Duration
	Clock        Clock
}

func (c CollectorConfig) withDefaults() CollectorConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.Clock == nil {
		c.Clock = SystemClock{}
	}

	return c
}

// CollectorOption configures the Collector.
type CollectorOption func(*CollectorConfig)

// WithPollInterval sets the blocking collect poll interval.
func WithPollInterval(interval time.Duration) CollectorOption {
	return func(c *CollectorConfig) {
		c.PollInterval = interval
	}
}

// WithCollectorClock sets the clock that bounds MaxWait.
func WithCollectorClock(clock Clock) CollectorOption {
	return func(c *CollectorConfig) {
		c.Clock = clock
	}
}

// Collector retrieves recorded responses by ID.
type Collector struct {
	reader ResponseReader
	cfg    CollectorConfig
}

// NewCollector constructs a Collector over reader.
func NewCollector(reader ResponseReader, opts ...CollectorOption) *Collector {
	if reader == nil {
		panic("netq: nil ResponseReader")
	}

	var cfg CollectorConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Collector{reader: reader, cfg: cfg.withDefaults()}
}

// Collect reports the state of id.
// When neither a request nor a response exists it returns a CollectNotFound
// collection together with ErrNotFound.
// A blocking collect that runs out of MaxWait reports CollectPending.
func (c *Collector) Collect(ctx context.Context, id ID, opts CollectOptions) (Collection, error) {
	var deadline time.Time
	if opts.Blocking && opts.MaxWait > 0 {
		deadline = c.cfg.Clock.Now().Add(opts.MaxWait)
	}

	for {
		collection, err := c.once(ctx, id)
		if err != nil || collection.Status != CollectPending || !opts.Blocking {
			return collection, err
		}

		wait := c.cfg.PollInterval
		if !deadline.IsZero() {
			remaining := deadline.Sub(c.cfg.Clock.Now())
			if remaining <= 0 {
				return collection, nil
			}
			wait = min(wait, remaining)
		}
		if err := sleep(ctx, wait); err != nil {
			return Collection{}, err
		}
	}
}

func (c *Collector) once(ctx context.Context, id ID) (Collection, error) {
	resp, err := c.reader.ReadResponse(ctx, id)
	if err == nil {
		return collected(resp), nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Collection{}, err
	}

	queued, err := c.reader.RequestExists(ctx, id)
	if err != nil {
		return Collection{}, err
	}
	if queued {
		return Collection{Status: CollectPending, Message: messagePending}, nil
	}

	// The response may have landed between the two reads.
	resp, err = c.reader.ReadResponse(ctx, id)
	switch {
	case err == nil:
		return collected(resp), nil
	case errors.Is(err, ErrNotFound):
		return Collection{Status: CollectNotFound, Message: messageNotFound}, ErrNotFound
	default:
		return Collection{}, err
	}
}

func collected(resp Response) Collection {
	if resp.Status == StatusSuccess {
		return Collection{Status: CollectSuccess, Message: messageOK, Response: &resp}
	}

	return Collection{Status: CollectError, Message: resp.Error, Response: &resp}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
