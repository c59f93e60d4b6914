// Package memstore provides an in-memory netq.Store.
//
// It keeps the same semantics as the MySQL store (ids never reused, at most one response per id,
// responses replace requests atomically) and is meant for tests and for embedding netq in a single
// process that does not need durability.
package memstore

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/velmie/netq"
)

// Config controls the in-memory store.
type Config struct {
	Clock           netq.Clock
	IDs             netq.IDGenerator
	RequestTimeout  time.Duration
	ResponseTTL     time.Duration
	ValidateJSON    bool
	validateJSONSet bool
	// Signal is raised after every successful Enqueue.
	Signal netq.Signaler
}

func (c Config) withDefaults() Config {
	if c.Clock == nil {
		c.Clock = netq.SystemClock{}
	}
	if c.IDs == nil {
		c.IDs = netq.NewSequenceGenerator(0)
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = netq.DefaultTimeout
	}
	if c.ResponseTTL <= 0 {
		c.ResponseTTL = netq.DefaultTTL
	}
	if !c.validateJSONSet {
		c.ValidateJSON = true
	}

	return c
}

// Option configures the store.
type Option func(*Config)

// WithClock sets the time source.
func WithClock(clock netq.Clock) Option {
	return func(c *Config) {
		c.Clock = clock
	}
}

// WithIDGenerator sets the id source. Ids must be unique and increasing.
func WithIDGenerator(ids netq.IDGenerator) Option {
	return func(c *Config) {
		c.IDs = ids
	}
}

// WithRequestTimeout sets the timeout applied to requests that do not set one.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.RequestTimeout = timeout
	}
}

// WithResponseTTL sets the TTL applied to requests that do not set one.
func WithResponseTTL(ttl time.Duration) Option {
	return func(c *Config) {
		c.ResponseTTL = ttl
	}
}

// WithValidateJSON enables or disables JSON body validation.
func WithValidateJSON(enabled bool) Option {
	return func(c *Config) {
		c.ValidateJSON = enabled
		c.validateJSONSet = true
	}
}

// WithSignal wakes the dispatcher on every enqueue.
func WithSignal(signal netq.Signaler) Option {
	return func(c *Config) {
		c.Signal = signal
	}
}

// Store is a mutex-guarded in-memory queue and response table.
type Store struct {
	mu        sync.Mutex
	cfg       Config
	recorded  *netq.MonotonicClock
	queue     map[netq.ID]netq.Request
	responses map[netq.ID]netq.Response
}

var _ netq.Store = (*Store)(nil)

// New constructs an empty store.
func New(opts ...Option) *Store {
	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()

	return &Store{
		cfg:       cfg,
		recorded:  netq.NewMonotonicClock(cfg.Clock),
		queue:     make(map[netq.ID]netq.Request),
		responses: make(map[netq.ID]netq.Response),
	}
}

// Enqueue validates req and queues it.
func (s *Store) Enqueue(ctx context.Context, req netq.Request) (netq.ID, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	prepared, err := req.Prepare(netq.RequestDefaults{
		Timeout:      s.cfg.RequestTimeout,
		TTL:          s.cfg.ResponseTTL,
		ValidateJSON: s.cfg.ValidateJSON,
	})
	if err != nil {
		return 0, err
	}
	id, err := s.cfg.IDs.New()
	if err != nil {
		return 0, err
	}
	prepared.ID = id
	prepared.CreatedAt = s.cfg.Clock.Now()
	prepared.Body = slices.Clone(prepared.Body)

	s.mu.Lock()
	s.queue[id] = prepared
	s.mu.Unlock()

	if s.cfg.Signal != nil {
		s.cfg.Signal.Signal()
	}

	return id, nil
}

// DequeueBatch implements netq.Queue.
func (s *Store) DequeueBatch(ctx context.Context, opts netq.DequeueOptions) ([]netq.Request, error) {
	if opts.Limit <= 0 {
		return nil, netq.ErrInvalidBatchSize
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]netq.ID, 0, len(s.queue))
	for id := range s.queue {
		if id > opts.AfterID {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	if len(ids) > opts.Limit {
		ids = ids[:opts.Limit]
	}

	reqs := make([]netq.Request, 0, len(ids))
	for _, id := range ids {
		reqs = append(reqs, s.queue[id])
	}

	return reqs, nil
}

// Complete implements netq.Completer.
func (s *Store) Complete(ctx context.Context, completion netq.Completion) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := completion.Request.ID
	if _, ok := s.responses[id]; ok {
		return netq.ErrAlreadyCompleted
	}
	s.responses[id] = netq.NewResponse(completion, s.recorded.Now())
	delete(s.queue, id)

	return nil
}

// ReadResponse implements netq.ResponseReader.
func (s *Store) ReadResponse(ctx context.Context, id netq.ID) (netq.Response, error) {
	if err := ctx.Err(); err != nil {
		return netq.Response{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	resp, ok := s.responses[id]
	if !ok {
		return netq.Response{}, netq.ErrNotFound
	}

	return resp, nil
}

// RequestExists implements netq.ResponseReader.
func (s *Store) RequestExists(ctx context.Context, id netq.ID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.queue[id]

	return ok, nil
}

// PurgeExpired implements netq.Purger.
func (s *Store) PurgeExpired(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		return 0, netq.ErrInvalidBatchSize
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	now := s.cfg.Clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	expired := make([]netq.Response, 0)
	for _, resp := range s.responses {
		if !resp.ExpiresAt.After(now) {
			expired = append(expired, resp)
		}
	}
	slices.SortFunc(expired, func(a, b netq.Response) int {
		return a.ExpiresAt.Compare(b.ExpiresAt)
	})
	if len(expired) > limit {
		expired = expired[:limit]
	}
	for _, resp := range expired {
		delete(s.responses, resp.ID)
	}

	return len(expired), nil
}

// PendingCount implements netq.PendingCounter.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.queue), nil
}

// DeleteRequest removes a queued request. Missing requests are ignored.
func (s *Store) DeleteRequest(ctx context.Context, id netq.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.queue, id)
	s.mu.Unlock()

	return nil
}

// ClearQueue removes every queued request. Ids keep increasing afterwards.
func (s *Store) ClearQueue(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	clear(s.queue)
	s.mu.Unlock()

	return nil
}
