package mysql

import (
	"time"

	"github.com/velmie/netq"
)

const (
	defaultPrefix           = "netq"
	defaultRequestTimeout   = netq.DefaultTimeout
	defaultResponseTTL      = netq.DefaultTTL
	defaultHeartbeatTimeout = 10 * time.Second
)

// Config defines MySQL store behavior.
type Config struct {
	// Prefix names the tables: <prefix>_request_queue, <prefix>_response, <prefix>_wake, <prefix>_worker.
	Prefix           string
	Clock            netq.Clock
	RequestTimeout   time.Duration
	ResponseTTL      time.Duration
	ValidateJSON     bool
	validateJSONSet  bool
	WakeOnEnqueue    bool
	wakeOnEnqueueSet bool
	// RequireWorker makes Enqueue fail with netq.ErrWorkerDown when no live worker heartbeat exists.
	RequireWorker    bool
	HeartbeatTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Prefix == "" {
		c.Prefix = defaultPrefix
	}
	if c.Clock == nil {
		c.Clock = netq.SystemClock{}
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.ResponseTTL <= 0 {
		c.ResponseTTL = defaultResponseTTL
	}
	if !c.validateJSONSet {
		c.ValidateJSON = true
	}
	if !c.wakeOnEnqueueSet {
		c.WakeOnEnqueue = true
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = defaultHeartbeatTimeout
	}

	return c
}

func (c Config) requestDefaults() netq.RequestDefaults {
	return netq.RequestDefaults{
		Timeout:      c.RequestTimeout,
		TTL:          c.ResponseTTL,
		ValidateJSON: c.ValidateJSON,
	}
}

// Option configures the MySQL store.
type Option func(*Config)

// WithPrefix sets the table prefix. Use schema.prefix for a non-default schema.
func WithPrefix(prefix string) Option {
	return func(c *Config) {
		c.Prefix = prefix
	}
}

// WithClock sets the time source used by the store.
func WithClock(clock netq.Clock) Option {
	return func(c *Config) {
		c.Clock = clock
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

// WithValidateJSON enables or disables JSON validation of bodies sent with a JSON content type.
func WithValidateJSON(enabled bool) Option {
	return func(c *Config) {
		c.ValidateJSON = enabled
		c.validateJSONSet = true
	}
}

// WithWakeOnEnqueue enables or disables raising the wake flag in the enqueuing transaction.
func WithWakeOnEnqueue(enabled bool) Option {
	return func(c *Config) {
		c.WakeOnEnqueue = enabled
		c.wakeOnEnqueueSet = true
	}
}

// WithRequireWorker makes Enqueue check for a live worker first.
func WithRequireWorker(enabled bool) Option {
	return func(c *Config) {
		c.RequireWorker = enabled
	}
}

// WithHeartbeatTimeout sets how old a worker heartbeat may be before the worker counts as down.
func WithHeartbeatTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.HeartbeatTimeout = timeout
	}
}
