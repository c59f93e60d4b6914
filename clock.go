package netq

import (
	"sync"
	"time"
)

const monotonicStep = time.Microsecond

// Clock abstracts time for deterministic tests.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
}

// SystemClock uses the system time in UTC.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// MonotonicClock wraps a Clock and never returns the same instant twice.
// Successive calls are at least one microsecond apart, the precision of the stored timestamps.
type MonotonicClock struct {
	mu    sync.Mutex
	clock Clock
	last  time.Time
}

// NewMonotonicClock creates a monotonic clock on top of the provided clock.
func NewMonotonicClock(clock Clock) *MonotonicClock {
	if clock == nil {
		clock = SystemClock{}
	}

	return &MonotonicClock{clock: clock}
}

// Now returns the current time, bumped past the previously returned value if needed.
func (c *MonotonicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now().Truncate(monotonicStep)
	if !now.After(c.last) {
		now = c.last.Add(monotonicStep)
	}
	c.last = now

	return now
}
