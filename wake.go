package netq

import (
	"context"
	"time"
)

// Signaler raises a wake-up.
type Signaler interface {
	Signal()
}

// Wake is a coalescing wake-up signal.
// Any number of Signal calls between two waits are observed as one.
type Wake struct {
	ch chan struct{}
}

// NewWake creates an unsignalled Wake.
func NewWake() *Wake {
	return &Wake{ch: make(chan struct{}, 1)}
}

// Signal marks the wake as raised. It never blocks.
func (w *Wake) Signal() {
	select {
	case w.ch <- struct{}{}:
	default:
	}
}

// Wait blocks until the wake is raised, the timeout elapses or ctx is done.
// It reports true when woken and clears the signal.
// A non-positive timeout only checks for a pending signal.
func (w *Wake) Wait(ctx context.Context, timeout time.Duration) (bool, error) {
	select {
	case <-w.ch:
		return true, nil
	default:
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if timeout <= 0 {
		return false, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-w.ch:
		return true, nil
	case <-timer.C:
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
