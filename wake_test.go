package netq

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWakeCoalesces(t *testing.T) {
	wake := NewWake()
	for range 10 {
		wake.Signal()
	}

	woke, err := wake.Wait(context.Background(), time.Second)
	if err != nil || !woke {
		t.Fatalf("expected wake, got %v %v", woke, err)
	}

	woke, err = wake.Wait(context.Background(), 10*time.Millisecond)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if woke {
		t.Fatalf("expected signals to coalesce into one wake")
	}
}

func TestWakeTimeout(t *testing.T) {
	wake := NewWake()
	start := time.Now()
	woke, err := wake.Wait(context.Background(), 20*time.Millisecond)
	if err != nil || woke {
		t.Fatalf("expected timeout, got %v %v", woke, err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("wait blocked past its timeout")
	}
}

func TestWakeWaitWakesBlockedWaiter(t *testing.T) {
	wake := NewWake()
	go func() {
		time.Sleep(10 * time.Millisecond)
		wake.Signal()
	}()

	woke, err := wake.Wait(context.Background(), 5*time.Second)
	if err != nil || !woke {
		t.Fatalf("expected wake, got %v %v", woke, err)
	}
}

func TestWakeContextCancel(t *testing.T) {
	wake := NewWake()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := wake.Wait(ctx, time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
}

func TestWakeZeroTimeoutPolls(t *testing.T) {
	wake := NewWake()
	if woke, _ := wake.Wait(context.Background(), 0); woke {
		t.Fatalf("expected no pending signal")
	}
	wake.Signal()
	if woke, _ := wake.Wait(context.Background(), 0); !woke {
		t.Fatalf("expected pending signal")
	}
}
