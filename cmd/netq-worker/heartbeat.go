package main

import (
	"context"
	"time"

	"github.com/velmie/netq"
)

type heartbeatStore interface {
	Beat(ctx context.Context, instance string) error
	TakeRestart(ctx context.Context) (bool, error)
}

type supervisor interface {
	IsUp() bool
	Restart() bool
}

// heartbeat records liveness while the dispatcher runs and applies restart
// requests left in the heartbeat row by other processes.
func heartbeat(ctx context.Context, store heartbeatStore, worker supervisor, instance string, interval time.Duration, log netq.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		beatOnce(ctx, store, worker, instance, log)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func beatOnce(ctx context.Context, store heartbeatStore, worker supervisor, instance string, log netq.Logger) {
	if worker.IsUp() {
		if err := store.Beat(ctx, instance); err != nil && ctx.Err() == nil {
			log.Warn("netq heartbeat failed", "err", err)
		}
	}

	restart, err := store.TakeRestart(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Warn("netq restart check failed", "err", err)
		}
		return
	}
	if restart {
		log.Info("netq restart requested", "instance", instance, "accepted", worker.Restart())
	}
}
