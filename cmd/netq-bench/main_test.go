package main

import (
	"context"
	"testing"
	"time"

	"github.com/velmie/netq"
)

func TestPercentile(t *testing.T) {
	samples := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	tests := []struct {
		name string
		p    float64
		want time.Duration
	}{
		{name: "p50", p: percentileP50, want: 5},
		{name: "p95", p: percentileP95, want: 10},
		{name: "zero", p: 0, want: 1},
		{name: "above one", p: 2, want: 10},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := percentile(samples, test.p); got != test.want {
				t.Fatalf("percentile(%v) = %v, want %v", test.p, got, test.want)
			}
		})
	}

	if got := percentile(nil, percentileP50); got != 0 {
		t.Fatalf("percentile(nil) = %v, want 0", got)
	}
}

func TestDurationStatsIgnoresNonPositive(t *testing.T) {
	s := newDurationStats()
	s.Record(0)
	s.Record(-time.Second)
	s.Record(3 * time.Millisecond)
	s.Record(time.Millisecond)

	snap := s.Snapshot()
	if snap.Count != 2 {
		t.Fatalf("count = %d, want 2", snap.Count)
	}
	if snap.Max != 3*time.Millisecond || snap.Mean != 2*time.Millisecond {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestRunInMemory(t *testing.T) {
	cfg := benchConfig{
		requests:     50,
		producers:    3,
		payloadBytes: 32,
		batchSize:    10,
		timeout:      5 * time.Second,
		drainTimeout: 30 * time.Second,
	}

	res, err := run(context.Background(), cfg, netq.NopLogger{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Store != "memory" {
		t.Fatalf("store = %q, want memory", res.Store)
	}
	if res.Succeeded != 50 {
		t.Fatalf("succeeded = %d, want 50 (failed %d, timed out %d)", res.Succeeded, res.Failed, res.TimedOut)
	}
	if res.Batches == 0 || res.Throughput <= 0 {
		t.Fatalf("result = %+v", res)
	}
}
