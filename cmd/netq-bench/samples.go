package main

import (
	"math"
	"slices"
	"sync"
	"time"
)

const (
	percentileP50 = 0.50
	percentileP95 = 0.95
	percentileP99 = 0.99
)

type durationStats struct {
	mu      sync.Mutex
	samples []time.Duration
}

func newDurationStats() *durationStats {
	return &durationStats{}
}

func (s *durationStats) Record(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	s.samples = append(s.samples, d)
	s.mu.Unlock()
}

func (s *durationStats) Snapshot() durationSnapshot {
	s.mu.Lock()
	samples := slices.Clone(s.samples)
	s.mu.Unlock()
	if len(samples) == 0 {
		return durationSnapshot{}
	}
	slices.Sort(samples)

	return durationSnapshot{
		P50:   percentile(samples, percentileP50),
		P95:   percentile(samples, percentileP95),
		P99:   percentile(samples, percentileP99),
		Max:   samples[len(samples)-1],
		Mean:  meanDuration(samples),
		Count: len(samples),
	}
}

type durationSnapshot struct {
	P50   time.Duration
	P95   time.Duration
	P99   time.Duration
	Max   time.Duration
	Mean  time.Duration
	Count int
}

// percentile expects sorted samples.
func percentile(samples []time.Duration, p float64) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	idx := int(math.Ceil(p*float64(len(samples)))) - 1
	idx = max(0, min(idx, len(samples)-1))

	return samples[idx]
}

func meanDuration(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range samples {
		sum += d
	}

	return sum / time.Duration(len(samples))
}
