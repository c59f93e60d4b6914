package netq

import "time"

// Metrics captures dispatcher-level telemetry.
type Metrics interface {
	// ObserveBatchDuration records the time to execute and persist a batch.
	ObserveBatchDuration(duration time.Duration)
	// AddSucceeded increments the count of completed HTTP exchanges.
	AddSucceeded(count int)
	// AddFailed increments the count of exchanges that ended in a transport error.
	AddFailed(count int)
	// AddTimedOut increments the count of exchanges that exceeded their timeout.
	AddTimedOut(count int)
	// AddPersistErrors increments the count of outcomes that could not be stored.
	AddPersistErrors(count int)
	// AddExpired increments the count of responses removed by the reaper.
	AddExpired(count int)
	// SetPending updates the current queued request count.
	SetPending(count int)
}

// NopMetrics is a no-op metrics recorder.
type NopMetrics struct{}

// ObserveBatchDuration implements Metrics.
func (NopMetrics) ObserveBatchDuration(time.Duration) {}

// AddSucceeded implements Metrics.
func (NopMetrics) AddSucceeded(int) {}

// AddFailed implements Metrics.
func (NopMetrics) AddFailed(int) {}

// AddTimedOut implements Metrics.
func (NopMetrics) AddTimedOut(int) {}

// AddPersistErrors implements Metrics.
func (NopMetrics) AddPersistErrors(int) {}

// AddExpired implements Metrics.
func (NopMetrics) AddExpired(int) {}

// SetPending implements Metrics.
func (NopMetrics) SetPending(int) {}
