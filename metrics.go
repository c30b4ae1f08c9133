package outbox

import "time"

// Metrics captures relay, reaper, and health-surface telemetry.
type Metrics interface {
	// ObserveBatchDuration records the time to process a claimed batch.
	ObserveBatchDuration(duration time.Duration)
	// AddCompleted increments the count of successfully published events.
	AddCompleted(count int)
	// AddFailed increments the count of retriable publish failures.
	AddFailed(count int)
	// AddDead increments the count of events transitioned to DEAD_LETTER.
	AddDead(count int)
	// AddReaped increments the count of leases recovered by the Reaper.
	AddReaped(count int)
	// SetPending updates the pending-event gauge.
	SetPending(count int)
	// SetProcessing updates the in-flight (PROCESSING) gauge.
	SetProcessing(count int)
	// SetDeadLetter updates the dead-letter gauge.
	SetDeadLetter(count int)
	// SetOldestPendingAge updates the oldest-pending-age gauge, in seconds.
	SetOldestPendingAge(seconds float64)
	// SetBacklogUtilization updates the backlog utilization gauge, 0-100.
	SetBacklogUtilization(percent float64)
}

// NopMetrics is a no-op metrics recorder.
type NopMetrics struct{}

// ObserveBatchDuration implements Metrics.
func (NopMetrics) ObserveBatchDuration(time.Duration) {}

// AddCompleted implements Metrics.
func (NopMetrics) AddCompleted(int) {}

// AddFailed implements Metrics.
func (NopMetrics) AddFailed(int) {}

// AddDead implements Metrics.
func (NopMetrics) AddDead(int) {}

// AddReaped implements Metrics.
func (NopMetrics) AddReaped(int) {}

// SetPending implements Metrics.
func (NopMetrics) SetPending(int) {}

// SetProcessing implements Metrics.
func (NopMetrics) SetProcessing(int) {}

// SetDeadLetter implements Metrics.
func (NopMetrics) SetDeadLetter(int) {}

// SetOldestPendingAge implements Metrics.
func (NopMetrics) SetOldestPendingAge(float64) {}

// SetBacklogUtilization implements Metrics.
func (NopMetrics) SetBacklogUtilization(float64) {}
