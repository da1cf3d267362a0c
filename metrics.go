package mailqueue

import "time"

// Metrics captures queue and dispatcher telemetry.
type Metrics interface {
	// ObserveAttemptDuration records how long a single Transport.Send took.
	ObserveAttemptDuration(duration time.Duration)
	// AddEnqueued increments the count of accepted entries.
	AddEnqueued(count int)
	// AddSent increments the count of delivered entries.
	AddSent(count int)
	// AddFailed increments the count of failed attempts.
	AddFailed(count int)
	// AddExhausted increments the count of entries that ran out of retries.
	AddExhausted(count int)
	// SetEligible updates the current eligible entry count.
	SetEligible(count int)
}

// NopMetrics is a no-op metrics recorder.
type NopMetrics struct{}

// ObserveAttemptDuration implements Metrics.
func (NopMetrics) ObserveAttemptDuration(time.Duration) {}

// AddEnqueued implements Metrics.
func (NopMetrics) AddEnqueued(int) {}

// AddSent implements Metrics.
func (NopMetrics) AddSent(int) {}

// AddFailed implements Metrics.
func (NopMetrics) AddFailed(int) {}

// AddExhausted implements Metrics.
func (NopMetrics) AddExhausted(int) {}

// SetEligible implements Metrics.
func (NopMetrics) SetEligible(int) {}
