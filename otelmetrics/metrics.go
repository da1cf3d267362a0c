// Package otelmetrics implements mailqueue.Metrics with OpenTelemetry instruments.
package otelmetrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/AdewaleAdeniji/mailqueue"
)

// meterName is the instrumentation scope name for mailqueue metrics.
const meterName = "github.com/AdewaleAdeniji/mailqueue"

// Metrics records queue telemetry. Instruments:
//   - mailqueue.attempt.duration (Float64Histogram): Transport.Send time in seconds
//   - mailqueue.entries.enqueued, .sent, .exhausted (Int64Counter)
//   - mailqueue.attempts.failed (Int64Counter)
//   - mailqueue.entries.eligible (Int64Gauge): last sampled eligible count
type Metrics struct {
	duration  metric.Float64Histogram
	enqueued  metric.Int64Counter
	sent      metric.Int64Counter
	failed    metric.Int64Counter
	exhausted metric.Int64Counter
	eligible  metric.Int64Gauge
}

var _ mailqueue.Metrics = (*Metrics)(nil)

// New returns Metrics backed by the global MeterProvider. Without a configured
// provider the instruments are no-ops.
func New() *Metrics {
	return NewWithMeter(otel.Meter(meterName))
}

// NewWithProvider returns Metrics using a meter from provider.
func NewWithProvider(provider metric.MeterProvider) *Metrics {
	return NewWithMeter(provider.Meter(meterName))
}

// NewWithMeter returns Metrics using the provided meter.
func NewWithMeter(meter metric.Meter) *Metrics {
	// instrument errors still come with usable no-op instruments
	duration, _ := meter.Float64Histogram(
		"mailqueue.attempt.duration",
		metric.WithDescription("Duration of a single delivery attempt in seconds"),
		metric.WithUnit("s"),
	)
	enqueued, _ := meter.Int64Counter(
		"mailqueue.entries.enqueued",
		metric.WithDescription("Entries accepted into the queue"),
		metric.WithUnit("{entry}"),
	)
	sent, _ := meter.Int64Counter(
		"mailqueue.entries.sent",
		metric.WithDescription("Entries delivered and marked sent"),
		metric.WithUnit("{entry}"),
	)
	failed, _ := meter.Int64Counter(
		"mailqueue.attempts.failed",
		metric.WithDescription("Delivery attempts that failed and released their entry"),
		metric.WithUnit("{attempt}"),
	)
	exhausted, _ := meter.Int64Counter(
		"mailqueue.entries.exhausted",
		metric.WithDescription("Entries that used their last retry without being sent"),
		metric.WithUnit("{entry}"),
	)
	eligible, _ := meter.Int64Gauge(
		"mailqueue.entries.eligible",
		metric.WithDescription("Entries currently eligible for a claim"),
		metric.WithUnit("{entry}"),
	)

	return &Metrics{
		duration:  duration,
		enqueued:  enqueued,
		sent:      sent,
		failed:    failed,
		exhausted: exhausted,
		eligible:  eligible,
	}
}

// ObserveAttemptDuration implements mailqueue.Metrics.
func (m *Metrics) ObserveAttemptDuration(d time.Duration) {
	m.duration.Record(context.Background(), d.Seconds())
}

// AddEnqueued implements mailqueue.Metrics.
func (m *Metrics) AddEnqueued(count int) {
	m.enqueued.Add(context.Background(), int64(count))
}

// AddSent implements mailqueue.Metrics.
func (m *Metrics) AddSent(count int) {
	m.sent.Add(context.Background(), int64(count))
}

// AddFailed implements mailqueue.Metrics.
func (m *Metrics) AddFailed(count int) {
	m.failed.Add(context.Background(), int64(count))
}

// AddExhausted implements mailqueue.Metrics.
func (m *Metrics) AddExhausted(count int) {
	m.exhausted.Add(context.Background(), int64(count))
}

// SetEligible implements mailqueue.Metrics.
func (m *Metrics) SetEligible(count int) {
	m.eligible.Record(context.Background(), int64(count))
}
