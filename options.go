package mailqueue

import (
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultEligibleInterval = 0
	defaultReleaseTimeout   = 5 * time.Second
)

// DispatcherConfig defines how a Dispatcher drains the queue.
type DispatcherConfig struct {
	Clock            Clock
	Logger           Logger
	Metrics          Metrics
	FailureHandler   FailureHandler
	ExhaustedHandler ExhaustedHandler
	// SendTimeout bounds a single Transport.Send; zero leaves it unbounded.
	SendTimeout time.Duration
	// ReleaseTimeout bounds the store update issued after a pass was cancelled mid-attempt.
	ReleaseTimeout time.Duration
	// RateLimiter paces claims when set.
	RateLimiter *rate.Limiter
	// SingleFlight allows only one background pass at a time.
	SingleFlight     bool
	EligibleInterval time.Duration
}

func (c DispatcherConfig) withDefaults() DispatcherConfig {
	if c.Clock == nil {
		c.Clock = SystemClock{}
	}
	if c.Logger == nil {
		c.Logger = NopLogger{}
	}
	if c.Metrics == nil {
		c.Metrics = NopMetrics{}
	}
	if c.ReleaseTimeout <= 0 {
		c.ReleaseTimeout = defaultReleaseTimeout
	}
	if c.EligibleInterval <= 0 {
		c.EligibleInterval = defaultEligibleInterval
	}

	return c
}

// DispatcherOption configures Dispatcher behavior.
type DispatcherOption func(*DispatcherConfig)

// WithClock sets the dispatcher clock.
func WithClock(clock Clock) DispatcherOption {
	return func(c *DispatcherConfig) {
		c.Clock = clock
	}
}

// WithLogger sets the dispatcher logger.
func WithLogger(logger Logger) DispatcherOption {
	return func(c *DispatcherConfig) {
		c.Logger = logger
	}
}

// WithMetrics sets the dispatcher metrics recorder.
func WithMetrics(metrics Metrics) DispatcherOption {
	return func(c *DispatcherConfig) {
		c.Metrics = metrics
	}
}

// WithFailureHandler registers a callback for failed attempts.
func WithFailureHandler(handler FailureHandler) DispatcherOption {
	return func(c *DispatcherConfig) {
		c.FailureHandler = handler
	}
}

// WithExhaustedHandler registers a callback for entries that failed their last attempt.
func WithExhaustedHandler(handler ExhaustedHandler) DispatcherOption {
	return func(c *DispatcherConfig) {
		c.ExhaustedHandler = handler
	}
}

// WithSendTimeout bounds each Transport.Send call. A timeout counts as a failed attempt.
func WithSendTimeout(timeout time.Duration) DispatcherOption {
	return func(c *DispatcherConfig) {
		c.SendTimeout = timeout
	}
}

// WithReleaseTimeout bounds the store update made after a pass is cancelled mid-attempt.
func WithReleaseTimeout(timeout time.Duration) DispatcherOption {
	return func(c *DispatcherConfig) {
		c.ReleaseTimeout = timeout
	}
}

// WithRateLimiter waits on limiter before every claim.
func WithRateLimiter(limiter *rate.Limiter) DispatcherOption {
	return func(c *DispatcherConfig) {
		c.RateLimiter = limiter
	}
}

// WithSingleFlight collapses triggers that arrive during a background pass
// into one extra pass instead of starting overlapping ones.
func WithSingleFlight(enabled bool) DispatcherOption {
	return func(c *DispatcherConfig) {
		c.SingleFlight = enabled
	}
}

// WithEligibleInterval sets the minimum interval between eligible count samples.
// Use a positive value to enable sampling or zero to keep it disabled.
// The default is disabled.
func WithEligibleInterval(interval time.Duration) DispatcherOption {
	return func(c *DispatcherConfig) {
		c.EligibleInterval = interval
	}
}
