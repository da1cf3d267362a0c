package mailqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// DispatcherState reports whether a drain pass is running.
type DispatcherState int32

const (
	// DispatcherIdle means no pass is running.
	DispatcherIdle DispatcherState = iota
	// DispatcherDraining means at least one pass is claiming entries.
	DispatcherDraining
)

func (s DispatcherState) String() string {
	if s == DispatcherDraining {
		return "draining"
	}

	return "idle"
}

// PassResult summarises a single drain pass.
type PassResult struct {
	Attempts  int
	Sent      int
	Failed    int
	Exhausted int
}

// Dispatcher drains a Queue through a Transport, one claimed entry at a time.
type Dispatcher struct {
	queue     *Queue
	transport Transport
	cfg       DispatcherConfig

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	active     int
	background int
	rerun      bool
	closed     bool

	eligibleMu sync.Mutex
	eligibleAt time.Time
}

// NewDispatcher constructs a Dispatcher with defaults and optional settings.
func NewDispatcher(queue *Queue, transport Transport, opts ...DispatcherOption) *Dispatcher {
	if queue == nil {
		panic("mailqueue: nil Queue")
	}
	if transport == nil {
		panic("mailqueue: nil Transport")
	}

	var cfg DispatcherConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()

	ctx, cancel := context.WithCancel(context.Background())

	return &Dispatcher{
		queue:     queue,
		transport: transport,
		cfg:       cfg,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// State returns DispatcherDraining while any pass is running.
func (d *Dispatcher) State() DispatcherState {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.active > 0 {
		return DispatcherDraining
	}

	return DispatcherIdle
}

// Trigger starts a background drain pass and returns immediately.
// Triggers after Close are ignored.
func (d *Dispatcher) Trigger() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()

		return
	}
	if d.cfg.SingleFlight && d.background > 0 {
		d.rerun = true
		d.mu.Unlock()

		return
	}
	d.active++
	d.background++
	d.wg.Add(1)
	d.mu.Unlock()

	go d.runBackground()
}

// Drain runs one pass synchronously until no eligible entry is left.
// It does not take part in single-flight gating: a Trigger during Drain
// always starts its own background pass.
func (d *Dispatcher) Drain(ctx context.Context) (PassResult, error) {
	d.mu.Lock()
	d.active++
	d.mu.Unlock()
	defer d.leave()

	return d.drain(ctx)
}

// Close stops accepting triggers and waits for running passes. When ctx ends
// first the passes are cancelled and Close returns ctx.Err() once they exit.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()

		return nil
	case <-ctx.Done():
		d.cancel()
		<-done

		return ctx.Err()
	}
}

func (d *Dispatcher) runBackground() {
	defer d.wg.Done()

	for {
		res, err := d.drain(d.ctx)
		d.logPass(res, err)

		d.mu.Lock()
		if d.rerun && d.ctx.Err() == nil {
			d.rerun = false
			d.mu.Unlock()

			continue
		}
		d.rerun = false
		d.active--
		d.background--
		d.mu.Unlock()

		return
	}
}

func (d *Dispatcher) leave() {
	d.mu.Lock()
	d.active--
	d.mu.Unlock()
}

func (d *Dispatcher) logPass(res PassResult, err error) {
	if err != nil && !errors.Is(err, context.Canceled) {
		d.cfg.Logger.Error("mailqueue drain pass stopped", "err", err, "attempts", res.Attempts, "sent", res.Sent)

		return
	}
	if res.Attempts > 0 {
		d.cfg.Logger.Info("mailqueue drain pass finished",
			"attempts", res.Attempts,
			"sent", res.Sent,
			"failed", res.Failed,
			"exhausted", res.Exhausted,
		)
	}
}

func (d *Dispatcher) drain(ctx context.Context) (PassResult, error) {
	var res PassResult
	defer d.maybeRecordEligible(ctx)

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := d.wait(ctx); err != nil {
			return res, err
		}

		entry, ok, err := d.queue.DequeueClaim(ctx)
		if err != nil {
			return res, fmt.Errorf("mailqueue claim failed: %w", err)
		}
		if !ok {
			return res, nil
		}

		if err := d.attempt(ctx, entry, &res); err != nil {
			return res, err
		}
	}
}

func (d *Dispatcher) attempt(ctx context.Context, entry Entry, res *PassResult) error {
	res.Attempts++
	sendErr := d.send(ctx, entry)

	storeCtx, cancel := d.storeContext(ctx)
	defer cancel()

	if sendErr == nil {
		if err := d.queue.MarkSent(storeCtx, entry); err != nil {
			return fmt.Errorf("mailqueue mark sent failed: %w", err)
		}
		res.Sent++
		d.cfg.Metrics.AddSent(1)
		d.cfg.Logger.Debug("mailqueue entry sent", "id", entry.ID, "attempt", entry.RetryCount)

		return ctx.Err()
	}

	res.Failed++
	d.cfg.Logger.Warn("mailqueue delivery failed", "id", entry.ID, "attempt", entry.RetryCount, "err", sendErr)
	if d.cfg.FailureHandler != nil {
		d.cfg.FailureHandler(ctx, entry, sendErr)
	}

	if err := d.queue.MarkFailed(storeCtx, entry, sendErr); err != nil {
		return fmt.Errorf("mailqueue release failed: %w", err)
	}
	d.cfg.Metrics.AddFailed(1)

	if d.queue.Exhausted(entry) {
		res.Exhausted++
		d.cfg.Metrics.AddExhausted(1)
		d.cfg.Logger.Warn("mailqueue entry exhausted retries", "id", entry.ID, "attempts", entry.RetryCount)
		if d.cfg.ExhaustedHandler != nil {
			d.cfg.ExhaustedHandler(ctx, entry, sendErr)
		}
	}

	return ctx.Err()
}

// storeContext keeps the post-send update alive when ctx was cancelled during
// the send, so a claimed entry is never left behind.
func (d *Dispatcher) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx.Err() == nil {
		return ctx, func() {}
	}

	return context.WithTimeout(context.WithoutCancel(ctx), d.cfg.ReleaseTimeout)
}

func (d *Dispatcher) send(ctx context.Context, entry Entry) (err error) {
	sendCtx := ctx
	cancel := func() {}
	if d.cfg.SendTimeout > 0 {
		sendCtx, cancel = context.WithTimeout(ctx, d.cfg.SendTimeout)
	}
	defer cancel()

	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", ErrTransportPanic, rec)
		}
		d.cfg.Metrics.ObserveAttemptDuration(time.Since(start))
	}()

	return d.transport.Send(sendCtx, entry.Payload)
}

func (d *Dispatcher) wait(ctx context.Context) error {
	if d.cfg.RateLimiter == nil {
		return nil
	}

	return d.cfg.RateLimiter.Wait(ctx)
}

func (d *Dispatcher) maybeRecordEligible(ctx context.Context) {
	if d.cfg.EligibleInterval <= 0 {
		return
	}
	if ctx.Err() != nil {
		return
	}

	now := d.cfg.Clock.Now()
	d.eligibleMu.Lock()
	nextAllowed := d.eligibleAt.Add(d.cfg.EligibleInterval)
	if !d.eligibleAt.IsZero() && now.Before(nextAllowed) {
		d.eligibleMu.Unlock()

		return
	}
	d.eligibleAt = now
	d.eligibleMu.Unlock()

	count, err := d.queue.Eligible(ctx)
	if err != nil {
		d.cfg.Logger.Warn("mailqueue eligible count failed", "err", err)

		return
	}

	d.cfg.Metrics.SetEligible(count)
}
