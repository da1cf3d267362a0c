// Package app holds the service context: the queue and dispatcher become
// available only after the store is connected, and callers see ErrNotReady
// until then.
package app

import (
	"context"
	"errors"
	"sync"

	"github.com/AdewaleAdeniji/mailqueue"
)

// ErrAlreadyInitialized is returned by a second call to Init.
var ErrAlreadyInitialized = errors.New("app: already initialized")

// App is the explicit replacement for process-wide queue state.
type App struct {
	logger  mailqueue.Logger
	metrics mailqueue.Metrics

	mu         sync.RWMutex
	queue      *mailqueue.Queue
	dispatcher *mailqueue.Dispatcher
}

// New returns an App in the not-ready state.
func New(logger mailqueue.Logger, metrics mailqueue.Metrics) *App {
	if logger == nil {
		logger = mailqueue.NopLogger{}
	}
	if metrics == nil {
		metrics = mailqueue.NopMetrics{}
	}

	return &App{logger: logger, metrics: metrics}
}

// Init makes the app ready and starts the first drain pass, which picks up
// entries left from a previous run.
func (a *App) Init(queue *mailqueue.Queue, dispatcher *mailqueue.Dispatcher) error {
	if queue == nil || dispatcher == nil {
		panic("app: nil queue or dispatcher")
	}

	a.mu.Lock()
	if a.queue != nil {
		a.mu.Unlock()

		return ErrAlreadyInitialized
	}
	a.queue = queue
	a.dispatcher = dispatcher
	a.mu.Unlock()

	a.logger.Info("mailqueue ready", "max_retries", queue.MaxRetries())
	dispatcher.Trigger()

	return nil
}

// Ready reports whether Init has completed.
func (a *App) Ready() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return a.queue != nil
}

// Enqueue persists payload and triggers a background pass without waiting for it.
func (a *App) Enqueue(ctx context.Context, payload mailqueue.Payload) (mailqueue.ID, error) {
	queue, dispatcher, ok := a.components()
	if !ok {
		return mailqueue.ID{}, mailqueue.ErrNotReady
	}

	id, err := queue.Enqueue(ctx, payload)
	if err != nil {
		return mailqueue.ID{}, err
	}
	a.metrics.AddEnqueued(1)
	a.logger.Debug("mailqueue entry enqueued", "id", id)
	dispatcher.Trigger()

	return id, nil
}

// Sweep triggers a pass when eligible entries exist, so delivery resumes after
// a pass that stopped on a store error.
func (a *App) Sweep(ctx context.Context) error {
	queue, dispatcher, ok := a.components()
	if !ok {
		return mailqueue.ErrNotReady
	}

	empty, err := queue.IsEmpty(ctx)
	if err != nil {
		return err
	}
	if !empty {
		dispatcher.Trigger()
	}

	return nil
}

// Close stops the dispatcher. It is a no-op before Init.
func (a *App) Close(ctx context.Context) error {
	_, dispatcher, ok := a.components()
	if !ok {
		return nil
	}

	return dispatcher.Close(ctx)
}

func (a *App) components() (*mailqueue.Queue, *mailqueue.Dispatcher, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return a.queue, a.dispatcher, a.queue != nil
}
