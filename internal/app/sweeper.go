package app

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/AdewaleAdeniji/mailqueue"
)

// Sweeper calls a function on every activation of a cron schedule.
type Sweeper struct {
	schedule cron.Schedule
	sweep    func(context.Context) error
	clock    mailqueue.Clock
	logger   mailqueue.Logger
}

// NewSweeper returns a Sweeper. A nil logger discards output.
func NewSweeper(schedule cron.Schedule, sweep func(context.Context) error, logger mailqueue.Logger) *Sweeper {
	if schedule == nil || sweep == nil {
		panic("app: nil schedule or sweep func")
	}
	if logger == nil {
		logger = mailqueue.NopLogger{}
	}

	return &Sweeper{schedule: schedule, sweep: sweep, clock: mailqueue.SystemClock{}, logger: logger}
}

// Run blocks until ctx is done. Sweep errors are logged and do not stop the loop.
func (s *Sweeper) Run(ctx context.Context) error {
	for {
		now := s.clock.Now()
		timer := time.NewTimer(s.schedule.Next(now).Sub(now))

		select {
		case <-ctx.Done():
			timer.Stop()

			return ctx.Err()
		case <-timer.C:
		}

		if err := s.sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
			if errors.Is(err, mailqueue.ErrNotReady) {
				s.logger.Debug("mailqueue sweep skipped, not ready")

				continue
			}
			s.logger.Warn("mailqueue sweep failed", "err", err)
		}
	}
}
