package transport

import (
	"context"

	"github.com/AdewaleAdeniji/mailqueue"
)

// Log records every message instead of delivering it. It never fails.
type Log struct {
	logger mailqueue.Logger
}

var _ mailqueue.Transport = (*Log)(nil)

// NewLog returns a Log transport writing to logger.
func NewLog(logger mailqueue.Logger) *Log {
	if logger == nil {
		logger = mailqueue.NopLogger{}
	}

	return &Log{logger: logger}
}

// Send implements mailqueue.Transport.
func (l *Log) Send(ctx context.Context, payload mailqueue.Payload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.logger.Info("sending email",
		"to", payload.To,
		"subject", payload.Subject,
		"body_bytes", len(payload.Body),
	)

	return nil
}
