package transport

import (
	"context"
	"testing"

	"github.com/AdewaleAdeniji/mailqueue"
)

type captureLogger struct {
	mailqueue.NopLogger
	infos []string
	args  [][]any
}

func (l *captureLogger) Info(msg string, args ...any) {
	l.infos = append(l.infos, msg)
	l.args = append(l.args, args)
}

func TestLogSend(t *testing.T) {
	logger := &captureLogger{}
	transport := NewLog(logger)

	if err := transport.Send(context.Background(), mailqueue.Payload{To: "a@example.com", Subject: "s", Body: "body"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(logger.infos) != 1 || logger.infos[0] != "sending email" {
		t.Fatalf("expected one log line, got %v", logger.infos)
	}
	if logger.args[0][1] != "a@example.com" {
		t.Fatalf("expected recipient in log args, got %v", logger.args[0])
	}
}

func TestLogSendCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := NewLog(nil).Send(ctx, mailqueue.Payload{To: "a@example.com"}); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
