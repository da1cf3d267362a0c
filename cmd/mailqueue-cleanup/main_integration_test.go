//go:build integration

package main

import (
	"context"
	"errors"
	"testing"

	"github.com/AdewaleAdeniji/mailqueue"
	"github.com/AdewaleAdeniji/mailqueue/cmd/internal/clitest"
	"github.com/AdewaleAdeniji/mailqueue/mysql"
)

func TestCleanupCLIContainer(t *testing.T) {
	ctx := context.Background()
	env := clitest.StartMySQL(ctx, t)

	store, err := mysql.NewStore(env.DB)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	queue, err := mailqueue.NewQueue(store, mailqueue.WithMaxRetries(1))
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}

	sent := enqueue(ctx, t, queue, "sent@example.com")
	exhausted := enqueue(ctx, t, queue, "exhausted@example.com")

	d := mailqueue.NewDispatcher(queue, mailqueue.TransportFunc(func(_ context.Context, p mailqueue.Payload) error {
		if p.To == "exhausted@example.com" {
			return errors.New("550 rejected")
		}

		return nil
	}))
	if _, err := d.Drain(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if _, err := env.DB.ExecContext(ctx,
		"UPDATE email_queue SET sent_at = sent_at - INTERVAL 2 DAY, updated_at = updated_at - INTERVAL 2 DAY",
	); err != nil {
		t.Fatalf("age rows: %v", err)
	}

	bin := clitest.Build(t, ".")
	code, logs := clitest.Run(ctx, t, env.Network.Name, bin,
		"-dsn", env.DSN,
		"-retention", "24h",
		"-once",
	)
	if code != 0 {
		t.Fatalf("cleanup exit code %d logs: %s", code, logs)
	}

	if _, err := store.Get(ctx, sent); !errors.Is(err, mailqueue.ErrEntryNotFound) {
		t.Fatalf("expected sent entry removed, got %v", err)
	}
	entry, err := store.Get(ctx, exhausted)
	if err != nil {
		t.Fatalf("exhausted entry: %v", err)
	}
	if entry.State(queue.MaxRetries()) != mailqueue.StateExhausted {
		t.Fatalf("unexpected state %s", entry.State(queue.MaxRetries()))
	}
}

func enqueue(ctx context.Context, t *testing.T, queue *mailqueue.Queue, to string) mailqueue.ID {
	t.Helper()

	id, err := queue.Enqueue(ctx, mailqueue.Payload{To: to, Subject: "hello"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	return id
}
