//go:build integration

package mysql_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	_ "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/AdewaleAdeniji/mailqueue"
	"github.com/AdewaleAdeniji/mailqueue/internal/storetest"
	"github.com/AdewaleAdeniji/mailqueue/mysql"
)

var tableSeq atomic.Int64

func TestStoreConformanceIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test disabled in short mode")
	}

	ctx := context.Background()
	container, db := startMySQLContainer(t, ctx)
	t.Cleanup(func() {
		_ = db.Close()
		_ = container.Terminate(ctx)
	})

	storetest.Run(t, func(t *testing.T) mailqueue.Store {
		return newMigratedStore(t, ctx, db)
	})
}

func TestDispatcherDrainIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test disabled in short mode")
	}

	ctx := context.Background()
	container, db := startMySQLContainer(t, ctx)
	t.Cleanup(func() {
		_ = db.Close()
		_ = container.Terminate(ctx)
	})

	store := newMigratedStore(t, ctx, db)
	queue, err := mailqueue.NewQueue(store)
	require.NoError(t, err)

	good, err := queue.Enqueue(ctx, mailqueue.Payload{To: "good@example.com", Subject: "hi"})
	require.NoError(t, err)
	bad, err := queue.Enqueue(ctx, mailqueue.Payload{To: "bad@example.com", Subject: "hi"})
	require.NoError(t, err)

	dispatcher := mailqueue.NewDispatcher(queue, mailqueue.TransportFunc(func(_ context.Context, p mailqueue.Payload) error {
		if p.To == "bad@example.com" {
			return errors.New("550 mailbox unavailable")
		}
		return nil
	}))
	res, err := dispatcher.Drain(ctx)
	require.NoError(t, err)
	require.Equal(t, 4, res.Attempts)
	require.Equal(t, 1, res.Sent)
	require.Equal(t, 1, res.Exhausted)

	sent, err := store.Get(ctx, good)
	require.NoError(t, err)
	require.True(t, sent.Sent)
	require.NotNil(t, sent.SentAt)

	exhausted, err := store.Get(ctx, bad)
	require.NoError(t, err)
	require.False(t, exhausted.Sent)
	require.False(t, exhausted.Claimed)
	require.Equal(t, mailqueue.DefaultMaxRetries, exhausted.RetryCount)
	require.Equal(t, "550 mailbox unavailable", exhausted.LastError)

	empty, err := queue.IsEmpty(ctx)
	require.NoError(t, err)
	require.True(t, empty)
}

func TestCleanupIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test disabled in short mode")
	}

	ctx := context.Background()
	container, db := startMySQLContainer(t, ctx)
	t.Cleanup(func() {
		_ = db.Close()
		_ = container.Terminate(ctx)
	})

	store := newMigratedStore(t, ctx, db)
	eligibility := mailqueue.Eligibility{MaxRetries: 1}

	sentID, err := store.Insert(ctx, mailqueue.Payload{To: "sent@example.com"})
	require.NoError(t, err)
	exhaustedID, err := store.Insert(ctx, mailqueue.Payload{To: "exhausted@example.com"})
	require.NoError(t, err)

	claimed, err := store.ClaimOneEligible(ctx, eligibility)
	require.NoError(t, err)
	require.Equal(t, sentID, claimed.ID)
	require.NoError(t, store.SetSent(ctx, sentID))

	claimed, err = store.ClaimOneEligible(ctx, eligibility)
	require.NoError(t, err)
	require.Equal(t, exhaustedID, claimed.ID)
	require.NoError(t, store.SetUnclaimed(ctx, exhaustedID, "rejected"))

	result, err := store.Cleanup(ctx, mysql.CleanupOptions{Before: time.Now().Add(time.Hour)})
	require.NoError(t, err)
	require.Equal(t, int64(1), result.Sent)

	_, err = store.Get(ctx, sentID)
	require.ErrorIs(t, err, mailqueue.ErrEntryNotFound)
	_, err = store.Get(ctx, exhaustedID)
	require.NoError(t, err)
}

func newMigratedStore(t *testing.T, ctx context.Context, db *sql.DB) *mysql.Store {
	t.Helper()
	table := fmt.Sprintf("email_queue_%d", tableSeq.Add(1))
	store, err := mysql.NewStore(db, mysql.WithTable(table))
	require.NoError(t, err)
	require.NoError(t, store.Migrate(ctx))

	return store
}

func startMySQLContainer(t *testing.T, ctx context.Context) (testcontainers.Container, *sql.DB) {
	t.Helper()
	port := nat.Port("3306/tcp")
	req := testcontainers.ContainerRequest{
		Image:        "mysql:8.0.36",
		ExposedPorts: []string{string(port)},
		Env: map[string]string{
			"MYSQL_ROOT_PASSWORD": "secret",
			"MYSQL_DATABASE":      "mailqueue",
		},
		WaitingFor: wait.ForSQL(port, "mysql", func(host string, port nat.Port) string {
			return fmt.Sprintf("root:secret@tcp(%s:%s)/mailqueue?parseTime=true", host, port.Port())
		}).WithStartupTimeout(2 * time.Minute),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("start mysql container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("resolve host: %v", err)
	}
	mappedPort, err := container.MappedPort(ctx, port)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("resolve port: %v", err)
	}

	dsn := fmt.Sprintf("root:secret@tcp(%s:%s)/mailqueue?parseTime=true", host, mappedPort.Port())
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("open db: %v", err)
	}

	return container, db
}
