//go:build integration

package mongo_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/AdewaleAdeniji/mailqueue"
	"github.com/AdewaleAdeniji/mailqueue/internal/storetest"
	"github.com/AdewaleAdeniji/mailqueue/mongo"
)

var collectionSeq atomic.Int64

func TestStoreConformanceIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test disabled in short mode")
	}

	ctx := context.Background()
	db := startMongoContainer(t, ctx)

	storetest.Run(t, func(t *testing.T) mailqueue.Store {
		return newIndexedStore(t, ctx, db)
	})
}

func TestDeleteSentBeforeIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test disabled in short mode")
	}

	ctx := context.Background()
	db := startMongoContainer(t, ctx)
	store := newIndexedStore(t, ctx, db)
	eligibility := mailqueue.Eligibility{MaxRetries: 1}

	sentID, err := store.Insert(ctx, mailqueue.Payload{To: "sent@example.com"})
	require.NoError(t, err)
	failedID, err := store.Insert(ctx, mailqueue.Payload{To: "failed@example.com"})
	require.NoError(t, err)

	_, err = store.ClaimOneEligible(ctx, eligibility)
	require.NoError(t, err)
	require.NoError(t, store.SetSent(ctx, sentID))
	_, err = store.ClaimOneEligible(ctx, eligibility)
	require.NoError(t, err)
	require.NoError(t, store.SetUnclaimed(ctx, failedID, "rejected"))

	deleted, err := store.DeleteSentBefore(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)

	_, err = store.Get(ctx, sentID)
	require.ErrorIs(t, err, mailqueue.ErrEntryNotFound)
	failed, err := store.Get(ctx, failedID)
	require.NoError(t, err)
	require.Equal(t, "rejected", failed.LastError)
}

func newIndexedStore(t *testing.T, ctx context.Context, db *mongod.Database) *mongo.Store {
	t.Helper()
	name := fmt.Sprintf("emailQueue_%d", collectionSeq.Add(1))
	store, err := mongo.NewStore(db, mongo.WithCollection(name))
	require.NoError(t, err)
	require.NoError(t, store.EnsureIndexes(ctx))

	return store
}

func startMongoContainer(t *testing.T, ctx context.Context) *mongod.Database {
	t.Helper()
	port := nat.Port("27017/tcp")
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{string(port)},
			WaitingFor:   wait.ForListeningPort(port).WithStartupTimeout(2 * time.Minute),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("start mongo container: %v", err)
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

	client, err := mongod.Connect(options.Client().ApplyURI(fmt.Sprintf("mongodb://%s:%s", host, mappedPort.Port())))
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Disconnect(ctx)
		_ = container.Terminate(ctx)
	})

	return client.Database("mailqueue")
}
