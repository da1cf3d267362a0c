// Package storetest holds the behavioural suite every mailqueue.Store must pass.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/AdewaleAdeniji/mailqueue"
)

// Factory returns a fresh, empty store. It is called once per subtest.
type Factory func(t *testing.T) mailqueue.Store

var defaultEligibility = mailqueue.Eligibility{MaxRetries: mailqueue.DefaultMaxRetries}

// Run executes the suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("InsertThenClaim", func(t *testing.T) { testInsertThenClaim(t, newStore(t)) })
	t.Run("ClaimEmpty", func(t *testing.T) { testClaimEmpty(t, newStore(t)) })
	t.Run("ClaimOldestFirst", func(t *testing.T) { testClaimOldestFirst(t, newStore(t)) })
	t.Run("ConcurrentClaimsAreExclusive", func(t *testing.T) { testConcurrentClaims(t, newStore(t)) })
	t.Run("RetryCeiling", func(t *testing.T) { testRetryCeiling(t, newStore(t)) })
	t.Run("SetSentIsIdempotent", func(t *testing.T) { testSetSentIdempotent(t, newStore(t)) })
	t.Run("UnknownID", func(t *testing.T) { testUnknownID(t, newStore(t)) })
	t.Run("CountEligibleExcludesTerminal", func(t *testing.T) { testCountEligible(t, newStore(t)) })
}

func payload(n int) mailqueue.Payload {
	return mailqueue.Payload{
		To:      fmt.Sprintf("user%d@example.com", n),
		Subject: fmt.Sprintf("subject %d", n),
		Body:    fmt.Sprintf("body %d", n),
	}
}

func lookup(t *testing.T, store mailqueue.Store) mailqueue.Lookup {
	t.Helper()
	l, ok := store.(mailqueue.Lookup)
	require.True(t, ok, "store %T does not implement mailqueue.Lookup", store)

	return l
}

func testInsertThenClaim(t *testing.T, store mailqueue.Store) {
	ctx := context.Background()

	id, err := store.Insert(ctx, payload(1))
	require.NoError(t, err)
	require.False(t, id.IsZero())

	fresh, err := lookup(t, store).Get(ctx, id)
	require.NoError(t, err)
	require.False(t, fresh.Sent)
	require.False(t, fresh.Claimed)
	require.Equal(t, 0, fresh.RetryCount)
	require.False(t, fresh.CreatedAt.IsZero())

	count, err := store.CountEligible(ctx, defaultEligibility)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	entry, err := store.ClaimOneEligible(ctx, defaultEligibility)
	require.NoError(t, err)
	require.Equal(t, id, entry.ID)
	require.Equal(t, payload(1), entry.Payload)
	require.True(t, entry.Claimed)
	require.False(t, entry.Sent)
	require.Equal(t, 1, entry.RetryCount)

	count, err = store.CountEligible(ctx, defaultEligibility)
	require.NoError(t, err)
	require.Equal(t, 0, count)

	_, err = store.ClaimOneEligible(ctx, defaultEligibility)
	require.ErrorIs(t, err, mailqueue.ErrNoEligibleEntries)
}

func testClaimEmpty(t *testing.T, store mailqueue.Store) {
	_, err := store.ClaimOneEligible(context.Background(), defaultEligibility)
	require.ErrorIs(t, err, mailqueue.ErrNoEligibleEntries)

	count, err := store.CountEligible(context.Background(), defaultEligibility)
	require.NoError(t, err)
	require.Equal(t, 0, count)
}

func testClaimOldestFirst(t *testing.T, store mailqueue.Store) {
	ctx := context.Background()

	ids := make([]mailqueue.ID, 0, 3)
	for i := 0; i < 3; i++ {
		id, err := store.Insert(ctx, payload(i))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	for i, want := range ids {
		entry, err := store.ClaimOneEligible(ctx, defaultEligibility)
		require.NoError(t, err)
		require.Equal(t, want, entry.ID, "claim %d out of order", i)
	}
}

func testConcurrentClaims(t *testing.T, store mailqueue.Store) {
	ctx := context.Background()
	const (
		entries = 20
		workers = 8
	)

	for i := 0; i < entries; i++ {
		_, err := store.Insert(ctx, payload(i))
		require.NoError(t, err)
	}

	var (
		mu      sync.Mutex
		claimed = make(map[mailqueue.ID]int)
	)
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for {
				entry, err := store.ClaimOneEligible(gctx, defaultEligibility)
				if errors.Is(err, mailqueue.ErrNoEligibleEntries) {
					return nil
				}
				if err != nil {
					return err
				}
				mu.Lock()
				claimed[entry.ID]++
				mu.Unlock()
			}
		})
	}
	require.NoError(t, g.Wait())

	require.Len(t, claimed, entries)
	for id, n := range claimed {
		require.Equal(t, 1, n, "entry %s claimed %d times", id, n)
	}
}

func testRetryCeiling(t *testing.T, store mailqueue.Store) {
	ctx := context.Background()

	id, err := store.Insert(ctx, payload(1))
	require.NoError(t, err)

	for attempt := 1; attempt <= mailqueue.DefaultMaxRetries; attempt++ {
		entry, err := store.ClaimOneEligible(ctx, defaultEligibility)
		require.NoError(t, err)
		require.Equal(t, id, entry.ID)
		require.Equal(t, attempt, entry.RetryCount)
		require.NoError(t, store.SetUnclaimed(ctx, id, fmt.Sprintf("attempt %d failed", attempt)))
	}

	_, err = store.ClaimOneEligible(ctx, defaultEligibility)
	require.ErrorIs(t, err, mailqueue.ErrNoEligibleEntries)

	entry, err := lookup(t, store).Get(ctx, id)
	require.NoError(t, err)
	require.False(t, entry.Sent)
	require.False(t, entry.Claimed)
	require.Equal(t, mailqueue.DefaultMaxRetries, entry.RetryCount)
	require.Equal(t, "attempt 3 failed", entry.LastError)
	require.Equal(t, mailqueue.StateExhausted, entry.State(mailqueue.DefaultMaxRetries))
}

func testSetSentIdempotent(t *testing.T, store mailqueue.Store) {
	ctx := context.Background()

	id, err := store.Insert(ctx, payload(1))
	require.NoError(t, err)
	_, err = store.ClaimOneEligible(ctx, defaultEligibility)
	require.NoError(t, err)

	require.NoError(t, store.SetSent(ctx, id))
	require.NoError(t, store.SetSent(ctx, id))

	entry, err := lookup(t, store).Get(ctx, id)
	require.NoError(t, err)
	require.True(t, entry.Sent)
	require.Equal(t, 1, entry.RetryCount)
	require.NotNil(t, entry.SentAt)

	_, err = store.ClaimOneEligible(ctx, defaultEligibility)
	require.ErrorIs(t, err, mailqueue.ErrNoEligibleEntries)
}

func testUnknownID(t *testing.T, store mailqueue.Store) {
	ctx := context.Background()
	unknown, err := mailqueue.UUIDv7Generator{}.New()
	require.NoError(t, err)

	require.ErrorIs(t, store.SetSent(ctx, unknown), mailqueue.ErrEntryNotFound)
	require.ErrorIs(t, store.SetUnclaimed(ctx, unknown, ""), mailqueue.ErrEntryNotFound)
	_, err = lookup(t, store).Get(ctx, unknown)
	require.ErrorIs(t, err, mailqueue.ErrEntryNotFound)
}

func testCountEligible(t *testing.T, store mailqueue.Store) {
	ctx := context.Background()
	single := mailqueue.Eligibility{MaxRetries: 1}

	sentID, err := store.Insert(ctx, payload(1))
	require.NoError(t, err)
	exhaustedID, err := store.Insert(ctx, payload(2))
	require.NoError(t, err)
	_, err = store.Insert(ctx, payload(3))
	require.NoError(t, err)

	entry, err := store.ClaimOneEligible(ctx, single)
	require.NoError(t, err)
	require.Equal(t, sentID, entry.ID)
	require.NoError(t, store.SetSent(ctx, sentID))

	entry, err = store.ClaimOneEligible(ctx, single)
	require.NoError(t, err)
	require.Equal(t, exhaustedID, entry.ID)
	require.NoError(t, store.SetUnclaimed(ctx, exhaustedID, "rejected"))

	count, err := store.CountEligible(ctx, single)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	count, err = store.CountEligible(ctx, defaultEligibility)
	require.NoError(t, err)
	require.Equal(t, 2, count, "exhaustion depends on the ceiling passed in")
}
