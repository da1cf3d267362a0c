package mailqueue

import "context"

// FailureHandler is called for every failed delivery attempt, before the entry is returned to the pool.
type FailureHandler func(ctx context.Context, entry Entry, err error)

// ExhaustedHandler is called once an entry has failed its final allowed attempt.
// The entry stays in storage; the hook only observes it.
type ExhaustedHandler func(ctx context.Context, entry Entry, err error)
