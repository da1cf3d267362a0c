package mailqueue

import (
	"context"
	"errors"
	"unicode/utf8"
)

const maxErrorLen = 1024

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithMaxRetries sets how many claims an entry gets before it is abandoned.
func WithMaxRetries(n int) QueueOption {
	return func(q *Queue) {
		q.maxRetries = n
	}
}

// Queue is the domain view over a Store. It owns the retry ceiling and holds no other state.
type Queue struct {
	store      Store
	maxRetries int
}

// NewQueue constructs a Queue over store.
func NewQueue(store Store, opts ...QueueOption) (*Queue, error) {
	if store == nil {
		panic("mailqueue: nil Store")
	}

	q := &Queue{store: store, maxRetries: DefaultMaxRetries}
	for _, opt := range opts {
		opt(q)
	}
	if q.maxRetries <= 0 {
		return nil, ErrInvalidMaxRetries
	}

	return q, nil
}

// MaxRetries returns the retry ceiling.
func (q *Queue) MaxRetries() int {
	return q.maxRetries
}

// Enqueue validates and persists a new entry.
func (q *Queue) Enqueue(ctx context.Context, payload Payload) (ID, error) {
	if err := payload.Validate(); err != nil {
		return ID{}, err
	}

	return q.store.Insert(ctx, payload)
}

// DequeueClaim claims the oldest eligible entry. ok is false when the queue has nothing eligible.
func (q *Queue) DequeueClaim(ctx context.Context) (Entry, bool, error) {
	entry, err := q.store.ClaimOneEligible(ctx, q.eligibility())
	if err != nil {
		if errors.Is(err, ErrNoEligibleEntries) {
			return Entry{}, false, nil
		}

		return Entry{}, false, err
	}

	return entry, true, nil
}

// MarkSent records a successful delivery.
func (q *Queue) MarkSent(ctx context.Context, entry Entry) error {
	return q.store.SetSent(ctx, entry.ID)
}

// MarkFailed returns the entry to the pool. Whether it can be claimed again
// depends on the RetryCount the claim already consumed.
func (q *Queue) MarkFailed(ctx context.Context, entry Entry, cause error) error {
	return q.store.SetUnclaimed(ctx, entry.ID, truncateError(cause))
}

// IsEmpty reports whether no entry is currently eligible.
func (q *Queue) IsEmpty(ctx context.Context) (bool, error) {
	count, err := q.Eligible(ctx)
	if err != nil {
		return false, err
	}

	return count == 0, nil
}

// Eligible returns the number of currently eligible entries.
func (q *Queue) Eligible(ctx context.Context) (int, error) {
	return q.store.CountEligible(ctx, q.eligibility())
}

// Exhausted reports whether a failed attempt on entry was its last one.
func (q *Queue) Exhausted(entry Entry) bool {
	return entry.RetryCount >= q.maxRetries
}

func (q *Queue) eligibility() Eligibility {
	return Eligibility{MaxRetries: q.maxRetries}
}

func truncateError(err error) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	if utf8.RuneCountInString(msg) <= maxErrorLen {
		return msg
	}

	return string([]rune(msg)[:maxErrorLen])
}
