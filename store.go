package mailqueue

import "context"

// DefaultMaxRetries is the number of claims an entry gets before it is abandoned.
const DefaultMaxRetries = 3

// Eligibility parameterises the claim predicate.
type Eligibility struct {
	MaxRetries int
}

// Store persists queue entries. Implementations must make ClaimOneEligible a
// single atomic read-modify-write so that concurrent callers never receive the
// same entry.
type Store interface {
	// Insert persists a new eligible entry and returns its ID.
	Insert(ctx context.Context, payload Payload) (ID, error)
	// ClaimOneEligible claims the oldest eligible entry, setting Claimed and
	// incrementing RetryCount. The returned entry reflects the claim.
	// It returns ErrNoEligibleEntries when nothing is eligible.
	ClaimOneEligible(ctx context.Context, eligibility Eligibility) (Entry, error)
	// SetSent marks the entry as delivered. Repeated calls are harmless.
	SetSent(ctx context.Context, id ID) error
	// SetUnclaimed returns the entry to the pool and records the failure reason.
	SetUnclaimed(ctx context.Context, id ID, lastError string) error
	// CountEligible returns the number of entries a claim could currently pick.
	CountEligible(ctx context.Context, eligibility Eligibility) (int, error)
}

// Lookup loads a single entry by ID.
type Lookup interface {
	// Get returns the entry or ErrEntryNotFound.
	Get(ctx context.Context, id ID) (Entry, error)
}
