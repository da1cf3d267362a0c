// Package memory provides an in-process Store guarded by a mutex.
//
// It keeps every entry for the lifetime of the process and is meant for tests
// and single-instance development setups.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/AdewaleAdeniji/mailqueue"
)

// Option configures the memory store.
type Option func(*Store)

// WithClock sets the time source used for entry timestamps.
func WithClock(clock mailqueue.Clock) Option {
	return func(s *Store) {
		s.clock = clock
	}
}

// WithGenerator sets the ID generator.
func WithGenerator(gen mailqueue.IDGenerator) Option {
	return func(s *Store) {
		s.generator = gen
	}
}

// Store keeps entries in insertion order.
type Store struct {
	mu      sync.Mutex
	entries []*mailqueue.Entry
	byID    map[mailqueue.ID]*mailqueue.Entry

	clock     mailqueue.Clock
	generator mailqueue.IDGenerator
}

var (
	_ mailqueue.Store  = (*Store)(nil)
	_ mailqueue.Lookup = (*Store)(nil)
)

// NewStore constructs an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{byID: make(map[mailqueue.ID]*mailqueue.Entry)}
	for _, opt := range opts {
		opt(s)
	}
	if s.clock == nil {
		s.clock = mailqueue.SystemClock{}
	}
	if s.generator == nil {
		s.generator = mailqueue.UUIDv7Generator{}
	}

	return s
}

// Insert implements mailqueue.Store.
func (s *Store) Insert(_ context.Context, payload mailqueue.Payload) (mailqueue.ID, error) {
	id, err := s.generator.New()
	if err != nil {
		return mailqueue.ID{}, fmt.Errorf("mailqueue memory: generate id failed: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[id]; exists {
		return mailqueue.ID{}, mailqueue.ErrDuplicateID
	}
	now := s.clock.Now()
	entry := &mailqueue.Entry{
		ID:        id,
		Payload:   payload,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.entries = append(s.entries, entry)
	s.byID[id] = entry

	return id, nil
}

// ClaimOneEligible implements mailqueue.Store.
func (s *Store) ClaimOneEligible(_ context.Context, eligibility mailqueue.Eligibility) (mailqueue.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, entry := range s.entries {
		if !entry.Eligible(eligibility.MaxRetries) {
			continue
		}
		entry.Claimed = true
		entry.RetryCount++
		entry.UpdatedAt = s.clock.Now()

		return snapshot(entry), nil
	}

	return mailqueue.Entry{}, mailqueue.ErrNoEligibleEntries
}

// SetSent implements mailqueue.Store.
func (s *Store) SetSent(_ context.Context, id mailqueue.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.byID[id]
	if !ok {
		return mailqueue.ErrEntryNotFound
	}
	now := s.clock.Now()
	entry.Sent = true
	entry.UpdatedAt = now
	if entry.SentAt == nil {
		entry.SentAt = &now
	}

	return nil
}

// SetUnclaimed implements mailqueue.Store.
func (s *Store) SetUnclaimed(_ context.Context, id mailqueue.ID, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.byID[id]
	if !ok {
		return mailqueue.ErrEntryNotFound
	}
	entry.Claimed = false
	entry.LastError = lastError
	entry.UpdatedAt = s.clock.Now()

	return nil
}

// CountEligible implements mailqueue.Store.
func (s *Store) CountEligible(_ context.Context, eligibility mailqueue.Eligibility) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, entry := range s.entries {
		if entry.Eligible(eligibility.MaxRetries) {
			count++
		}
	}

	return count, nil
}

// Get implements mailqueue.Lookup.
func (s *Store) Get(_ context.Context, id mailqueue.ID) (mailqueue.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.byID[id]
	if !ok {
		return mailqueue.Entry{}, mailqueue.ErrEntryNotFound
	}

	return snapshot(entry), nil
}

// Len returns the number of stored entries, including sent and exhausted ones.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.entries)
}

func snapshot(entry *mailqueue.Entry) mailqueue.Entry {
	out := *entry
	if entry.SentAt != nil {
		sentAt := *entry.SentAt
		out.SentAt = &sentAt
	}

	return out
}
