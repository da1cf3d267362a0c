package mailqueue

import (
	"errors"
	"fmt"
)

var (
	// ErrNoEligibleEntries signals that no entry satisfies the eligibility predicate.
	ErrNoEligibleEntries = errors.New("mailqueue has no eligible entries")
	// ErrEntryNotFound is returned when an update targets an unknown entry.
	ErrEntryNotFound = errors.New("mailqueue entry not found")
	// ErrStoreUnavailable matches every storage failure reported through StoreError.
	ErrStoreUnavailable = errors.New("mailqueue store unavailable")
	// ErrDuplicateID is returned when an insert collides with an existing entry ID.
	ErrDuplicateID = errors.New("mailqueue entry id already exists")
	// ErrNotReady is returned while the service has not finished initialising its queue.
	ErrNotReady = errors.New("mailqueue is not ready")
	// ErrRecipientRequired is returned when Payload.To is empty.
	ErrRecipientRequired = errors.New("mailqueue recipient is required")
	// ErrInvalidID is returned when parsing or scanning an ID fails.
	ErrInvalidID = errors.New("mailqueue id is invalid")
	// ErrInvalidMaxRetries is returned when the retry ceiling is not positive.
	ErrInvalidMaxRetries = errors.New("mailqueue max retries must be positive")
	// ErrTransportPanic wraps a panic raised by a Transport.
	ErrTransportPanic = errors.New("mailqueue transport panic")
)

// StoreError wraps a driver or connectivity failure of a store operation.
type StoreError struct {
	Op  string
	Err error
}

// NewStoreError wraps err for the named operation. A nil err yields nil.
func NewStoreError(op string, err error) error {
	if err == nil {
		return nil
	}

	return &StoreError{Op: op, Err: err}
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("mailqueue store: %s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is makes every StoreError match ErrStoreUnavailable.
func (e *StoreError) Is(target error) bool {
	return target == ErrStoreUnavailable
}
