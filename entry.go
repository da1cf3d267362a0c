package mailqueue

import (
	"strings"
	"time"
)

// Payload is the message body handed to a Transport. The queue never inspects it
// beyond the structural check in Validate.
type Payload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Validate checks that the payload names a recipient.
func (p Payload) Validate() error {
	if strings.TrimSpace(p.To) == "" {
		return ErrRecipientRequired
	}

	return nil
}

// Entry is a persisted queue record.
type Entry struct {
	ID      ID
	Payload Payload
	// Sent is terminal: once true the entry is never claimed again.
	Sent bool
	// Claimed is set by a claim and cleared only when a failed attempt is recorded.
	Claimed bool
	// RetryCount counts claims, not failures.
	RetryCount int
	LastError  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	SentAt     *time.Time
}

// Eligible reports whether the entry may be claimed under the given retry ceiling.
func (e Entry) Eligible(maxRetries int) bool {
	return !e.Sent && !e.Claimed && e.RetryCount < maxRetries
}

// State derives the lifecycle state from the persisted flags.
func (e Entry) State(maxRetries int) State {
	switch {
	case e.Sent:
		return StateSent
	case e.Claimed:
		return StateInFlight
	case e.RetryCount >= maxRetries:
		return StateExhausted
	default:
		return StatePending
	}
}
