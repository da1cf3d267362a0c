package mailqueue

// State is the lifecycle state of an entry derived from its flags.
type State int8

const (
	// StatePending indicates the entry is eligible for a claim.
	StatePending State = iota
	// StateInFlight indicates a dispatcher holds the claim.
	StateInFlight
	// StateSent indicates the transport accepted the message.
	StateSent
	// StateExhausted indicates every allowed attempt failed; the entry is kept but never claimed again.
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateInFlight:
		return "in_flight"
	case StateSent:
		return "sent"
	case StateExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}
