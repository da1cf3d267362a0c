package mailqueue

import "context"

// Transport delivers a single message. Any returned error counts as a failed attempt.
type Transport interface {
	// Send delivers the payload.
	Send(ctx context.Context, payload Payload) error
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, payload Payload) error

// Send implements Transport.
func (fn TransportFunc) Send(ctx context.Context, payload Payload) error {
	return fn(ctx, payload)
}
