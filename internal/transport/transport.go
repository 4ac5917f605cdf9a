// Package transport defines the interface for email delivery backends.
package transport

import (
	"context"

	"github.com/shineum/mailsend/internal/email"
)

// Transport delivers a fully addressed message. Implementations take the envelope sender from
// msg.From and the single recipient from msg.To.
type Transport interface {
	// Send delivers msg. It returns an error if delivery fails.
	Send(ctx context.Context, msg *email.Message) error

	// Name returns the human-readable name of this transport.
	Name() string
}
