// Package queue implements the MessageSource collaborator (C9's receive
// side): a durable, at-least-once source of queue messages with
// visibility-timeout extension, ack, and nack.
package queue

import (
	"context"
	"time"
)

// Message is one received unit of work: an opaque body and a handle used
// to extend visibility, ack, or nack it. Handle equality/format is
// implementation-defined.
type Message struct {
	Body   string
	Handle string
}

// MessageSource abstracts the durable queue C9 polls. Implementations must
// be safe for concurrent use across the handle-keyed operations (distinct
// handles may be acted on concurrently).
type MessageSource interface {
	// Receive long-polls for up to maxMessages, waiting up to waitSeconds
	// for at least one to arrive. An empty, nil-error result means the
	// long-poll elapsed with nothing available.
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]Message, error)

	// ExtendVisibility renews the invisibility window for handle by
	// seconds, preventing redelivery while a Worker is still processing
	// it.
	ExtendVisibility(ctx context.Context, handle string, seconds int) error

	// Ack permanently removes the message so it is never redelivered.
	Ack(ctx context.Context, handle string) error

	// Nack returns the message to the queue for redelivery, immediately
	// or after the source's own backoff policy.
	Nack(ctx context.Context, handle string) error
}

// VisibilityRefreshInterval is how often C9 should check whether an
// in-flight message's visibility needs renewing, relative to the
// configured visibility_timeout_s (refresh once past half the timeout).
func VisibilityRefreshInterval(visibilityTimeoutS int) time.Duration {
	return time.Duration(visibilityTimeoutS) * time.Second / 2
}
