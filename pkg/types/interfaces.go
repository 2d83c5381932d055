// Package types - Interface definitions for pluggable components
package types

import (
	"context"
)

// Sender is the capability the client programs against: accept events and
// drain on demand. The base implementation batches and ships over HTTP;
// alternative implementations discard, record, or print events.
type Sender interface {
	// Start prepares the sender for accepting events.
	Start() error
	// SendEvent runs the sampling gate and then enqueues the event.
	// It does not block unless BlockOnSend is configured and never
	// returns an error; every event is accounted for through the
	// response callback.
	SendEvent(e *Event)
	// SendPresampledEvent enqueues the event, bypassing the sampling
	// gate. Same blocking and error contract as SendEvent.
	SendPresampledEvent(e *Event)
	// Flush blocks until every event accepted so far has been drained
	// and no batch remains in flight, or until ctx is done.
	Flush(ctx context.Context) error
	// Stop drains pending work and releases resources. The sender
	// rejects events after Stop returns.
	Stop() error
}
