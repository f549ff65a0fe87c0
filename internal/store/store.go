package store

import (
	"time"

	"github.com/jpalmerr/munirpanel/jsonvalue"
)

// Snapshot is the stored view of a polled resource.
//
// Snapshot is optimized for JSON serialization (used by the REST API, SSE and
// WebSocket streams). It is decoupled from the poller's types to allow
// independent evolution.
type Snapshot struct {
	// Resource is the adapter resource name.
	Resource string `json:"resource"`

	// Document is the last successfully fetched document. nil until the
	// first successful poll.
	Document jsonvalue.Value `json:"document"`

	// Error is the message of the most recent failed poll. nil when the most
	// recent poll succeeded.
	Error *string `json:"error"`

	// FetchedAt is when Document was fetched.
	FetchedAt time.Time `json:"fetched_at"`

	// CheckedAt is when the most recent poll completed, successful or not.
	CheckedAt time.Time `json:"checked_at"`

	// Polls counts completed polls.
	Polls uint64 `json:"polls"`

	// Failures counts failed polls.
	Failures uint64 `json:"failures"`
}

// Store defines the interface for holding and subscribing to the snapshot of
// one resource.
//
// Store implementations must be safe for concurrent access. The only writer
// is the poll loop; everything else reads.
type Store interface {
	// RecordSuccess replaces the document, clears the error indicator and
	// notifies subscribers.
	RecordSuccess(doc jsonvalue.Value, at time.Time) Snapshot

	// RecordFailure keeps the current document, sets the error indicator and
	// notifies subscribers.
	RecordFailure(err error, at time.Time) Snapshot

	// Current returns the latest snapshot.
	Current() Snapshot

	// Subscribe returns a channel that receives every new snapshot.
	// The returned channel has a buffer; slow consumers may miss updates.
	// Caller must call Unsubscribe when done to prevent resource leaks.
	Subscribe() <-chan Snapshot

	// Unsubscribe removes a subscription and closes the channel.
	// Safe to call with a channel that was already unsubscribed.
	Unsubscribe(ch <-chan Snapshot)
}
