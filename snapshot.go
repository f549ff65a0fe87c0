package munirpanel

import (
	"time"

	"github.com/jpalmerr/munirpanel/internal/store"
	"github.com/jpalmerr/munirpanel/jsonvalue"
	"github.com/jpalmerr/munirpanel/statusfmt"
)

// Snapshot is a point-in-time view of a session's remote document.
//
// Document is shared with the session and other readers; treat it as
// read-only. Changes go through [Session.Put] or [Session.Edit] and show up in
// a later snapshot.
type Snapshot struct {
	// Resource is the adapter resource name.
	Resource string

	// Document is the last successfully fetched document, exactly as
	// received. nil until the first successful poll.
	Document jsonvalue.Value

	// Err describes the most recent poll failure. Empty when the most recent
	// poll succeeded.
	Err string

	// FetchedAt is when Document was fetched.
	FetchedAt time.Time

	// CheckedAt is when the most recent poll completed.
	CheckedAt time.Time

	// Polls and Failures count completed and failed polls.
	Polls    uint64
	Failures uint64
}

// OK reports whether the most recent poll succeeded.
func (s Snapshot) OK() bool {
	return s.Err == "" && s.Document != nil
}

// Stale reports whether Document is being served after a failed poll.
func (s Snapshot) Stale() bool {
	return s.Err != "" && s.Document != nil
}

// Lookup resolves a slash-delimited path in the document.
func (s Snapshot) Lookup(path string) (jsonvalue.Value, bool) {
	if s.Document == nil {
		return nil, false
	}
	return jsonvalue.Lookup(s.Document, path)
}

// Text renders the document, or the subtree at path, with
// [statusfmt.Format]. It returns "" when the path does not resolve.
func (s Snapshot) Text(path string) string {
	v, ok := s.Lookup(path)
	if !ok {
		return ""
	}
	return statusfmt.Format(v)
}

// fromStore converts the stored snapshot to the public type.
func fromStore(ss store.Snapshot) Snapshot {
	snap := Snapshot{
		Resource:  ss.Resource,
		Document:  ss.Document,
		FetchedAt: ss.FetchedAt,
		CheckedAt: ss.CheckedAt,
		Polls:     ss.Polls,
		Failures:  ss.Failures,
	}
	if ss.Error != nil {
		snap.Err = *ss.Error
	}
	return snap
}
