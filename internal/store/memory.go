package store

import (
	"sync"
	"time"

	"github.com/jpalmerr/munirpanel/jsonvalue"
)

const subscriberBuffer = 16

// MemoryStore is an in-memory implementation of [Store].
type MemoryStore struct {
	mu          sync.RWMutex
	current     Snapshot
	subscribers map[chan Snapshot]struct{}
	subMu       sync.RWMutex
}

// NewMemoryStore creates a store for the named resource. It is immediately
// ready for use and needs no cleanup.
func NewMemoryStore(resource string) *MemoryStore {
	return &MemoryStore{
		current:     Snapshot{Resource: resource},
		subscribers: make(map[chan Snapshot]struct{}),
	}
}

// RecordSuccess stores doc exactly as fetched and notifies subscribers.
func (m *MemoryStore) RecordSuccess(doc jsonvalue.Value, at time.Time) Snapshot {
	m.mu.Lock()
	m.current.Document = doc
	m.current.Error = nil
	m.current.FetchedAt = at
	m.current.CheckedAt = at
	m.current.Polls++
	snap := m.current
	m.mu.Unlock()

	m.notifySubscribers(snap)
	return snap
}

// RecordFailure raises the error indicator without touching the document and
// notifies subscribers.
func (m *MemoryStore) RecordFailure(err error, at time.Time) Snapshot {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}

	m.mu.Lock()
	m.current.Error = &msg
	m.current.CheckedAt = at
	m.current.Polls++
	m.current.Failures++
	snap := m.current
	m.mu.Unlock()

	m.notifySubscribers(snap)
	return snap
}

// Current returns the latest snapshot.
func (m *MemoryStore) Current() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Subscribe creates a new subscription. The channel is buffered; when it is
// full, new snapshots are dropped for this subscriber.
//
// Caller must call [MemoryStore.Unsubscribe] when done to prevent resource leaks.
func (m *MemoryStore) Subscribe() <-chan Snapshot {
	ch := make(chan Snapshot, subscriberBuffer)

	m.subMu.Lock()
	m.subscribers[ch] = struct{}{}
	m.subMu.Unlock()

	return ch
}

// Unsubscribe removes a subscription and closes its channel.
// Safe to call multiple times or with an unknown channel.
func (m *MemoryStore) Unsubscribe(ch <-chan Snapshot) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	for subCh := range m.subscribers {
		if subCh == ch {
			delete(m.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

// Close unsubscribes every subscriber, closing their channels.
func (m *MemoryStore) Close() {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	for ch := range m.subscribers {
		delete(m.subscribers, ch)
		close(ch)
	}
}

// notifySubscribers sends the snapshot to all active subscribers without
// blocking.
func (m *MemoryStore) notifySubscribers(snap Snapshot) {
	m.subMu.RLock()
	defer m.subMu.RUnlock()

	for ch := range m.subscribers {
		select {
		case ch <- snap:
		default:
			// subscriber is slow, drop the message
		}
	}
}
