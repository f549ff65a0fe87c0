// Package debounce coalesces rapid updates to the same key into a single
// delayed call.
//
// Each key has at most one pending timer. A new update for the key replaces
// the pending value and restarts the timer; when the key has been quiet for
// the configured period the callback fires exactly once with the last value.
package debounce

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Func receives the final value for a key once it has gone quiet.
type Func func(key string, value any)

type pending struct {
	timer clockwork.Timer
	value any
	gen   uint64
}

// Debouncer delays and coalesces updates per key.
//
// All methods are safe for concurrent use.
type Debouncer struct {
	clock clockwork.Clock
	quiet time.Duration
	fire  Func

	mu      sync.Mutex
	pending map[string]*pending
	gen     uint64
	stopped bool
}

// New creates a Debouncer that calls fire after quiet has elapsed since the
// last update of a key. A nil clock means the real clock.
func New(clock clockwork.Clock, quiet time.Duration, fire Func) *Debouncer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Debouncer{
		clock:   clock,
		quiet:   quiet,
		fire:    fire,
		pending: make(map[string]*pending),
	}
}

// Update records value for key and (re)starts its quiet period. It reports
// whether an earlier pending value was replaced. Updates after Stop are
// ignored.
func (d *Debouncer) Update(key string, value any) (replaced bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return false
	}

	if p, ok := d.pending[key]; ok {
		p.timer.Stop()
		replaced = true
	}

	d.gen++
	gen := d.gen
	d.pending[key] = &pending{
		value: value,
		gen:   gen,
		timer: d.clock.AfterFunc(d.quiet, func() { d.expire(key, gen) }),
	}
	return replaced
}

// expire fires key if gen is still its latest update. A timer that lost the
// race with Stop or a newer Update finds a different generation and does
// nothing.
func (d *Debouncer) expire(key string, gen uint64) {
	d.mu.Lock()
	p, ok := d.pending[key]
	if !ok || p.gen != gen {
		d.mu.Unlock()
		return
	}
	delete(d.pending, key)
	d.mu.Unlock()

	d.fire(key, p.value)
}

// Flush fires every pending key immediately, in no particular order.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	due := d.pending
	d.pending = make(map[string]*pending)
	d.mu.Unlock()

	for key, p := range due {
		p.timer.Stop()
		d.fire(key, p.value)
	}
}

// Pending returns the number of keys waiting for their quiet period.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Stop cancels every pending key without firing and ignores later updates.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	for key, p := range d.pending {
		p.timer.Stop()
		delete(d.pending, key)
	}
}
