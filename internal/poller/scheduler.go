package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/jpalmerr/munirpanel/jsonvalue"
)

// Target describes the adapter resource to poll.
type Target struct {
	// Resource is the adapter resource name, used in logs and metrics.
	Resource string

	// URL is the full document URL, <base>/<resource>.
	URL string

	// Headers contains custom HTTP headers to send with requests.
	Headers map[string]string

	// Timeout is the per-request timeout duration.
	Timeout time.Duration
}

// Result holds the outcome of one poll.
type Result struct {
	// Seq numbers polls from 1 in the order they started.
	Seq uint64

	// Resource is the polled resource name.
	Resource string

	// Document is the fetched document. nil when Err is set.
	Document jsonvalue.Value

	// Err is the transport, status or decode failure, if any.
	Err error

	// StatusCode is the HTTP status code, zero on transport failure.
	StatusCode int

	// Latency is the time taken to complete the HTTP request.
	Latency time.Duration

	// CheckedAt is when the poll completed, per the scheduler's clock.
	CheckedAt time.Time
}

// Scheduler polls a single adapter resource at a fixed interval.
//
// The first poll happens immediately on [Scheduler.Start]. Polls are strictly
// serialized: a tick that fires while a fetch is in flight is coalesced into
// the next one, so at most one request is outstanding. A failed poll is
// reported and the loop simply waits for the next tick; there is no backoff.
//
// All lifecycle methods (Start, Stop) are safe for concurrent use.
type Scheduler struct {
	target   Target
	interval time.Duration
	clock    clockwork.Clock
	client   *Client
	results  chan Result
	logger   *slog.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	trigger  chan struct{}

	mu        sync.Mutex
	started   bool
	stopped   bool
	closeOnce sync.Once
	seq       uint64
}

// NewScheduler creates a new polling [Scheduler].
//
// A nil clock means the real clock. The scheduler must be started with
// [Scheduler.Start] and stopped with [Scheduler.Stop]. Results are available
// via [Scheduler.Results].
func NewScheduler(target Target, interval time.Duration, clock clockwork.Clock, logger *slog.Logger) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		target:   target,
		interval: interval,
		clock:    clock,
		client:   NewClient(),
		results:  make(chan Result, 1),
		logger:   logger,
		trigger:  make(chan struct{}, 1),
	}
}

// Results returns a receive-only channel that emits [Result] values.
//
// The channel is closed when the scheduler stops.
func (s *Scheduler) Results() <-chan Result {
	return s.results
}

// Client returns the HTTP client used for polling, so writes to the same
// adapter can share its connection pool.
func (s *Scheduler) Client() *Client {
	return s.client
}

// Start begins the polling loop in a background goroutine.
//
// If ctx is nil, context.Background() is used as the parent context.
// Start is idempotent; subsequent calls after the first are no-ops.
// If Stop was called before Start, Start is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true

	if ctx == nil {
		ctx = context.Background()
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	pollCtx := s.ctx // capture under lock to avoid race
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer s.closeOnce.Do(func() { close(s.results) })

		ticker := s.clock.NewTicker(s.interval)
		defer ticker.Stop()

		if !s.pollOnce(pollCtx) {
			return
		}

		for {
			select {
			case <-pollCtx.Done():
				return
			case <-ticker.Chan():
			case <-s.trigger:
			}
			if !s.pollOnce(pollCtx) {
				return
			}
		}
	}()
}

// PollNow requests an out-of-band poll. Requests made while one is already
// pending are merged. It never blocks.
func (s *Scheduler) PollNow() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Stop halts the scheduler and waits for the loop to exit.
//
// Stop cancels the scheduler's context, which aborts an in-flight request;
// its result is discarded. Stop is idempotent and safe to call before Start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		if s.cancel != nil {
			s.cancel()
		}
	}
	s.mu.Unlock()

	s.wg.Wait()

	s.client.Close()

	// ensure channel is closed even if Start() was never called
	s.closeOnce.Do(func() { close(s.results) })
}

// pollOnce fetches the document and delivers the result. It returns false
// when the scheduler is shutting down.
func (s *Scheduler) pollOnce(ctx context.Context) bool {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	resp := s.client.Fetch(ctx, "", s.target.URL, nil, s.target.Headers, s.target.Timeout)
	if ctx.Err() != nil {
		// torn down mid-flight, the result is stale by definition
		return false
	}

	doc, err := resp.Document()
	result := Result{
		Seq:        seq,
		Resource:   s.target.Resource,
		Document:   doc,
		Err:        err,
		StatusCode: resp.StatusCode,
		Latency:    resp.Latency,
		CheckedAt:  s.clock.Now(),
	}

	select {
	case s.results <- result:
		return true
	case <-ctx.Done():
		return false
	}
}
