package munirpanel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/jpalmerr/munirpanel/internal/debounce"
	"github.com/jpalmerr/munirpanel/internal/metrics"
	"github.com/jpalmerr/munirpanel/internal/poller"
	"github.com/jpalmerr/munirpanel/internal/store"
	"github.com/jpalmerr/munirpanel/jsonvalue"
)

// ErrSessionClosed is returned by writes issued after [Session.Close].
var ErrSessionClosed = errors.New("session closed")

// ErrRootPath is returned by [Session.Edit] for an empty path: an edit always
// targets a named field.
var ErrRootPath = errors.New("edit path must name a field")

// Session keeps a local, read-only mirror of one adapter resource and
// provides the write path for partial updates.
//
// A Session is created by [Connect], which schedules the first poll
// immediately and then one per interval. Polls never overlap. A failed poll
// leaves the last good document in place and raises [Snapshot.Err]; the next
// tick simply tries again.
//
// Writes are independent of polling: [Session.Put] sends a partial document
// to a path right away, and [Session.Edit] coalesces rapid edits of the same
// path into one write after a quiet period. There is no retry and no ordering
// guarantee between a write and the next poll; a write is normally visible
// within one poll interval.
//
// All methods are safe for concurrent use.
type Session struct {
	name     string
	baseURL  string
	docURL   string
	interval time.Duration
	timeout  time.Duration
	quiet    time.Duration
	headers  map[string]string
	clock    clockwork.Clock
	logger   *slog.Logger

	scheduler *poller.Scheduler
	client    *poller.Client
	store     *store.MemoryStore
	edits     *debounce.Debouncer
	callbacks []func(Snapshot)

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closed    atomic.Bool
	closeOnce sync.Once
}

// Connect creates a [Session] for the resource name served under baseURL and
// starts polling <baseURL>/<name>.
//
// The name must be non-empty. The baseURL must be an absolute http or https
// URL, for example "http://localhost:8888/api/0.1". Cancelling ctx stops
// polling just like [Session.Close], which must still be called to release
// resources.
//
//	sess, err := munirpanel.Connect(ctx, "munir", "http://localhost:8888/api/0.1",
//	    munirpanel.WithInterval(time.Second),
//	)
//	if err != nil {
//	    return err
//	}
//	defer sess.Close()
func Connect(ctx context.Context, name, baseURL string, opts ...SessionOption) (*Session, error) {
	name = strings.Trim(name, "/")
	if name == "" {
		return nil, errors.New("resource name cannot be empty")
	}
	if err := validateBaseURL(baseURL); err != nil {
		return nil, err
	}

	cfg := &sessionConfig{
		interval: defaultInterval,
		timeout:  defaultRequestTimeout,
		quiet:    defaultQuietPeriod,
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.clock == nil {
		cfg.clock = clockwork.NewRealClock()
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	base := strings.TrimRight(baseURL, "/")
	s := &Session{
		name:      name,
		baseURL:   base,
		docURL:    base + "/" + name,
		interval:  cfg.interval,
		timeout:   cfg.timeout,
		quiet:     cfg.quiet,
		headers:   cfg.headers,
		clock:     cfg.clock,
		logger:    cfg.logger.With("resource", name),
		store:     store.NewMemoryStore(name),
		callbacks: cfg.callbacks,
	}
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.scheduler = poller.NewScheduler(poller.Target{
		Resource: name,
		URL:      s.docURL,
		Headers:  copyMap(cfg.headers),
		Timeout:  cfg.timeout,
	}, cfg.interval, cfg.clock, s.logger)
	s.client = s.scheduler.Client()
	s.edits = debounce.New(cfg.clock, cfg.quiet, s.sendEdit)

	s.logger.Info("session connecting", "url", s.docURL, "interval", cfg.interval.String())

	s.scheduler.Start(s.ctx)
	s.wg.Add(1)
	go s.consume()

	return s, nil
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("base URL must include a host")
	}
	return nil
}

// consume applies poll results to the store in order. It is the only writer
// of the snapshot.
func (s *Session) consume() {
	defer s.wg.Done()

	failing := false
	for result := range s.scheduler.Results() {
		metrics.PollDuration.WithLabelValues(s.name).Observe(result.Latency.Seconds())
		metrics.PollsTotal.WithLabelValues(s.name, poller.Classify(result.Err)).Inc()

		var ss store.Snapshot
		if result.Err != nil {
			ss = s.store.RecordFailure(result.Err, result.CheckedAt)
			logAttrs := []any{
				"seq", result.Seq,
				"status_code", result.StatusCode,
				"kind", poller.Classify(result.Err),
				"error", result.Err.Error(),
			}
			// warn once per outage, the loop retries every tick anyway
			if !failing {
				s.logger.Warn("poll failed, serving last snapshot", logAttrs...)
			} else {
				s.logger.Debug("poll failed", logAttrs...)
			}
			failing = true
		} else {
			ss = s.store.RecordSuccess(result.Document, result.CheckedAt)
			metrics.LastSuccessTimestamp.WithLabelValues(s.name).Set(float64(result.CheckedAt.Unix()))
			if failing {
				s.logger.Info("poll recovered", "seq", result.Seq)
			}
			failing = false
			s.logger.Debug("poll completed", "seq", result.Seq, "latency_ms", result.Latency.Milliseconds())
		}

		if len(s.callbacks) > 0 {
			snap := fromStore(ss)
			for _, cb := range s.callbacks {
				invokeCallbackSafe(cb, snap, s.logger)
			}
		}
	}
}

// Name returns the resource name.
func (s *Session) Name() string {
	return s.name
}

// URL returns the document URL being polled.
func (s *Session) URL() string {
	return s.docURL
}

// Interval returns the poll interval.
func (s *Session) Interval() time.Duration {
	return s.interval
}

// QuietPeriod returns the edit debounce period.
func (s *Session) QuietPeriod() time.Duration {
	return s.quiet
}

// Snapshot returns the latest snapshot.
func (s *Session) Snapshot() Snapshot {
	return fromStore(s.store.Current())
}

// Document returns the latest document, or nil before the first successful
// poll. The returned tree is shared; do not modify it.
func (s *Session) Document() jsonvalue.Value {
	return s.store.Current().Document
}

// Subscribe returns a channel of snapshots, one per completed poll, and a
// function that ends the subscription and closes the channel. Slow readers
// miss intermediate snapshots rather than delaying the poll loop.
func (s *Session) Subscribe() (<-chan Snapshot, func()) {
	sub := s.store.Subscribe()
	out := make(chan Snapshot, cap(sub))

	go func() {
		defer close(out)
		for ss := range sub {
			select {
			case out <- fromStore(ss):
			default:
			}
		}
	}()

	var once sync.Once
	return out, func() { once.Do(func() { s.store.Unsubscribe(sub) }) }
}

// Refresh asks for a poll ahead of the next tick. It never blocks and is
// merged with any refresh already pending.
func (s *Session) Refresh() {
	s.scheduler.PollNow()
}

// Put sends partial to <baseURL>/<name>/<path>, where the adapter merges it
// into the document.
//
// Put returns immediately. The returned channel receives exactly one value,
// nil on a 2xx response, and is then closed. Failures are also logged; they
// are not retried. Callers that do not care about the outcome may drop the
// channel.
func (s *Session) Put(ctx context.Context, path string, partial any) <-chan error {
	done := make(chan error, 1)
	if s.closed.Load() {
		done <- ErrSessionClosed
		close(done)
		return done
	}

	body, err := json.Marshal(partial)
	if err != nil {
		done <- fmt.Errorf("encode put body: %w", err)
		close(done)
		return done
	}
	if ctx == nil {
		ctx = context.Background()
	}

	path = jsonvalue.JoinPath(path)
	target := s.paramURL(path)
	requestID := uuid.NewString()
	headers := copyMap(s.headers)
	if headers == nil {
		headers = make(map[string]string, 1)
	}
	headers["X-Request-ID"] = requestID

	go func() {
		defer close(done)

		resp := s.client.Fetch(ctx, http.MethodPut, target, body, headers, s.timeout)
		err := resp.Err()
		metrics.PutsTotal.WithLabelValues(s.name, poller.Classify(err)).Inc()

		if err != nil {
			s.logger.Warn("put failed",
				"path", path,
				"request_id", requestID,
				"status_code", resp.StatusCode,
				"error", err.Error(),
			)
		} else {
			s.logger.Debug("put completed",
				"path", path,
				"request_id", requestID,
				"latency_ms", resp.Latency.Milliseconds(),
			)
		}
		done <- err
	}()

	return done
}

// Edit records a local edit of the field at path. Once the path has been
// quiet for the session's quiet period, one write carrying the last value is
// sent as {"<last path segment>": value} to path.
//
// Edit is meant for text inputs that change on every keystroke. Use
// [Session.Put] for one-off writes such as button presses.
func (s *Session) Edit(path string, value any) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	path = jsonvalue.JoinPath(path)
	if path == "" {
		return ErrRootPath
	}
	if s.edits.Update(path, value) {
		metrics.EditsCoalescedTotal.WithLabelValues(s.name).Inc()
	}
	return nil
}

// FlushEdits sends every pending edit now instead of waiting for its quiet
// period.
func (s *Session) FlushEdits() {
	s.edits.Flush()
}

// PendingEdits returns the number of paths with an unsent edit.
func (s *Session) PendingEdits() int {
	return s.edits.Pending()
}

func (s *Session) sendEdit(path string, value any) {
	segs := jsonvalue.SplitPath(path)
	field := segs[len(segs)-1]

	metrics.EditsSentTotal.WithLabelValues(s.name).Inc()
	s.logger.Debug("sending debounced edit", "path", path)
	// outcome is logged by Put
	_ = s.Put(s.ctx, path, map[string]any{field: value})
}

// Close stops polling, drops pending edits and closes subscriber channels.
// A poll in flight is abandoned and its result discarded. Close is
// idempotent.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.edits.Stop()
		s.cancel()
		s.scheduler.Stop()
		s.wg.Wait()
		s.store.Close()
		s.logger.Info("session closed")
	})
}

// snapshotStore exposes the backing store to the panel server.
func (s *Session) snapshotStore() store.Store {
	return s.store
}

func (s *Session) paramURL(path string) string {
	if path == "" {
		return s.docURL
	}
	segs := jsonvalue.SplitPath(path)
	for i, seg := range segs {
		segs[i] = url.PathEscape(seg)
	}
	return s.docURL + "/" + strings.Join(segs, "/")
}

// invokeCallbackSafe calls a snapshot callback with panic recovery. The
// stack is logged with a correlation ID.
func invokeCallbackSafe(cb func(Snapshot), snap Snapshot, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("snapshot callback panicked",
				"correlation_id", uuid.NewString(),
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	cb(snap)
}

// copyMap returns a shallow copy of the map.
func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
