package munirpanel

import (
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	defaultInterval       = time.Second
	defaultRequestTimeout = 5 * time.Second
	defaultQuietPeriod    = 3 * time.Second
)

// sessionConfig holds mutable state during session construction.
type sessionConfig struct {
	interval  time.Duration
	timeout   time.Duration
	quiet     time.Duration
	headers   map[string]string
	clock     clockwork.Clock
	logger    *slog.Logger
	callbacks []func(Snapshot)
}

// SessionOption configures a [Session] during [Connect].
//
// Options return an error if validation fails.
type SessionOption func(*sessionConfig) error

// WithInterval sets how often the resource document is polled.
// Defaults to 1 second.
//
// Returns an error if the duration is zero or negative.
func WithInterval(d time.Duration) SessionOption {
	return func(cfg *sessionConfig) error {
		if d <= 0 {
			return errors.New("poll interval must be positive")
		}
		cfg.interval = d
		return nil
	}
}

// WithTimeout sets the timeout applied to each read and write request.
// Defaults to 5 seconds.
//
// Returns an error if the duration is zero or negative.
func WithTimeout(d time.Duration) SessionOption {
	return func(cfg *sessionConfig) error {
		if d <= 0 {
			return errors.New("timeout must be positive")
		}
		cfg.timeout = d
		return nil
	}
}

// WithQuietPeriod sets how long [Session.Edit] waits after the last edit of a
// path before writing it. Defaults to 3 seconds.
//
// Returns an error if the duration is zero or negative.
func WithQuietPeriod(d time.Duration) SessionOption {
	return func(cfg *sessionConfig) error {
		if d <= 0 {
			return errors.New("quiet period must be positive")
		}
		cfg.quiet = d
		return nil
	}
}

// WithHeaders adds custom HTTP headers to every adapter request.
//
// Accepts variadic key-value pairs. Returns an error if an odd number of
// arguments is provided.
//
//	sess, err := munirpanel.Connect(ctx, "munir", base,
//	    munirpanel.WithHeaders("Authorization", "Bearer token123"),
//	)
func WithHeaders(keyValues ...string) SessionOption {
	return func(cfg *sessionConfig) error {
		if len(keyValues)%2 != 0 {
			return errors.New("WithHeaders requires an even number of arguments (key-value pairs)")
		}
		if cfg.headers == nil {
			cfg.headers = make(map[string]string, len(keyValues)/2)
		}
		for i := 0; i < len(keyValues); i += 2 {
			cfg.headers[keyValues[i]] = keyValues[i+1]
		}
		return nil
	}
}

// WithClock replaces the clock driving polls and edit timers. Tests pass a
// clockwork.FakeClock.
func WithClock(clock clockwork.Clock) SessionOption {
	return func(cfg *sessionConfig) error {
		if clock == nil {
			return errors.New("clock cannot be nil")
		}
		cfg.clock = clock
		return nil
	}
}

// WithSessionLogger sets the logger used by the session.
// If not specified, [slog.Default] is used.
func WithSessionLogger(logger *slog.Logger) SessionOption {
	return func(cfg *sessionConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithSnapshotCallback registers a function called after every poll, once
// the new snapshot is visible through [Session.Snapshot].
//
// Callbacks run synchronously on the poll goroutine and must not block.
// Panics are recovered and logged. Nil callbacks are ignored.
func WithSnapshotCallback(cb func(Snapshot)) SessionOption {
	return func(cfg *sessionConfig) error {
		if cb == nil {
			return nil
		}
		cfg.callbacks = append(cfg.callbacks, cb)
		return nil
	}
}
