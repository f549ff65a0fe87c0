package munirpanel

import (
	"errors"
	"log/slog"
	"strings"
)

// panelConfig holds mutable state during Panel construction.
type panelConfig struct {
	title       string
	resource    string
	subsystem   string
	port        int
	logger      *slog.Logger
	sessionOpts []SessionOption
}

// Option is a function that configures a [Panel] instance during construction.
//
// Option implements the functional options pattern, allowing optional
// configuration to be passed to [New] in a type-safe, extensible way.
// Options return an error if validation fails.
//
// Built-in options: [WithPort], [WithTitle], [WithLogger], [WithResource],
// [WithSubsystem], [WithSessionOptions].
type Option func(*panelConfig) error

// WithPort sets the HTTP port for the control panel server.
//
// The panel UI and API will be available at http://localhost:<port>.
// Defaults to 8080 if not specified. Port 0 binds a free port, reported by
// [Panel.Port] once the panel is serving.
//
// Returns an error if the port is outside the range 0-65535.
func WithPort(port int) Option {
	return func(cfg *panelConfig) error {
		if port < 0 || port > 65535 {
			return errors.New("port must be between 0 and 65535")
		}
		cfg.port = port
		return nil
	}
}

// WithTitle sets the panel title displayed in the browser tab and header.
//
// If not specified, defaults to "Munir".
//
//	p, err := munirpanel.New(base,
//	    munirpanel.WithTitle("Beamline 3 acquisition"),
//	)
func WithTitle(title string) Option {
	return func(cfg *panelConfig) error {
		cfg.title = title
		return nil
	}
}

// WithLogger sets a custom [slog.Logger] for the panel and its session.
//
// If not specified, [slog.Default] is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *panelConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithResource names the adapter resource to poll. Defaults to "munir".
func WithResource(name string) Option {
	return func(cfg *panelConfig) error {
		name = strings.Trim(name, "/")
		if name == "" {
			return errors.New("resource name cannot be empty")
		}
		cfg.resource = name
		return nil
	}
}

// WithSubsystem addresses one subsystem of an adapter running in fp mode.
// Commands and field paths are then resolved under subsystems/<name>/.
func WithSubsystem(name string) Option {
	return func(cfg *panelConfig) error {
		name = strings.Trim(name, "/")
		if name == "" {
			return errors.New("subsystem name cannot be empty")
		}
		cfg.subsystem = name
		return nil
	}
}

// WithSessionOptions passes options through to [Connect] when the panel
// starts. Later options override earlier ones.
//
//	p, err := munirpanel.New(base,
//	    munirpanel.WithSessionOptions(
//	        munirpanel.WithInterval(500*time.Millisecond),
//	        munirpanel.WithQuietPeriod(time.Second),
//	    ),
//	)
func WithSessionOptions(opts ...SessionOption) Option {
	return func(cfg *panelConfig) error {
		cfg.sessionOpts = append(cfg.sessionOpts, opts...)
		return nil
	}
}
