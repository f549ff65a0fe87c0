package munirpanel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jpalmerr/munirpanel/dashboard"
	"github.com/jpalmerr/munirpanel/internal/server"
	"github.com/jpalmerr/munirpanel/munir"
)

const (
	defaultPort     = 8080
	defaultResource = "munir"
)

// Panel connects a [Session] to a Munir adapter and serves the control panel
// for it over HTTP.
//
// A Panel is created using [New] with functional options and started with
// [Panel.Start]. The typical lifecycle is:
//
//	p, err := munirpanel.New("http://localhost:8888/api/0.1")
//	if err != nil {
//	    slog.Error("failed to create panel", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	p.Start(ctx) // blocks until context cancelled
type Panel struct {
	baseURL     string
	title       string
	resource    string
	subsystem   string
	port        int
	logger      *slog.Logger
	sessionOpts []SessionOption

	mu        sync.Mutex
	boundPort int
}

// New creates a new [Panel] for the adapter API rooted at baseURL.
//
// Defaults:
//   - Resource: munir
//   - Port: 8080
//   - Title: Munir
//
// Returns an error if baseURL is not an http(s) URL or if any option is
// invalid.
func New(baseURL string, opts ...Option) (*Panel, error) {
	if err := validateBaseURL(baseURL); err != nil {
		return nil, err
	}

	cfg := &panelConfig{
		resource: defaultResource,
		port:     defaultPort,
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Panel{
		baseURL:     baseURL,
		title:       cfg.title,
		resource:    cfg.resource,
		subsystem:   cfg.subsystem,
		port:        cfg.port,
		logger:      logger,
		sessionOpts: cfg.sessionOpts,
	}, nil
}

// Start connects to the adapter and serves the control panel.
//
// Start is a blocking call that runs until the provided context is cancelled.
// The adapter is polled immediately and then once per interval; the panel is
// available at http://localhost:<port>. On cancellation the HTTP server shuts
// down gracefully and the session is closed, dropping any pending edits.
//
// Returns nil on graceful shutdown. Returns an error if the session cannot
// be created or the HTTP server fails to start.
func (p *Panel) Start(ctx context.Context) error {
	if ctx.Err() != nil {
		return nil
	}

	opts := append([]SessionOption{WithSessionLogger(p.logger)}, p.sessionOpts...)
	sess, err := Connect(ctx, p.resource, p.baseURL, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect session: %w", err)
	}
	defer sess.Close()

	var mopts []munir.Option
	if p.subsystem != "" {
		mopts = append(mopts, munir.WithSubsystem(p.subsystem))
	}
	ctrl := &panelController{Session: sess, acq: munir.NewController(sess, mopts...)}

	httpServer := server.NewServer(sess.snapshotStore(), ctrl, p.port, dashboard.Assets, p.title, p.logger)
	if err := httpServer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	p.setBoundPort(httpServer.Port())
	defer p.setBoundPort(0)

	p.logger.Info("panel available",
		"url", fmt.Sprintf("http://localhost:%d", httpServer.Port()),
		"adapter", sess.URL(),
		"subsystem", p.subsystem,
	)

	<-ctx.Done()
	p.logger.Info("panel stopped")
	return nil
}

// Port returns the port the panel is listening on while [Panel.Start] runs,
// and the configured port otherwise. With [WithPort](0) it returns 0 until
// the listener is bound.
func (p *Panel) Port() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.boundPort != 0 {
		return p.boundPort
	}
	return p.port
}

// Resource returns the adapter resource name.
func (p *Panel) Resource() string {
	return p.resource
}

// Subsystem returns the fp-mode subsystem, or "" for a flat adapter.
func (p *Panel) Subsystem() string {
	return p.subsystem
}

func (p *Panel) setBoundPort(port int) {
	p.mu.Lock()
	p.boundPort = port
	p.mu.Unlock()
}

// panelController joins the raw session writes with the Munir commands for
// the server. Paths from the server are resolved under the configured
// subsystem.
type panelController struct {
	*Session
	acq *munir.Controller
}

func (c *panelController) Path(rel string) string {
	return c.acq.Path(rel)
}

func (c *panelController) SetArg(name, text string) error {
	return c.acq.SetArg(name, text)
}

func (c *panelController) SetTimeout(ctx context.Context, seconds float64) <-chan error {
	return c.acq.SetTimeout(ctx, seconds)
}

func (c *panelController) StartAcquisition(ctx context.Context) <-chan error {
	return c.acq.Start(ctx)
}

func (c *panelController) StopAcquisition(ctx context.Context) <-chan error {
	return c.acq.Stop(ctx)
}

func (c *panelController) StartLiveView(ctx context.Context, frames int64) <-chan error {
	return c.acq.StartLiveView(ctx, frames)
}

var _ server.Controller = (*panelController)(nil)
