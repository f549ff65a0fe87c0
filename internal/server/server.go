package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jpalmerr/munirpanel/internal/metrics"
	"github.com/jpalmerr/munirpanel/internal/store"
	"github.com/jpalmerr/munirpanel/jsonvalue"
	"github.com/jpalmerr/munirpanel/statusfmt"
)

const (
	// streamWriteTimeout is the maximum time allowed for a single SSE or
	// WebSocket write. Must be <= shutdown timeout to ensure clean shutdown.
	streamWriteTimeout = 5 * time.Second

	// shutdownTimeout bounds graceful shutdown of in-flight requests.
	shutdownTimeout = 5 * time.Second

	// maxBodySize limits request bodies on write endpoints.
	maxBodySize = 1 << 20

	defaultTitle     = "Munir"
	titlePlaceholder = "{{.Title}}"
)

// Controller is the write side of the panel: parameter updates and
// acquisition commands.
//
// Paths the API receives are relative to the panel's scope, which is the
// whole document for a flat adapter or one subsystem tree in frame-processor
// mode. Path maps them to document paths.
type Controller interface {
	// Path maps a scope-relative path to its document path.
	Path(rel string) string

	// Put sends a partial document to path immediately.
	Put(ctx context.Context, path string, partial any) <-chan error

	// Edit records a debounced edit of the field at path.
	Edit(path string, value any) error

	// SetArg records a debounced edit of an acquisition argument from text.
	SetArg(name, text string) error

	// Refresh requests a poll ahead of the next tick.
	Refresh()

	StartAcquisition(ctx context.Context) <-chan error
	StopAcquisition(ctx context.Context) <-chan error
	StartLiveView(ctx context.Context, frames int64) <-chan error
	SetTimeout(ctx context.Context, seconds float64) <-chan error
}

// panelState is a snapshot as sent to clients. Scope is the document path
// the panel's relative paths resolve under, "" for the whole document.
type panelState struct {
	store.Snapshot
	Scope string `json:"scope"`
}

// Server handles HTTP requests for the control panel and its API.
//
// Routes:
//   - GET /: the embedded control panel page
//   - GET /api/state: the current snapshot and scope as JSON
//   - GET /api/status: the scope, or ?path= subtree, as indented text
//   - GET /api/sse: Server-Sent Events stream of snapshots
//   - GET /ws: WebSocket stream of snapshots
//   - PUT /api/params/{path}: immediate partial update
//   - POST /api/edit/{path}: debounced field edit, body {"value": ...}
//   - POST /api/args/{name}: debounced argument edit from text, body {"value": "..."}
//   - POST /api/acquisition/{start,stop,liveview,timeout}: acquisition commands
//   - GET /healthz, GET /metrics
//
// The server is designed for graceful shutdown via context cancellation.
type Server struct {
	store      store.Store
	ctrl       Controller
	port       int
	httpServer *http.Server
	assets     fs.FS
	title      string
	logger     *slog.Logger
	upgrader   websocket.Upgrader
}

// NewServer creates a new HTTP [Server].
//
// Parameters:
//   - st: snapshot store fed by the poll session
//   - ctrl: write path to the adapter
//   - port: TCP port to listen on, 0 picks a free port
//   - assets: embedded filesystem containing the panel page (may be nil)
//   - title: page title (defaults to "Munir" if empty)
//   - logger: logger for server events
//
// The server is not started until [Server.Start] is called.
func NewServer(st store.Store, ctrl Controller, port int, assets fs.FS, title string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:  st,
		ctrl:   ctrl,
		port:   port,
		assets: assets,
		title:  title,
		logger: logger,
		upgrader: websocket.Upgrader{
			// control-network tools attach from other origins
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handler returns the router serving every panel route.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.HandleFunc("/api/state", s.handleState).Methods(http.MethodGet)
	r.HandleFunc("/api/status", s.handleStatusText).Methods(http.MethodGet)
	r.HandleFunc("/api/sse", s.handleSSE).Methods(http.MethodGet)
	r.HandleFunc("/api/params", s.handlePut).Methods(http.MethodPut)
	r.HandleFunc("/api/params/{path:.*}", s.handlePut).Methods(http.MethodPut)
	r.HandleFunc("/api/edit/{path:.*}", s.handleEdit).Methods(http.MethodPost)
	r.HandleFunc("/api/args/{name}", s.handleArg).Methods(http.MethodPost)
	r.HandleFunc("/api/acquisition/{command}", s.handleAcquisition).Methods(http.MethodPost)

	r.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	if s.assets != nil {
		r.HandleFunc("/", s.handleDashboard).Methods(http.MethodGet)
	}

	return r
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start is non-blocking and returns immediately after confirming the server
// is listening. The server will continue running until the context is
// cancelled, at which point it initiates a graceful shutdown with a 5-second
// timeout.
//
// Returns an error if the server fails to bind to the configured port.
func (s *Server) Start(ctx context.Context) error {
	// create listener first to verify port availability synchronously
	addr := fmt.Sprintf(":%d", s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.port, err)
	}
	if tcp, ok := ln.Addr().(*net.TCPAddr); ok {
		s.port = tcp.Port
	}

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		// BaseContext derives all request contexts from the server context.
		// When ctx is cancelled, all request contexts are also cancelled,
		// enabling graceful shutdown of long-running handlers like SSE.
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", "error", err)
		}
	}()

	// shutdown on context cancellation
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	return nil
}

// Port returns the bound port once [Server.Start] has returned.
func (s *Server) Port() int {
	return s.port
}

// handleDashboard serves the control panel page.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if s.assets == nil {
		http.Error(w, "Panel not found", http.StatusInternalServerError)
		return
	}

	content, err := fs.ReadFile(s.assets, "assets/index.html")
	if err != nil {
		http.Error(w, "Panel not found", http.StatusInternalServerError)
		return
	}

	// apply title substitution with HTML escaping to prevent XSS
	title := s.title
	if title == "" {
		title = defaultTitle
	}
	rendered := strings.ReplaceAll(string(content), titlePlaceholder, html.EscapeString(title))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err = w.Write([]byte(rendered)); err != nil {
		s.logger.Error("failed to write panel response", "error", err)
	}
}

// state pairs snap with the panel scope.
func (s *Server) state(snap store.Snapshot) panelState {
	return panelState{Snapshot: snap, Scope: s.ctrl.Path("")}
}

// handleState returns the current snapshot as JSON.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-cache")
	s.writeJSON(w, http.StatusOK, s.state(s.store.Current()))
}

// handleStatusText renders the scope, or the subtree named by ?path=, as
// indented text.
func (s *Server) handleStatusText(w http.ResponseWriter, r *http.Request) {
	snap := s.store.Current()
	if snap.Document == nil {
		http.Error(w, "no document fetched yet", http.StatusServiceUnavailable)
		return
	}

	path := r.URL.Query().Get("path")
	v, ok := jsonvalue.Lookup(snap.Document, s.ctrl.Path(path))
	if !ok {
		http.Error(w, fmt.Sprintf("path %q not found", path), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	if snap.Error != nil {
		w.Header().Set("X-Adapter-Error", *snap.Error)
	}
	if _, err := io.WriteString(w, statusfmt.Format(v)); err != nil {
		s.logger.Error("failed to write status response", "error", err)
	}
}

// handlePut forwards the request body to the adapter and waits for the
// outcome.
func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	path := s.ctrl.Path(mux.Vars(r)["path"])

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	partial, err := jsonvalue.Parse(body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if !s.await(w, r, s.ctrl.Put(r.Context(), path, partial)) {
		return
	}
	s.ctrl.Refresh()
	s.writeJSON(w, http.StatusOK, map[string]string{"path": path, "result": "ok"})
}

// handleEdit records a debounced edit. The write happens later, so the
// response is 202.
func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	rel := jsonvalue.JoinPath(mux.Vars(r)["path"])
	if rel == "" {
		s.writeError(w, http.StatusBadRequest, "edit path must name a field")
		return
	}

	value, ok := s.readValue(w, r)
	if !ok {
		return
	}

	path := s.ctrl.Path(rel)
	if err := s.ctrl.Edit(path, value); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"path": path, "result": "pending"})
}

// handleArg records a debounced edit of an acquisition argument typed as
// text. Numeric arguments are parsed before the edit is recorded.
func (s *Server) handleArg(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	value, ok := s.readValue(w, r)
	if !ok {
		return
	}
	text, isString := value.(jsonvalue.String)
	if !isString {
		s.writeError(w, http.StatusBadRequest, `body must be {"value": "<text>"}`)
		return
	}

	if err := s.ctrl.SetArg(name, string(text)); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"path": s.ctrl.Path("args/" + name), "result": "pending"})
}

// readValue decodes a {"value": ...} request body, writing a 400 when it is
// not one.
func (s *Server) readValue(w http.ResponseWriter, r *http.Request) (jsonvalue.Value, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read request body")
		return nil, false
	}
	doc, err := jsonvalue.Parse(body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	var value jsonvalue.Value
	if obj, ok := doc.(*jsonvalue.Object); ok {
		value, _ = obj.Get("value")
	}
	if value == nil {
		s.writeError(w, http.StatusBadRequest, `body must be {"value": ...}`)
		return nil, false
	}
	return value, true
}

// handleAcquisition runs start, stop, liveview or timeout.
func (s *Server) handleAcquisition(w http.ResponseWriter, r *http.Request) {
	var result <-chan error
	switch cmd := mux.Vars(r)["command"]; cmd {
	case "start":
		result = s.ctrl.StartAcquisition(r.Context())
	case "stop":
		result = s.ctrl.StopAcquisition(r.Context())
	case "liveview":
		var req struct {
			Frames int64 `json:"frames"`
		}
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		result = s.ctrl.StartLiveView(r.Context(), req.Frames)
	case "timeout":
		var req struct {
			Seconds float64 `json:"seconds"`
		}
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		result = s.ctrl.SetTimeout(r.Context(), req.Seconds)
	default:
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("unknown command %q", cmd))
		return
	}

	if !s.await(w, r, result) {
		return
	}
	s.ctrl.Refresh()
	s.writeJSON(w, http.StatusOK, map[string]string{"result": "ok"})
}

// await waits for a write outcome and writes the error response if it
// failed. It reports whether the write succeeded.
func (s *Server) await(w http.ResponseWriter, r *http.Request, result <-chan error) bool {
	select {
	case err := <-result:
		if err != nil {
			s.writeError(w, http.StatusBadGateway, err.Error())
			return false
		}
		return true
	case <-r.Context().Done():
		return false
	}
}

// handleHealth reports the panel as alive and whether the adapter answered
// the last poll.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.store.Current()
	adapter := "ok"
	switch {
	case snap.Polls == 0:
		adapter = "pending"
	case snap.Error != nil:
		adapter = "unreachable"
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "adapter": adapter})
}

// handleSSE streams snapshots via Server-Sent Events.
//
// The handler uses write deadlines to prevent goroutine leaks when clients are
// slow or disconnected.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	// check if flushing is supported
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	rc := http.NewResponseController(w)
	deadlinesSupported := true

	writeAndFlush := func(data []byte) error {
		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(streamWriteTimeout)); err != nil {
				// deadline not supported by underlying connection, continue without
				s.logger.Warn("sse write deadlines not supported", "error", err)
				deadlinesSupported = false
			}
		}

		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		return rc.Flush()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	ch := s.store.Subscribe()
	defer s.store.Unsubscribe(ch)

	gauge := metrics.StreamClients.WithLabelValues("sse")
	gauge.Inc()
	defer gauge.Dec()

	// send current snapshot first
	if data, err := json.Marshal(s.state(s.store.Current())); err == nil {
		if err := writeAndFlush(data); err != nil {
			return
		}
	}

	for {
		select {
		case snap, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(s.state(snap))
			if err != nil {
				s.logger.Error("failed to encode snapshot", "error", err)
				continue
			}
			if err := writeAndFlush(data); err != nil {
				return
			}

		case <-r.Context().Done():
			// request context is derived from server context via BaseContext,
			// so this fires on both client disconnect AND server shutdown
			return
		}
	}
}

// handleWebSocket streams snapshots over a WebSocket until either side
// closes.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ch := s.store.Subscribe()
	defer s.store.Unsubscribe(ch)

	gauge := metrics.StreamClients.WithLabelValues("websocket")
	gauge.Inc()
	defer gauge.Dec()

	s.logger.Debug("websocket client connected", "remote", r.RemoteAddr)

	// reads only detect the peer going away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(snap store.Snapshot) error {
		if err := conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout)); err != nil {
			return err
		}
		return conn.WriteJSON(s.state(snap))
	}

	if err := send(s.store.Current()); err != nil {
		return
	}

	for {
		select {
		case snap, ok := <-ch:
			if !ok {
				return
			}
			if err := send(snap); err != nil {
				s.logger.Debug("websocket write failed", "error", err)
				return
			}
		case <-gone:
			s.logger.Debug("websocket client disconnected", "remote", r.RemoteAddr)
			return
		case <-r.Context().Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(time.Second))
			return
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
