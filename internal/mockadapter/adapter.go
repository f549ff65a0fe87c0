// Package mockadapter implements an in-memory stand-in for the Munir control
// adapter.
//
// It serves the Munir parameter tree under /api/0.1/<resource> with the same
// GET and PUT semantics as the real adapter: paths address subtrees, PUT
// bodies are merged into the existing tree, unknown paths and type mismatches
// are rejected with 400 and {"error": "..."}. Writing execute starts a
// simulated acquisition whose frames_written counter advances with the
// adapter's clock.
//
// The adapter backs the package tests and the mock-adapter CLI command.
package mockadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/jonboulle/clockwork"

	"github.com/jpalmerr/munirpanel/jsonvalue"
)

const (
	// APIVersion is the adapter API version in request paths.
	APIVersion = "0.1"

	defaultResource      = "munir"
	defaultFrameInterval = time.Millisecond
	defaultEndpoint      = "tcp://127.0.0.1:5004"
	maxRequestBodySize   = 1 << 20
)

// Request is a request the adapter received, kept for assertions.
type Request struct {
	Method string
	// Path is relative to the resource, "" for the root.
	Path string
	Body string
}

// Option configures an [Adapter].
type Option func(*Adapter)

// WithResource sets the resource name. Defaults to "munir".
func WithResource(name string) Option {
	return func(a *Adapter) { a.resource = name }
}

// WithSubsystems serves the frame-processor layout: one tree per subsystem
// under subsystems/<name>, with execute/<name> as the start trigger.
// Without it the adapter serves a single tree with execute at the root.
func WithSubsystems(names ...string) Option {
	return func(a *Adapter) { a.subsystems = append([]string(nil), names...) }
}

// WithFrameInterval sets the simulated time per written frame. Defaults to
// 1ms.
func WithFrameInterval(d time.Duration) Option {
	return func(a *Adapter) {
		if d > 0 {
			a.frameInterval = d
		}
	}
}

// WithClock sets the clock driving simulated acquisitions.
func WithClock(clock clockwork.Clock) Option {
	return func(a *Adapter) { a.clock = clock }
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) { a.logger = logger }
}

// Adapter is an in-memory Munir adapter. All methods are safe for concurrent
// use.
type Adapter struct {
	resource      string
	subsystems    []string
	frameInterval time.Duration
	clock         clockwork.Clock
	logger        *slog.Logger

	mu         sync.Mutex
	tree       *jsonvalue.Object
	acqs       map[string]*acquisition
	requests   []Request
	failStatus int
}

// New creates an adapter with the default parameter values.
func New(opts ...Option) *Adapter {
	a := &Adapter{
		resource:      defaultResource,
		frameInterval: defaultFrameInterval,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.clock == nil {
		a.clock = clockwork.NewRealClock()
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}

	a.acqs = make(map[string]*acquisition)
	if len(a.subsystems) == 0 {
		a.tree = newSubsystemTree([]string{defaultEndpoint})
		a.tree.Set("execute", jsonvalue.Bool(false))
		a.acqs[""] = &acquisition{}
		return a
	}

	list := make(jsonvalue.Array, 0, len(a.subsystems))
	subs := jsonvalue.NewObject()
	execute := jsonvalue.NewObject()
	for _, name := range a.subsystems {
		list = append(list, jsonvalue.String(name))
		subs.Set(name, newSubsystemTree([]string{defaultEndpoint}))
		execute.Set(name, jsonvalue.Bool(false))
		a.acqs[name] = &acquisition{}
	}
	a.tree = jsonvalue.NewObject()
	a.tree.Set("subsystem_list", list)
	a.tree.Set("subsystems", subs)
	a.tree.Set("execute", execute)
	return a
}

// Resource returns the served resource name.
func (a *Adapter) Resource() string {
	return a.resource
}

// Get returns the response body for a GET of path.
func (a *Adapter) Get(path string) (jsonvalue.Value, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.refreshLocked()
	return a.getLocked(jsonvalue.SplitPath(path))
}

func (a *Adapter) getLocked(segs []string) (jsonvalue.Value, error) {
	v, ok := jsonvalue.Lookup(a.tree, jsonvalue.JoinPath(segs...))
	if !ok {
		return nil, paramErrorf("Invalid path: %s", jsonvalue.JoinPath(segs...))
	}
	return wrap(segs, jsonvalue.Clone(v)), nil
}

// Set merges data into the tree at path and returns the updated subtree.
// The tree is left untouched when any part of data is rejected.
func (a *Adapter) Set(path string, data jsonvalue.Value) (jsonvalue.Value, error) {
	segs := jsonvalue.SplitPath(path)

	a.mu.Lock()
	defer a.mu.Unlock()

	a.refreshLocked()

	staged := jsonvalue.Clone(a.tree).(*jsonvalue.Object)
	ap := &applier{readOnly: a.readOnly}
	if err := ap.apply(staged, segs, data); err != nil {
		return nil, err
	}

	now := a.clock.Now()
	var starts, stops []string
	lvFrames := make(map[string]int64)
	for _, w := range ap.writes {
		sub, field, ok := a.splitSubsystem(w.path)
		if !ok {
			continue
		}
		switch field {
		case "execute":
			if b, ok := w.value.(jsonvalue.Bool); ok && bool(b) {
				if a.acqs[sub].running {
					return nil, paramErrorf("Cannot trigger execution while acquisition is already running")
				}
				starts = append(starts, sub)
			}
		case "stop_execute":
			stops = append(stops, sub)
		case "start_lv_frames":
			n, ok := w.value.(jsonvalue.Number)
			if !ok {
				return nil, paramErrorf("start_lv_frames must be a number")
			}
			frames, err := n.Int64()
			if err != nil || frames < 0 {
				return nil, paramErrorf("start_lv_frames must be a non-negative integer")
			}
			lvFrames[sub] = frames
		}
	}

	totals := make(map[string]int64, len(starts))
	for _, sub := range starts {
		total, err := a.acquisitionSize(staged, sub)
		if err != nil {
			return nil, err
		}
		totals[sub] = total
	}

	for sub, frames := range lvFrames {
		a.acqs[sub].lvFrames = frames
		a.logger.Info("liveview frames requested", "subsystem", sub, "frames", frames)
	}
	for _, sub := range starts {
		a.acqs[sub] = &acquisition{running: true, startedAt: now, total: totals[sub], lvFrames: a.acqs[sub].lvFrames}
		a.logger.Info("acquisition started", "subsystem", sub, "frames", totals[sub])
	}
	for _, sub := range stops {
		acq := a.acqs[sub]
		acq.framesAt(now, a.frameInterval)
		if acq.running {
			acq.running = false
			a.logger.Info("acquisition stopped", "subsystem", sub, "frames_written", acq.frames)
		}
	}

	a.tree = staged
	a.refreshLocked()
	return a.getLocked(segs)
}

// splitSubsystem maps a tree path to its subsystem key and field name.
func (a *Adapter) splitSubsystem(path []string) (sub, field string, ok bool) {
	if len(a.subsystems) == 0 {
		if len(path) == 0 {
			return "", "", false
		}
		return "", path[0], true
	}
	switch {
	case len(path) == 2 && path[0] == "execute":
		return path[1], "execute", true
	case len(path) >= 3 && path[0] == "subsystems":
		return path[1], path[2], true
	}
	return "", "", false
}

func (a *Adapter) readOnly(path []string) bool {
	if len(a.subsystems) > 0 {
		if len(path) > 0 && path[0] == "subsystem_list" {
			return true
		}
		if len(path) < 3 || path[0] != "subsystems" {
			return false
		}
		path = path[2:]
	}
	switch path[0] {
	case "endpoints", "status", "frame_procs":
		return true
	}
	return false
}

func (a *Adapter) subsystemTree(root *jsonvalue.Object, sub string) *jsonvalue.Object {
	if sub == "" {
		return root
	}
	v, _ := jsonvalue.Lookup(root, "subsystems/"+sub)
	obj, _ := v.(*jsonvalue.Object)
	return obj
}

func (a *Adapter) acquisitionSize(root *jsonvalue.Object, sub string) (int64, error) {
	tree := a.subsystemTree(root, sub)
	var size int64 = 1
	for _, field := range []string{"num_frames", "num_batches"} {
		v, _ := jsonvalue.Lookup(tree, "args/"+field)
		n, ok := v.(jsonvalue.Number)
		if !ok {
			return 0, paramErrorf("%s must be a number", field)
		}
		i, err := n.Int64()
		if err != nil || i < 0 {
			return 0, paramErrorf("%s must be a non-negative integer", field)
		}
		size *= i
	}
	return size, nil
}

// refreshLocked writes the simulated acquisition state into the tree.
func (a *Adapter) refreshLocked() {
	now := a.clock.Now()
	for sub, acq := range a.acqs {
		frames := acq.framesAt(now, a.frameInterval)
		tree := a.subsystemTree(a.tree, sub)
		if tree == nil {
			continue
		}

		status := jsonvalue.NewObject()
		status.Set("executing", jsonvalue.Bool(acq.running))
		status.Set("frames_written", jsonvalue.Number(strconv.FormatInt(frames, 10)))
		tree.Set("status", status)

		hdf := jsonvalue.NewObject()
		hdf.Set("writing", jsonvalue.Bool(acq.running))
		hdf.Set("frames_written", jsonvalue.Number(strconv.FormatInt(frames, 10)))
		liveview := jsonvalue.NewObject()
		liveview.Set("frames", jsonvalue.Number(strconv.FormatInt(acq.lvFrames, 10)))
		fp := jsonvalue.NewObject()
		fp.Set("hdf", hdf)
		fp.Set("liveview", liveview)
		procs := jsonvalue.NewObject()
		procs.Set("status", jsonvalue.Array{fp})
		tree.Set("frame_procs", procs)

		tree.Set("stop_execute", jsonvalue.Null{})
		tree.Set("start_lv_frames", jsonvalue.Null{})
		if sub == "" {
			tree.Set("execute", jsonvalue.Bool(acq.running))
		} else {
			execute, _ := a.tree.Get("execute")
			if obj, ok := execute.(*jsonvalue.Object); ok {
				obj.Set(sub, jsonvalue.Bool(acq.running))
			}
		}
	}
}

// SetOffline makes every request fail with status until [Adapter.SetOnline].
func (a *Adapter) SetOffline(status int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failStatus = status
}

// SetOnline clears [Adapter.SetOffline].
func (a *Adapter) SetOnline() {
	a.SetOffline(0)
}

// Requests returns the requests received so far, oldest first.
func (a *Adapter) Requests() []Request {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Request(nil), a.requests...)
}

// Writes returns the PUT requests received so far, oldest first.
func (a *Adapter) Writes() []Request {
	var out []Request
	for _, r := range a.Requests() {
		if r.Method == http.MethodPut {
			out = append(out, r)
		}
	}
	return out
}

// ResetRequests forgets recorded requests.
func (a *Adapter) ResetRequests() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.requests = nil
}

// BasePath returns the URL path under which resources are served.
func BasePath() string {
	return "/api/" + APIVersion
}

// Handler returns the HTTP handler serving the adapter API.
func (a *Adapter) Handler() http.Handler {
	r := mux.NewRouter()
	base := BasePath()
	resource := base + "/" + a.resource

	r.HandleFunc("/api", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"api": APIVersion}, a.logger)
	}).Methods(http.MethodGet)
	r.HandleFunc(base+"/adapters", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"adapters": []string{a.resource}}, a.logger)
	}).Methods(http.MethodGet)

	r.HandleFunc(resource, a.handleGet).Methods(http.MethodGet)
	r.HandleFunc(resource+"/{path:.*}", a.handleGet).Methods(http.MethodGet)
	r.HandleFunc(resource, a.handlePut).Methods(http.MethodPut)
	r.HandleFunc(resource+"/{path:.*}", a.handlePut).Methods(http.MethodPut)

	return r
}

// record stores the request and reports the injected failure status, if any.
func (a *Adapter) record(req Request) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.requests = append(a.requests, req)
	return a.failStatus
}

func (a *Adapter) handleGet(w http.ResponseWriter, r *http.Request) {
	path := mux.Vars(r)["path"]
	if status := a.record(Request{Method: http.MethodGet, Path: jsonvalue.JoinPath(path)}); status != 0 {
		writeError(w, status, "adapter offline", a.logger)
		return
	}

	v, err := a.Get(path)
	if err != nil {
		a.logger.Error("GET request failed", "path", path, "error", err)
		writeError(w, http.StatusBadRequest, err.Error(), a.logger)
		return
	}
	writeJSON(w, http.StatusOK, v, a.logger)
}

func (a *Adapter) handlePut(w http.ResponseWriter, r *http.Request) {
	path := mux.Vars(r)["path"]
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body", a.logger)
		return
	}
	if status := a.record(Request{Method: http.MethodPut, Path: jsonvalue.JoinPath(path), Body: string(body)}); status != 0 {
		writeError(w, status, "adapter offline", a.logger)
		return
	}

	data, err := jsonvalue.Parse(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to decode PUT request body: "+err.Error(), a.logger)
		return
	}

	v, err := a.Set(path, data)
	if err != nil {
		a.logger.Error("PUT request failed", "path", path, "error", err)
		writeError(w, http.StatusBadRequest, err.Error(), a.logger)
		return
	}
	a.logger.Debug("parameters set", "path", path)
	writeJSON(w, http.StatusOK, v, a.logger)
}

// Serve listens on addr and serves the adapter until ctx is cancelled.
func (a *Adapter) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	a.logger.Info("mock adapter listening",
		"url", fmt.Sprintf("http://%s%s/%s", ln.Addr(), BasePath(), a.resource),
		"subsystems", a.subsystems,
	)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown mock adapter: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string, logger *slog.Logger) {
	writeJSON(w, status, map[string]string{"error": msg}, logger)
}
