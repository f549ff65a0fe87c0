package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jpalmerr/munirpanel/internal/store"
	"github.com/jpalmerr/munirpanel/jsonvalue"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type call struct {
	Op    string
	Path  string
	Value string
}

// fakeController records writes and answers with err. Paths resolve under
// scope.
type fakeController struct {
	mu        sync.Mutex
	scope     string
	calls     []call
	refreshes int
	err       error
	editErr   error
}

func (f *fakeController) Path(rel string) string {
	return jsonvalue.JoinPath(f.scope, rel)
}

func (f *fakeController) record(c call) <-chan error {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	err := f.err
	f.mu.Unlock()

	ch := make(chan error, 1)
	ch <- err
	close(ch)
	return ch
}

func (f *fakeController) Put(_ context.Context, path string, partial any) <-chan error {
	data, _ := json.Marshal(partial)
	return f.record(call{Op: "put", Path: path, Value: string(data)})
}

func (f *fakeController) Edit(path string, value any) error {
	if f.editErr != nil {
		return f.editErr
	}
	data, _ := json.Marshal(value)
	f.record(call{Op: "edit", Path: path, Value: string(data)})
	return nil
}

func (f *fakeController) SetArg(name, text string) error {
	if name != "file_name" && name != "num_frames" {
		return errors.New("unknown argument " + strconv.Quote(name))
	}
	f.record(call{Op: "arg", Path: f.Path("args/" + name), Value: text})
	return nil
}

func (f *fakeController) Refresh() {
	f.mu.Lock()
	f.refreshes++
	f.mu.Unlock()
}

func (f *fakeController) StartAcquisition(context.Context) <-chan error {
	return f.record(call{Op: "start"})
}

func (f *fakeController) StopAcquisition(context.Context) <-chan error {
	return f.record(call{Op: "stop"})
}

func (f *fakeController) StartLiveView(_ context.Context, frames int64) <-chan error {
	data, _ := json.Marshal(frames)
	return f.record(call{Op: "liveview", Value: string(data)})
}

func (f *fakeController) SetTimeout(_ context.Context, seconds float64) <-chan error {
	return f.record(call{Op: "timeout", Value: strconv.FormatFloat(seconds, 'f', -1, 64)})
}

func (f *fakeController) Calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func newTestStore(doc string) *store.MemoryStore {
	st := store.NewMemoryStore("munir")
	if doc != "" {
		st.RecordSuccess(jsonvalue.MustParse(doc), time.Unix(1000, 0))
	}
	return st
}

const testDoc = `{"args":{"file_name":"a.h5","num_frames":10},"status":{"executing":false,"frames_written":0}}`

func serve(t *testing.T, srv *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

// --- State and status ---

func TestHandleState(t *testing.T) {
	srv := NewServer(newTestStore(testDoc), &fakeController{}, 0, nil, "", testLogger())

	rec := serve(t, srv, http.MethodGet, "/api/state", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected JSON content type, got %q", ct)
	}

	var got struct {
		Resource string          `json:"resource"`
		Document json.RawMessage `json:"document"`
		Error    *string         `json:"error"`
		Polls    uint64          `json:"polls"`
		Scope    *string         `json:"scope"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got.Resource != "munir" || got.Polls != 1 || got.Error != nil {
		t.Errorf("unexpected snapshot: %+v", got)
	}
	if string(got.Document) != testDoc {
		t.Errorf("document not passed through untouched: %s", got.Document)
	}
	if got.Scope == nil || *got.Scope != "" {
		t.Errorf("expected empty scope for a flat adapter, got %v", got.Scope)
	}
}

const subsystemDoc = `{"subsystem_list":["hibirds"],"subsystems":{"hibirds":` + testDoc + `},"execute":{"hibirds":false}}`

func TestSubsystemScope(t *testing.T) {
	ctrl := &fakeController{scope: "subsystems/hibirds"}
	srv := NewServer(newTestStore(subsystemDoc), ctrl, 0, nil, "", testLogger())

	rec := serve(t, srv, http.MethodGet, "/api/state", "")
	var state struct {
		Scope string `json:"scope"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if state.Scope != "subsystems/hibirds" {
		t.Errorf("scope = %q, want subsystems/hibirds", state.Scope)
	}

	rec = serve(t, srv, http.MethodGet, "/api/status?path=status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status in scope: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if want := "executing: false\nframes_written: 0\n"; rec.Body.String() != want {
		t.Errorf("got %q, want %q", rec.Body.String(), want)
	}

	rec = serve(t, srv, http.MethodPost, "/api/edit/args/file_name", `{"value":"b.h5"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("edit: expected 202, got %d", rec.Code)
	}
	rec = serve(t, srv, http.MethodPut, "/api/params/args/num_frames", `{"num_frames":5}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("put: expected 200, got %d", rec.Code)
	}

	want := []call{
		{Op: "edit", Path: "subsystems/hibirds/args/file_name", Value: `"b.h5"`},
		{Op: "put", Path: "subsystems/hibirds/args/num_frames", Value: `{"num_frames":5}`},
	}
	calls := ctrl.Calls()
	if len(calls) != len(want) {
		t.Fatalf("got %+v, want %+v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call %d = %+v, want %+v", i, calls[i], want[i])
		}
	}
}

func TestHandleStatusText(t *testing.T) {
	srv := NewServer(newTestStore(testDoc), &fakeController{}, 0, nil, "", testLogger())

	tests := []struct {
		target string
		code   int
		want   string
	}{
		{"/api/status?path=status", http.StatusOK, "executing: false\nframes_written: 0\n"},
		{"/api/status?path=args/file_name", http.StatusOK, "\"a.h5\"\n"},
		{"/api/status", http.StatusOK, "args: \n    file_name: \"a.h5\"\n    num_frames: 10\nstatus: \n    executing: false\n    frames_written: 0\n"},
		{"/api/status?path=nope", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec := serve(t, srv, http.MethodGet, tt.target, "")
			if rec.Code != tt.code {
				t.Fatalf("expected %d, got %d", tt.code, rec.Code)
			}
			if tt.want != "" && rec.Body.String() != tt.want {
				t.Errorf("got %q, want %q", rec.Body.String(), tt.want)
			}
		})
	}
}

func TestHandleStatusText_NoDocument(t *testing.T) {
	srv := NewServer(newTestStore(""), &fakeController{}, 0, nil, "", testLogger())

	rec := serve(t, srv, http.MethodGet, "/api/status", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

func TestHandleStatusText_StaleHeader(t *testing.T) {
	st := newTestStore(testDoc)
	st.RecordFailure(errors.New("connection refused"), time.Unix(1001, 0))
	srv := NewServer(st, &fakeController{}, 0, nil, "", testLogger())

	rec := serve(t, srv, http.MethodGet, "/api/status?path=status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("stale document should still render, got %d", rec.Code)
	}
	if got := rec.Header().Get("X-Adapter-Error"); got != "connection refused" {
		t.Errorf("expected adapter error header, got %q", got)
	}
}

func TestHandleHealth(t *testing.T) {
	tests := []struct {
		name  string
		store func() *store.MemoryStore
		want  string
	}{
		{"pending", func() *store.MemoryStore { return newTestStore("") }, "pending"},
		{"ok", func() *store.MemoryStore { return newTestStore(testDoc) }, "ok"},
		{"unreachable", func() *store.MemoryStore {
			st := newTestStore(testDoc)
			st.RecordFailure(errors.New("down"), time.Unix(1001, 0))
			return st
		}, "unreachable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewServer(tt.store(), &fakeController{}, 0, nil, "", testLogger())
			rec := serve(t, srv, http.MethodGet, "/healthz", "")
			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", rec.Code)
			}
			var got map[string]string
			_ = json.Unmarshal(rec.Body.Bytes(), &got)
			if got["adapter"] != tt.want {
				t.Errorf("adapter = %q, want %q", got["adapter"], tt.want)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := NewServer(newTestStore(""), &fakeController{}, 0, nil, "", testLogger())

	rec := serve(t, srv, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Error("expected default Go collectors in metrics output")
	}
}

// --- Writes ---

func TestHandlePut(t *testing.T) {
	ctrl := &fakeController{}
	srv := NewServer(newTestStore(testDoc), ctrl, 0, nil, "", testLogger())

	rec := serve(t, srv, http.MethodPut, "/api/params/args/file_name", `{"file_name":"b.h5"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	calls := ctrl.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	want := call{Op: "put", Path: "args/file_name", Value: `{"file_name":"b.h5"}`}
	if calls[0] != want {
		t.Errorf("got %+v, want %+v", calls[0], want)
	}
	if ctrl.refreshes != 1 {
		t.Errorf("expected a refresh after a successful put, got %d", ctrl.refreshes)
	}
}

func TestHandlePut_Errors(t *testing.T) {
	ctrl := &fakeController{}
	srv := NewServer(newTestStore(testDoc), ctrl, 0, nil, "", testLogger())

	rec := serve(t, srv, http.MethodPut, "/api/params/args", `{"file_name":`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body: expected 400, got %d", rec.Code)
	}

	ctrl.err = errors.New("adapter returned 400: Invalid path: args/bogus")
	rec = serve(t, srv, http.MethodPut, "/api/params/args/bogus", `{"bogus":1}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("adapter failure: expected 502, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Invalid path") {
		t.Errorf("expected adapter error in body, got %s", rec.Body.String())
	}
	if ctrl.refreshes != 0 {
		t.Errorf("no refresh after a failed put, got %d", ctrl.refreshes)
	}

	rec = serve(t, srv, http.MethodGet, "/api/params/args", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET on params: expected 405, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "method not allowed") {
		t.Errorf("expected JSON error body, got %s", rec.Body.String())
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := NewServer(newTestStore(testDoc), &fakeController{}, 0, nil, "", testLogger())

	for _, tt := range []struct{ method, target string }{
		{http.MethodPost, "/api/state"},
		{http.MethodGet, "/api/edit/args/file_name"},
		{http.MethodGet, "/api/acquisition/start"},
		{http.MethodDelete, "/healthz"},
	} {
		if rec := serve(t, srv, tt.method, tt.target, ""); rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s: expected 405, got %d", tt.method, tt.target, rec.Code)
		}
	}
	if rec := serve(t, srv, http.MethodGet, "/api/nothing", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown route: expected 404, got %d", rec.Code)
	}
}

func TestHandleEdit(t *testing.T) {
	ctrl := &fakeController{}
	srv := NewServer(newTestStore(testDoc), ctrl, 0, nil, "", testLogger())

	rec := serve(t, srv, http.MethodPost, "/api/edit/args/file_name", `{"value":"b.h5"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	calls := ctrl.Calls()
	want := call{Op: "edit", Path: "args/file_name", Value: `"b.h5"`}
	if len(calls) != 1 || calls[0] != want {
		t.Errorf("got %+v, want [%+v]", calls, want)
	}

	for _, body := range []string{`{}`, `"b.h5"`, `{"val":1}`, `nope`} {
		rec = serve(t, srv, http.MethodPost, "/api/edit/args/file_name", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %s: expected 400, got %d", body, rec.Code)
		}
	}

	rec = serve(t, srv, http.MethodPost, "/api/edit/", `{"value":1}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("root edit: expected 400, got %d", rec.Code)
	}

	ctrl.editErr = errors.New("session closed")
	rec = serve(t, srv, http.MethodPost, "/api/edit/args/file_name", `{"value":1}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("rejected edit: expected 400, got %d", rec.Code)
	}
	if len(ctrl.Calls()) != 1 {
		t.Errorf("expected only the first edit recorded, got %+v", ctrl.Calls())
	}
}

func TestHandleArg(t *testing.T) {
	ctrl := &fakeController{scope: "subsystems/hibirds"}
	srv := NewServer(newTestStore(subsystemDoc), ctrl, 0, nil, "", testLogger())

	rec := serve(t, srv, http.MethodPost, "/api/args/num_frames", `{"value":"250"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"path":"subsystems/hibirds/args/num_frames"`) {
		t.Errorf("expected resolved path in body, got %s", rec.Body.String())
	}
	want := call{Op: "arg", Path: "subsystems/hibirds/args/num_frames", Value: "250"}
	if calls := ctrl.Calls(); len(calls) != 1 || calls[0] != want {
		t.Errorf("got %+v, want [%+v]", calls, want)
	}

	if rec := serve(t, srv, http.MethodPost, "/api/args/num_frames", `{"value":250}`); rec.Code != http.StatusBadRequest {
		t.Errorf("non-text value: expected 400, got %d", rec.Code)
	}
	if rec := serve(t, srv, http.MethodPost, "/api/args/colour", `{"value":"red"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown argument: expected 400, got %d", rec.Code)
	}
}

func TestHandleAcquisition(t *testing.T) {
	tests := []struct {
		command string
		body    string
		want    call
	}{
		{"start", "", call{Op: "start"}},
		{"stop", "", call{Op: "stop"}},
		{"liveview", `{"frames":25}`, call{Op: "liveview", Value: "25"}},
		{"liveview", "", call{Op: "liveview", Value: "0"}},
		{"timeout", `{"seconds":2.5}`, call{Op: "timeout", Value: "2.5"}},
	}
	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			ctrl := &fakeController{}
			srv := NewServer(newTestStore(testDoc), ctrl, 0, nil, "", testLogger())

			rec := serve(t, srv, http.MethodPost, "/api/acquisition/"+tt.command, tt.body)
			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
			}
			calls := ctrl.Calls()
			if len(calls) != 1 || calls[0] != tt.want {
				t.Errorf("got %+v, want [%+v]", calls, tt.want)
			}
		})
	}
}

func TestHandleAcquisition_Errors(t *testing.T) {
	ctrl := &fakeController{}
	srv := NewServer(newTestStore(testDoc), ctrl, 0, nil, "", testLogger())

	if rec := serve(t, srv, http.MethodPost, "/api/acquisition/reboot", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown command: expected 404, got %d", rec.Code)
	}
	if rec := serve(t, srv, http.MethodPost, "/api/acquisition/liveview", `{"frames":"many"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("bad liveview body: expected 400, got %d", rec.Code)
	}
	if rec := serve(t, srv, http.MethodPost, "/api/acquisition/timeout", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("missing timeout body: expected 400, got %d", rec.Code)
	}

	ctrl.err = errors.New("adapter returned 400: Cannot trigger execution while acquisition is already running")
	if rec := serve(t, srv, http.MethodPost, "/api/acquisition/start", ""); rec.Code != http.StatusBadGateway {
		t.Errorf("adapter failure: expected 502, got %d", rec.Code)
	}
}

// --- SSE ---

type sseEvent struct {
	Resource string `json:"resource"`
	Polls    uint64 `json:"polls"`
}

func parseSSEEvents(body string) []sseEvent {
	var events []sseEvent
	for _, line := range strings.Split(body, "\n") {
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var ev sseEvent
		if err := json.Unmarshal([]byte(data), &ev); err == nil {
			events = append(events, ev)
		}
	}
	return events
}

func TestHandleSSE_BasicFlow(t *testing.T) {
	srv := NewServer(newTestStore(testDoc), &fakeController{}, 0, nil, "", testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/sse", nil)
	rec := httptest.NewRecorder()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	req = req.WithContext(ctx)

	srv.handleSSE(rec, req)

	events := parseSSEEvents(rec.Body.String())
	if len(events) != 1 {
		t.Fatalf("expected the current snapshot first, got %d events", len(events))
	}
	if events[0].Resource != "munir" || events[0].Polls != 1 {
		t.Errorf("unexpected initial event: %+v", events[0])
	}
}

func TestHandleSSE_StreamsUpdates(t *testing.T) {
	st := newTestStore(testDoc)
	srv := NewServer(st, &fakeController{}, 0, nil, "", testLogger())

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/sse")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("expected event stream, got %q", ct)
	}

	lines := make(chan string, 16)
	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := resp.Body.Read(buf)
			if n > 0 {
				for _, l := range strings.Split(string(buf[:n]), "\n") {
					if strings.HasPrefix(l, "data: ") {
						lines <- l
					}
				}
			}
			if err != nil {
				close(lines)
				return
			}
		}
	}()

	// initial event, then one per recorded poll
	select {
	case <-lines:
	case <-time.After(2 * time.Second):
		t.Fatal("no initial event")
	}

	st.RecordFailure(errors.New("down"), time.Unix(1001, 0))

	select {
	case l := <-lines:
		if !strings.Contains(l, `"error":"down"`) || !strings.Contains(l, `"polls":2`) {
			t.Errorf("unexpected update: %s", l)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no update received")
	}
}

func TestHandleSSE_ClientDisconnect(t *testing.T) {
	srv := NewServer(newTestStore(""), &fakeController{}, 0, nil, "", testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/sse", nil)
	rec := httptest.NewRecorder()

	ctx, cancel := context.WithCancel(context.Background())
	req = req.WithContext(ctx)

	done := make(chan struct{})
	go func() {
		srv.handleSSE(rec, req)
		close(done)
	}()

	// simulate client disconnect
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("handler did not exit after client disconnect")
	}
}

func TestHandleSSE_StoreClosed(t *testing.T) {
	st := newTestStore("")
	srv := NewServer(st, &fakeController{}, 0, nil, "", testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/sse", nil)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		srv.handleSSE(rec, req)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	st.Close()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("handler did not exit after the store closed")
	}
}

func TestHandleSSE_NoGoroutineLeaks(t *testing.T) {
	// allow existing goroutines to settle
	runtime.GC()
	time.Sleep(100 * time.Millisecond)
	before := runtime.NumGoroutine()

	srv := NewServer(newTestStore(testDoc), &fakeController{}, 0, nil, "", testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()

			req := httptest.NewRequest(http.MethodGet, "/api/sse", nil)
			req = req.WithContext(ctx)
			srv.handleSSE(httptest.NewRecorder(), req)
		}()
	}
	wg.Wait()

	runtime.GC()
	time.Sleep(200 * time.Millisecond)

	after := runtime.NumGoroutine()
	if after > before+2 {
		t.Errorf("possible goroutine leak: before=%d after=%d", before, after)
	}
}

// --- WebSocket ---

func TestHandleWebSocket(t *testing.T) {
	st := newTestStore(testDoc)
	srv := NewServer(st, &fakeController{}, 0, nil, "", testLogger())

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	var first struct {
		Resource string          `json:"resource"`
		Document json.RawMessage `json:"document"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read initial snapshot: %v", err)
	}
	if first.Resource != "munir" || string(first.Document) != testDoc {
		t.Errorf("unexpected initial snapshot: %s %s", first.Resource, first.Document)
	}

	// wait until the handler has subscribed before publishing
	time.Sleep(50 * time.Millisecond)
	st.RecordSuccess(jsonvalue.MustParse(`{"status":{"executing":true}}`), time.Unix(1002, 0))

	var next struct {
		Document json.RawMessage `json:"document"`
		Polls    uint64          `json:"polls"`
	}
	if err := conn.ReadJSON(&next); err != nil {
		t.Fatalf("read update: %v", err)
	}
	if next.Polls != 2 || string(next.Document) != `{"status":{"executing":true}}` {
		t.Errorf("unexpected update: polls=%d doc=%s", next.Polls, next.Document)
	}
}

func TestHandleWebSocket_ServerShutdown(t *testing.T) {
	srv := NewServer(newTestStore(testDoc), &fakeController{}, 0, nil, "", testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial("ws://127.0.0.1:"+strconv.Itoa(srv.Port())+"/ws", nil)
	if err != nil {
		cancel()
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	var snap map[string]any
	if err := conn.ReadJSON(&snap); err != nil {
		cancel()
		t.Fatalf("read: %v", err)
	}

	cancel()

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// --- Start ---

func TestStart_AvailablePort_ReturnsNil(t *testing.T) {
	srv := NewServer(newTestStore(""), &fakeController{}, 0, nil, "", testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Start(ctx); err != nil {
		t.Errorf("Start() on available port returned error: %v", err)
	}
	if srv.Port() == 0 {
		t.Error("expected the bound port to be reported")
	}
}

func TestStart_PortInUse_ReturnsError(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	defer func() { _ = ln.Close() }()

	port := ln.Addr().(*net.TCPAddr).Port
	srv := NewServer(newTestStore(""), &fakeController{}, port, nil, "", testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = srv.Start(ctx)
	if err == nil {
		t.Fatal("Start() on occupied port should return error")
	}
	if !strings.Contains(err.Error(), "failed to bind") {
		t.Errorf("expected bind error, got: %v", err)
	}
}

// --- Dashboard ---

func TestHandleDashboard_CustomTitle(t *testing.T) {
	assets := fstest.MapFS{"assets/index.html": {Data: []byte("<title>{{.Title}}</title><h1>{{.Title}}</h1>")}}
	srv := NewServer(newTestStore(""), &fakeController{}, 0, assets, "Munir Lab 2", testLogger())

	rec := serve(t, srv, http.MethodGet, "/", "")
	body := rec.Body.String()

	if !strings.Contains(body, "<title>Munir Lab 2</title>") {
		t.Errorf("expected title tag with custom title, got: %s", body)
	}
	if !strings.Contains(body, "<h1>Munir Lab 2</h1>") {
		t.Errorf("expected h1 with custom title, got: %s", body)
	}
}

func TestHandleDashboard_DefaultTitle(t *testing.T) {
	assets := fstest.MapFS{"assets/index.html": {Data: []byte("<title>{{.Title}}</title>")}}
	srv := NewServer(newTestStore(""), &fakeController{}, 0, assets, "", testLogger())

	rec := serve(t, srv, http.MethodGet, "/", "")
	if !strings.Contains(rec.Body.String(), "<title>Munir</title>") {
		t.Errorf("expected default title, got: %s", rec.Body.String())
	}
}

func TestHandleDashboard_NotFound(t *testing.T) {
	srv := NewServer(newTestStore(""), &fakeController{}, 0, fstest.MapFS{}, "", testLogger())

	rec := serve(t, srv, http.MethodGet, "/", "")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected status %d, got %d", http.StatusInternalServerError, rec.Code)
	}

	noAssets := NewServer(newTestStore(""), &fakeController{}, 0, nil, "", testLogger())
	if rec := serve(t, noAssets, http.MethodGet, "/", ""); rec.Code != http.StatusNotFound {
		t.Errorf("without assets the route is not registered, got %d", rec.Code)
	}
}

func TestHandleDashboard_TitleWithHTMLChars(t *testing.T) {
	assets := fstest.MapFS{"assets/index.html": {Data: []byte("<title>{{.Title}}</title>")}}
	srv := NewServer(newTestStore(""), &fakeController{}, 0, assets, "<script>alert('xss')</script> & co", testLogger())

	body := serve(t, srv, http.MethodGet, "/", "").Body.String()

	if strings.Contains(body, "<script>") {
		t.Error("title should be HTML-escaped to prevent XSS")
	}
	if !strings.Contains(body, "&lt;script&gt;") || !strings.Contains(body, "&amp; co") {
		t.Errorf("expected escaped HTML, got: %s", body)
	}
}
