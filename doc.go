// Package munirpanel provides a poll client and control panel for the Munir
// data-acquisition adapter.
//
// The package is SDK-first: a [Session] mirrors one adapter resource by
// polling its JSON document and writes fields back with partial updates,
// and a [Panel] serves that session as a web control panel. Both are
// configured with the functional options pattern.
//
// # Quick Start
//
// Serve the panel for an adapter with graceful shutdown:
//
//	p, _ := munirpanel.New("http://localhost:8888/api/0.1")
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	p.Start(ctx) // blocks until context is cancelled
//
// # Sessions
//
// A session can also be used on its own:
//
//	sess, err := munirpanel.Connect(ctx, "munir", "http://localhost:8888/api/0.1",
//	    munirpanel.WithInterval(time.Second),
//	    munirpanel.WithQuietPeriod(3*time.Second),
//	)
//	if err != nil {
//	    return err
//	}
//	defer sess.Close()
//
//	fmt.Print(sess.Snapshot().Text("status"))
//
//	// immediate write of a partial document
//	err = <-sess.Put(ctx, "args", map[string]any{"num_frames": 500})
//
//	// debounced write: only the last value is sent, after the quiet period
//	sess.Edit("args/file_name", "run1.h5")
//
// A failed poll never clears the document: [Snapshot.Err] is set and the
// last good document stays in place until the adapter answers again.
//
// # Architecture
//
// munirpanel consists of several packages:
//
//   - jsonvalue: order-preserving JSON values and slash paths
//   - statusfmt: renders a JSON tree as indented status text
//   - munir: typed commands and status for the Munir parameter tree
//   - config: YAML configuration for the standalone binary
//   - internal/poller: HTTP fetches and the serialized poll loop
//   - internal/store: latest snapshot with pub/sub for live updates
//   - internal/debounce: per-path edit coalescing
//   - internal/server: HTTP server with REST API, SSE and WebSocket
//   - internal/mockadapter: in-memory Munir adapter for tests and local runs
//   - dashboard: embedded web UI assets
//
// The internal packages are not part of the public API and may change
// without notice.
package munirpanel
