// Package server provides the HTTP server for the Munir control panel.
//
// This package is internal to munirpanel and handles all HTTP concerns:
//
//   - Panel serving: the embedded HTML page at "/"
//   - Read API: "/api/state" (snapshot JSON) and "/api/status" (indented text)
//   - Live updates: Server-Sent Events at "/api/sse" and a WebSocket at "/ws"
//   - Write API: immediate puts, debounced edits and acquisition commands
//
// API paths are relative to the panel scope. For a frame-processor adapter
// the scope is one subsystem tree, so "args/file_name" addresses
// "subsystems/<name>/args/file_name" in the document.
//   - Operations: "/healthz" and Prometheus metrics at "/metrics"
//
// The server supports graceful shutdown via context cancellation, with a
// 5-second timeout for in-flight requests.
//
// Users of the munirpanel library should not need to interact with this
// package directly. The server is started by [munirpanel.Panel.Start].
package server
