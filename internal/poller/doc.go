// Package poller provides the HTTP plumbing that keeps a panel in sync with
// an adapter resource.
//
// The main components are:
//
//   - [Client]: HTTP client wrapper with per-request timeouts and size limits
//   - [Scheduler]: Polls one resource at a fixed interval, strictly serialized
//   - [Result]: Outcome of a single poll
//   - [Target]: The resource to poll
//
// Failures are classified into transport ([ErrTransport]), protocol
// ([*StatusError]) and payload ([jsonvalue.ErrMalformed]) errors. The
// scheduler reports all three the same way and keeps polling.
//
// Users of the munirpanel library should not need to interact with this
// package directly. Sessions are created through munirpanel.Connect.
package poller
