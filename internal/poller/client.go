package poller

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/buger/jsonparser"

	"github.com/jpalmerr/munirpanel/jsonvalue"
)

const maxResponseBodySize = 1 << 20 // 1MB

// a panel talks to one adapter, so the pool is small
const (
	defaultMaxIdleConns        = 10
	defaultMaxIdleConnsPerHost = 4
	defaultMaxConnsPerHost     = 4
	defaultIdleConnTimeout     = 60 * time.Second
)

// ErrTransport marks failures that happened before an HTTP response was
// received: DNS, connection refused, timeouts, body read errors.
var ErrTransport = errors.New("transport failure")

// StatusError is returned when the adapter answers with a non-2xx status.
type StatusError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Message is the adapter's "error" field, if the body carried one.
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("adapter returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("adapter returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// Classify maps an error from this package to a short label used in logs
// and metrics: "ok", "transport", "status", "malformed" or "error".
func Classify(err error) string {
	var statusErr *StatusError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrTransport):
		return "transport"
	case errors.As(err, &statusErr):
		return "status"
	case errors.Is(err, jsonvalue.ErrMalformed):
		return "malformed"
	default:
		return "error"
	}
}

// Response holds the result of an HTTP request made by [Client].
type Response struct {
	// Body contains the HTTP response body, limited to 1MB.
	Body []byte

	// StatusCode is the HTTP status code. Zero if no response was received.
	StatusCode int

	// Latency is the total time taken for the request.
	Latency time.Duration

	// Error wraps [ErrTransport] when the request failed before a response
	// was read. A non-2xx status is not an error at this level.
	Error error
}

// Document interprets the response as an adapter document.
//
// Transport errors are returned as-is, a non-2xx status yields a
// [*StatusError], and a body that is not valid JSON yields an error wrapping
// [jsonvalue.ErrMalformed].
func (r Response) Document() (jsonvalue.Value, error) {
	if r.Error != nil {
		return nil, r.Error
	}
	if r.StatusCode < 200 || r.StatusCode > 299 {
		return nil, &StatusError{StatusCode: r.StatusCode, Message: errorMessage(r.Body)}
	}
	doc, err := jsonvalue.Parse(r.Body)
	if err != nil {
		return nil, fmt.Errorf("decode adapter response: %w", err)
	}
	return doc, nil
}

// Err reports the outcome of a write: nil for any 2xx status.
func (r Response) Err() error {
	if r.Error != nil {
		return r.Error
	}
	if r.StatusCode < 200 || r.StatusCode > 299 {
		return &StatusError{StatusCode: r.StatusCode, Message: errorMessage(r.Body)}
	}
	return nil
}

// errorMessage extracts the {"error": "..."} field odin-style adapters put in
// failure responses.
func errorMessage(body []byte) string {
	msg, err := jsonparser.GetString(body, "error")
	if err != nil {
		return ""
	}
	return msg
}

// Client is an HTTP client wrapper for talking to an adapter.
//
// Client uses per-request timeouts via context rather than a global timeout,
// so reads and writes can carry different deadlines. Response bodies are
// limited to 1MB.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a new adapter [Client] with a small keep-alive pool.
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{
			// no default timeout - we use per-request timeouts via context
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        defaultMaxIdleConns,
				MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
				MaxConnsPerHost:     defaultMaxConnsPerHost,
				IdleConnTimeout:     defaultIdleConnTimeout,
			},
		},
	}
}

// Fetch performs an HTTP request and returns a structured [Response].
//
// If method is empty, GET is used. A non-nil body is sent as JSON. The
// timeout is applied via context cancellation.
//
// Fetch always returns a Response; errors are captured in the Error field
// rather than returned separately.
func (c *Client) Fetch(ctx context.Context, method, url string, body []byte, headers map[string]string, timeout time.Duration) Response {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()

	if method == "" {
		method = http.MethodGet
	}

	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return Response{
			Latency: time.Since(start),
			Error:   fmt.Errorf("%w: create request: %v", ErrTransport, err),
		}
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{
			Latency: time.Since(start),
			Error:   fmt.Errorf("%w: %v", ErrTransport, err),
		}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return Response{
			StatusCode: resp.StatusCode,
			Latency:    time.Since(start),
			Error:      fmt.Errorf("%w: read response body: %v", ErrTransport, err),
		}
	}

	return Response{
		Body:       respBody,
		StatusCode: resp.StatusCode,
		Latency:    time.Since(start),
	}
}

// Close closes all idle connections in the client's connection pool.
// Safe to call multiple times; the client remains usable afterwards.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	if transport, ok := c.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}
