package proxy

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// ErrInvalidTarget indicates the url parameter is missing or does not parse
// as an absolute URL.
var ErrInvalidTarget = errors.New("target url must be an absolute URL")

// NetworkError wraps a transport failure while forwarding. Terminal for the
// request; the forwarder never retries.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("forwarding failed: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Request headers dropped before forwarding. Host is set by the transport
// for the target; Origin would make the call look like a foreign-origin
// request to the upstream.
var strippedRequestHeaders = []string{"Origin", "Host"}

// Response headers dropped before relaying. The gateway's own cross-origin
// and framing policy is authoritative, not the target's.
var strippedResponseHeaders = []string{
	"Content-Security-Policy",
	"X-Frame-Options",
	"Access-Control-Allow-Origin",
}

// Forwarder relays a single HTTP request to a caller-chosen absolute URL and
// writes back the sanitized upstream response. It is independent of the
// OAuth flow and holds no state beyond its HTTP client.
//
// Redirects from the target are followed by the client itself, so the
// calling browser never observes intermediate hops. There is no egress
// allowlist: any absolute URL is reachable, and access control is the
// responsibility of whatever sits in front of the gateway.
type Forwarder struct {
	client *http.Client
	logger *slog.Logger
}

// NewForwarder creates a forwarder. A nil client gets a default with a
// 30-second timeout; a nil logger defaults to slog.Default().
func NewForwarder(client *http.Client, logger *slog.Logger) *Forwarder {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Forwarder{
		client: client,
		logger: logger,
	}
}

// Forward relays r to the target named by its "url" query parameter and
// writes the upstream response to w. The effective method is the "method"
// query parameter when present, else the inbound method; the override exists
// because some clients cannot issue non-standard verbs natively.
//
// Returns ErrInvalidTarget or a *NetworkError before anything is written to
// w, so the caller can still produce a structured error response.
func (f *Forwarder) Forward(w http.ResponseWriter, r *http.Request) error {
	target := r.URL.Query().Get("url")
	if target == "" {
		return fmt.Errorf("%w: url parameter is required", ErrInvalidTarget)
	}
	parsed, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}
	if !parsed.IsAbs() || parsed.Host == "" {
		return fmt.Errorf("%w: got %q", ErrInvalidTarget, target)
	}

	method := r.URL.Query().Get("method")
	if method == "" {
		method = r.Method
	}

	// Body presence is governed by the effective method, not the inbound
	// one: a PROPFIND override forwards its body even though the browser
	// sent it as POST, and a GET never forwards one.
	var body io.Reader
	if method != http.MethodGet && method != http.MethodHead {
		body = r.Body
	}

	out, err := http.NewRequestWithContext(r.Context(), method, parsed.String(), body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}
	out.Header = r.Header.Clone()
	for _, h := range strippedRequestHeaders {
		out.Header.Del(h)
	}
	if body != nil && r.ContentLength >= 0 {
		out.ContentLength = r.ContentLength
	}

	resp, err := f.client.Do(out)
	if err != nil {
		return &NetworkError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	header := w.Header()
	for k, vals := range resp.Header {
		if isStrippedResponseHeader(k) {
			continue
		}
		for _, v := range vals {
			header.Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)

	if _, err := io.Copy(w, resp.Body); err != nil {
		// Headers and status are already on the wire; just note the break.
		f.logger.Warn("Upstream body relay interrupted", "target_host", parsed.Host, "error", err)
	}
	return nil
}

func isStrippedResponseHeader(name string) bool {
	for _, h := range strippedResponseHeaders {
		if http.CanonicalHeaderKey(name) == h {
			return true
		}
	}
	return false
}
