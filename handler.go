package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/staticlabs/oauth-gateway/instrumentation"
	"github.com/staticlabs/oauth-gateway/proxy"
	"github.com/staticlabs/oauth-gateway/security"
	"github.com/staticlabs/oauth-gateway/server"
)

// defaultCORSMaxAge is the preflight cache duration in seconds.
const defaultCORSMaxAge = 3600

// Handler is a thin HTTP adapter over the orchestrator and the forwarder.
// It parses requests, maps flow errors onto the gateway error taxonomy and
// records observability data; all decisions live below it.
type Handler struct {
	server    *server.Server
	forwarder *proxy.Forwarder
	logger    *slog.Logger
	issuer    string
	origins   []string

	inst   *instrumentation.Instrumentation
	tracer trace.Tracer
	now    func() time.Time
}

// NewHandler creates the HTTP adapter. Most callers should use New, which
// also wires the underlying components.
func NewHandler(srv *server.Server, forwarder *proxy.Forwarder, cfg *Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		server:    srv,
		forwarder: forwarder,
		logger:    logger,
		issuer:    cfg.Issuer,
		origins:   srv.Allowlist().Origins(),
		inst:      cfg.Instrumentation,
		now:       time.Now,
	}
	if h.inst != nil {
		h.tracer = h.inst.Tracer("http")
	}
	return h
}

// RegisterRoutes registers all gateway endpoints on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/authorize", h.ServeAuthorize)
	mux.HandleFunc("/authorized", h.ServeAuthorized)
	mux.HandleFunc("/refresh-token", h.ServeRefreshToken)
	mux.HandleFunc("/token", h.ServeSessionToken)
	mux.HandleFunc("/proxy", h.ServeProxy)
}

// ServeAuthorize handles GET /authorize: validate the caller-supplied return
// URL, mint a state token and bounce the browser to the provider.
func (h *Handler) ServeAuthorize(w http.ResponseWriter, r *http.Request) {
	startTime := h.now()

	var span trace.Span
	ctx := r.Context()
	if h.tracer != nil {
		ctx, span = h.tracer.Start(ctx, "gateway.http.authorize")
		defer span.End()
		r = r.WithContext(ctx)
	}

	h.setCORSHeaders(w, r)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodGet {
		h.recordHTTPMetrics("authorize", r.Method, http.StatusMethodNotAllowed, startTime)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	authURL, err := h.server.StartAuthorization(r.URL.Query().Get("redirect_uri"))
	if err != nil {
		gerr := h.mapError(err)
		h.recordHTTPMetrics("authorize", http.MethodGet, gerr.Status, startTime)
		instrumentation.RecordError(span, err)
		h.writeError(w, gerr)
		return
	}

	if h.inst != nil {
		h.inst.Metrics().RecordAuthorizationStarted(ctx, h.server.Provider().Name())
	}
	h.recordHTTPMetrics("authorize", http.MethodGet, http.StatusFound, startTime)
	instrumentation.SetSpanSuccess(span)

	http.Redirect(w, r, authURL, http.StatusFound)
}

// ServeAuthorized handles GET /authorized, the provider callback: decode
// state, run the exchange and installation check, and bounce the browser to
// either the return URL or the install page.
func (h *Handler) ServeAuthorized(w http.ResponseWriter, r *http.Request) {
	startTime := h.now()

	var span trace.Span
	ctx := r.Context()
	if h.tracer != nil {
		ctx, span = h.tracer.Start(ctx, "gateway.http.authorized")
		defer span.End()
		r = r.WithContext(ctx)
	}

	h.setCORSHeaders(w, r)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodGet {
		h.recordHTTPMetrics("authorized", r.Method, http.StatusMethodNotAllowed, startTime)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query()
	code := query.Get("code")
	state := query.Get("state")
	providerErr := query.Get("error")

	if state == "" || (code == "" && providerErr == "") {
		gerr := ErrValidation("code and state are required")
		h.recordHTTPMetrics("authorized", http.MethodGet, gerr.Status, startTime)
		instrumentation.SetSpanError(span, "missing code or state")
		h.writeError(w, gerr)
		return
	}

	redirectURL, err := h.server.HandleCallback(ctx, code, state, providerErr)
	if err != nil {
		gerr := h.mapError(err)
		h.recordCallbackFailure(ctx, err)
		if h.inst != nil {
			h.inst.Metrics().RecordCallbackProcessed(ctx, h.server.Provider().Name(), false, false)
		}
		h.recordHTTPMetrics("authorized", http.MethodGet, gerr.Status, startTime)
		instrumentation.RecordError(span, err)
		h.writeError(w, gerr)
		return
	}

	if h.inst != nil {
		installed := !strings.HasPrefix(redirectURL, h.server.Provider().InstallURL())
		h.inst.Metrics().RecordCallbackProcessed(ctx, h.server.Provider().Name(), true, installed)
		instrumentation.SetSpanAttributes(span, attribute.Bool(instrumentation.AttrInstalled, installed))
	}
	h.recordHTTPMetrics("authorized", http.MethodGet, http.StatusFound, startTime)
	instrumentation.SetSpanSuccess(span)

	http.Redirect(w, r, redirectURL, http.StatusFound)
}

// ServeRefreshToken handles POST /refresh-token: trade a refresh token for a
// fresh bundle, returned directly in the response body.
func (h *Handler) ServeRefreshToken(w http.ResponseWriter, r *http.Request) {
	startTime := h.now()

	var span trace.Span
	ctx := r.Context()
	if h.tracer != nil {
		ctx, span = h.tracer.Start(ctx, "gateway.http.refresh_token")
		defer span.End()
		r = r.WithContext(ctx)
	}

	h.setCORSHeaders(w, r)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		h.recordHTTPMetrics("refresh-token", r.Method, http.StatusMethodNotAllowed, startTime)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req RefreshTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		gerr := ErrValidation("failed to parse request body")
		h.recordHTTPMetrics("refresh-token", http.MethodPost, gerr.Status, startTime)
		h.writeError(w, gerr)
		return
	}
	if req.RefreshToken == "" {
		gerr := ErrValidation("refreshToken is required")
		h.recordHTTPMetrics("refresh-token", http.MethodPost, gerr.Status, startTime)
		h.writeError(w, gerr)
		return
	}

	token, err := h.server.Refresh(ctx, req.RefreshToken)
	if h.inst != nil {
		h.inst.Metrics().RecordTokenRefresh(ctx, h.server.Provider().Name(), err == nil)
	}
	if err != nil {
		gerr := h.mapError(err)
		h.recordHTTPMetrics("refresh-token", http.MethodPost, gerr.Status, startTime)
		instrumentation.RecordError(span, err)
		h.writeError(w, gerr)
		return
	}

	h.recordHTTPMetrics("refresh-token", http.MethodPost, http.StatusOK, startTime)
	instrumentation.SetSpanSuccess(span)
	h.writeJSON(w, http.StatusOK, newTokenBundleResponse(token, h.now))
}

// ServeSessionToken handles POST /token: unwrap a session artifact back into
// the raw provider token.
func (h *Handler) ServeSessionToken(w http.ResponseWriter, r *http.Request) {
	startTime := h.now()

	var span trace.Span
	ctx := r.Context()
	if h.tracer != nil {
		ctx, span = h.tracer.Start(ctx, "gateway.http.session_token")
		defer span.End()
		r = r.WithContext(ctx)
	}

	h.setCORSHeaders(w, r)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		h.recordHTTPMetrics("token", r.Method, http.StatusMethodNotAllowed, startTime)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req SessionTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		gerr := ErrValidation("failed to parse request body")
		h.recordHTTPMetrics("token", http.MethodPost, gerr.Status, startTime)
		h.writeError(w, gerr)
		return
	}
	if req.Session == "" {
		gerr := ErrValidation("session is required")
		h.recordHTTPMetrics("token", http.MethodPost, gerr.Status, startTime)
		h.writeError(w, gerr)
		return
	}

	token, err := h.server.UnwrapSession(req.Session)
	if h.inst != nil {
		h.inst.Metrics().RecordSessionUnwrap(ctx, err == nil)
	}
	if err != nil {
		gerr := h.mapError(err)
		h.recordCallbackFailure(ctx, err)
		h.recordHTTPMetrics("token", http.MethodPost, gerr.Status, startTime)
		instrumentation.RecordError(span, err)
		h.writeError(w, gerr)
		return
	}

	h.recordHTTPMetrics("token", http.MethodPost, http.StatusOK, startTime)
	instrumentation.SetSpanSuccess(span)
	h.writeJSON(w, http.StatusOK, &SessionTokenResponse{Token: token})
}

// ServeProxy handles ANY /proxy: relay the request to the caller-chosen
// target and stream back the sanitized response.
func (h *Handler) ServeProxy(w http.ResponseWriter, r *http.Request) {
	startTime := h.now()

	var span trace.Span
	ctx := r.Context()
	if h.tracer != nil {
		ctx, span = h.tracer.Start(ctx, "gateway.http.proxy")
		defer span.End()
		r = r.WithContext(ctx)
	}

	h.setCORSHeaders(w, r)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if h.inst != nil {
		h.inst.Metrics().RecordProxyForward(ctx, r.Method)
		instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrProxyMethod, r.Method))
	}

	err := h.forwarder.Forward(w, r)
	if err == nil {
		h.recordHTTPMetrics("proxy", r.Method, http.StatusOK, startTime)
		instrumentation.SetSpanSuccess(span)
		return
	}

	gerr := h.mapError(err)
	if h.inst != nil {
		kind := "network"
		if errors.Is(err, proxy.ErrInvalidTarget) {
			kind = "target"
		}
		h.inst.Metrics().RecordProxyForwardError(ctx, kind)
	}
	h.recordHTTPMetrics("proxy", r.Method, gerr.Status, startTime)
	instrumentation.RecordError(span, err)
	h.writeError(w, gerr)
}

// mapError folds flow and forwarder errors onto the closed taxonomy.
// Anything unrecognized is treated as an upstream failure without detail so
// no internal state leaks through an unexpected error path.
func (h *Handler) mapError(err error) *Error {
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr
	}

	switch {
	case errors.Is(err, server.ErrMissingReturnURL),
		errors.Is(err, server.ErrReturnURLNotAllowed):
		return ErrValidation(err.Error())
	case errors.Is(err, security.ErrStateMalformed):
		return ErrStateMalformed(err.Error())
	case errors.Is(err, security.ErrStateTampered):
		return ErrStateTampered(err.Error())
	case errors.Is(err, security.ErrStateExpired):
		return ErrStateExpired(err.Error())
	case errors.Is(err, proxy.ErrInvalidTarget):
		return ErrProxyTarget(err.Error())
	}

	var netErr *proxy.NetworkError
	if errors.As(err, &netErr) {
		return ErrProxyNetwork(netErr.Error())
	}

	var upstream *server.UpstreamError
	if errors.As(err, &upstream) {
		// Upstream errors name the operation and may carry the upstream
		// status; provider wrappers keep secrets out of them.
		return ErrUpstream(upstream.Error())
	}

	h.logger.Error("Unmapped gateway error", "error", err)
	return NewError(ErrorKindUpstream, "internal error", http.StatusInternalServerError)
}

// recordCallbackFailure attributes state decode failures to their kind.
func (h *Handler) recordCallbackFailure(ctx context.Context, err error) {
	if h.inst == nil {
		return
	}
	switch {
	case errors.Is(err, security.ErrStateMalformed):
		h.inst.Metrics().RecordStateDecodeFailure(ctx, "malformed")
	case errors.Is(err, security.ErrStateTampered):
		h.inst.Metrics().RecordStateDecodeFailure(ctx, "tampered")
	case errors.Is(err, security.ErrStateExpired):
		h.inst.Metrics().RecordStateDecodeFailure(ctx, "expired")
	}
}

// writeError writes a structured error response.
func (h *Handler) writeError(w http.ResponseWriter, gerr *Error) {
	security.SetSecurityHeaders(w, h.issuer)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(gerr.Status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             gerr.Kind,
		"error_description": gerr.Description,
	})
}

// writeJSON writes a JSON response body.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	security.SetSecurityHeaders(w, h.issuer)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to encode response body", "error", err)
	}
}

// setCORSHeaders sets CORS headers when the Origin prefix-matches the
// redirect allowlist, which doubles as the cross-origin allowlist. The
// specific origin is echoed back rather than "*".
func (h *Handler) setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}

	allowed := false
	for _, p := range h.origins {
		if strings.HasPrefix(origin, p) {
			allowed = true
			break
		}
	}
	if !allowed {
		h.logger.Debug("CORS request from disallowed origin", "origin", origin)
		return
	}

	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Add("Vary", "Origin")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
	w.Header().Set("Access-Control-Max-Age", fmt.Sprintf("%d", defaultCORSMaxAge))
}

// recordHTTPMetrics records the outcome of one HTTP request.
func (h *Handler) recordHTTPMetrics(endpoint, method string, status int, startTime time.Time) {
	if h.inst == nil {
		return
	}

	duration := h.now().Sub(startTime).Seconds() * 1000
	h.inst.Metrics().RecordHTTPRequest(context.Background(), method, endpoint, status, duration)
}
