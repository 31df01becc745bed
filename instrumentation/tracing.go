package instrumentation

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Common span attribute keys.
//
// Never record actual credential values (access tokens, refresh tokens,
// authorization codes, the state secret) in traces or metrics; only metadata
// such as providers, endpoints and outcome flags.
const (
	// OAuth flow attributes
	AttrProvider  = "oauth.provider"
	AttrReturnURL = "oauth.return_url"
	AttrInstalled = "oauth.installed"
	AttrError     = "oauth.error"
	AttrStateKind = "oauth.state.error_kind"
	AttrSessioned = "oauth.session.wrapped"

	// Proxy attributes
	AttrProxyTargetHost = "proxy.target_host"
	AttrProxyMethod     = "proxy.method"

	// HTTP attributes (in addition to standard semantic conventions)
	AttrHTTPEndpoint   = "http.endpoint"
	AttrHTTPMethod     = "http.method"
	AttrHTTPStatusCode = "http.status_code"
)

// RecordError records an error on a span with proper status codes (nil-safe).
func RecordError(span trace.Span, err error) {
	if span != nil && err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess marks a span as successful (nil-safe).
func SetSpanSuccess(span trace.Span) {
	if span != nil {
		span.SetStatus(codes.Ok, "")
	}
}

// SetSpanError sets an error status on a span (nil-safe).
func SetSpanError(span trace.Span, message string) {
	if span != nil {
		span.SetStatus(codes.Error, message)
	}
}

// SetSpanAttributes sets attributes on a span (nil-safe).
func SetSpanAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	if span != nil {
		span.SetAttributes(attrs...)
	}
}
