package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all metric instruments for the gateway.
type Metrics struct {
	// HTTP layer
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram

	// OAuth flow
	AuthorizationStarted metric.Int64Counter
	CallbackProcessed    metric.Int64Counter
	TokenRefreshed       metric.Int64Counter
	SessionUnwrapped     metric.Int64Counter
	StateDecodeFailed    metric.Int64Counter

	// Provider
	ProviderAPICallsTotal metric.Int64Counter
	ProviderAPIDuration   metric.Float64Histogram

	// Proxy
	ProxyForwardsTotal metric.Int64Counter
	ProxyForwardErrors metric.Int64Counter
}

// newMetrics creates and registers all metric instruments.
func newMetrics(inst *Instrumentation) (*Metrics, error) {
	m := &Metrics{}
	httpMeter := inst.Meter("http")
	serverMeter := inst.Meter("server")
	providerMeter := inst.Meter("provider")
	proxyMeter := inst.Meter("proxy")

	var err error
	m.HTTPRequestsTotal, err = httpMeter.Int64Counter(
		"gateway.http.requests.total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http.requests.total counter: %w", err)
	}

	m.HTTPRequestDuration, err = httpMeter.Float64Histogram(
		"gateway.http.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http.request.duration histogram: %w", err)
	}

	m.AuthorizationStarted, err = serverMeter.Int64Counter(
		"gateway.authorization.started",
		metric.WithDescription("Number of authorization flows started"),
		metric.WithUnit("{flow}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create authorization.started counter: %w", err)
	}

	m.CallbackProcessed, err = serverMeter.Int64Counter(
		"gateway.callback.processed",
		metric.WithDescription("Number of provider callbacks processed"),
		metric.WithUnit("{callback}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create callback.processed counter: %w", err)
	}

	m.TokenRefreshed, err = serverMeter.Int64Counter(
		"gateway.token.refreshed",
		metric.WithDescription("Number of tokens refreshed"),
		metric.WithUnit("{refresh}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token.refreshed counter: %w", err)
	}

	m.SessionUnwrapped, err = serverMeter.Int64Counter(
		"gateway.session.unwrapped",
		metric.WithDescription("Number of session artifacts unwrapped"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session.unwrapped counter: %w", err)
	}

	m.StateDecodeFailed, err = serverMeter.Int64Counter(
		"gateway.state.decode.failed",
		metric.WithDescription("Number of state tokens rejected at decode time"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create state.decode.failed counter: %w", err)
	}

	m.ProviderAPICallsTotal, err = providerMeter.Int64Counter(
		"gateway.provider.api.calls.total",
		metric.WithDescription("Total number of provider API calls"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider.api.calls.total counter: %w", err)
	}

	m.ProviderAPIDuration, err = providerMeter.Float64Histogram(
		"gateway.provider.api.duration",
		metric.WithDescription("Provider API call duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider.api.duration histogram: %w", err)
	}

	m.ProxyForwardsTotal, err = proxyMeter.Int64Counter(
		"gateway.proxy.forwards.total",
		metric.WithDescription("Total number of proxied requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create proxy.forwards.total counter: %w", err)
	}

	m.ProxyForwardErrors, err = proxyMeter.Int64Counter(
		"gateway.proxy.forward.errors",
		metric.WithDescription("Number of proxied requests that failed before relay"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create proxy.forward.errors counter: %w", err)
	}

	return m, nil
}

// Helper methods for common metric recording patterns

// RecordHTTPRequest records an HTTP request with its outcome.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, endpoint string, statusCode int, durationMs float64) {
	attrs := []attribute.KeyValue{
		attribute.String("method", method),
		attribute.String("endpoint", endpoint),
		attribute.Int("status", statusCode),
	}

	m.HTTPRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.HTTPRequestDuration.Record(ctx, durationMs, metric.WithAttributes(attribute.String("endpoint", endpoint)))
}

// RecordAuthorizationStarted records an authorization flow start.
func (m *Metrics) RecordAuthorizationStarted(ctx context.Context, provider string) {
	m.AuthorizationStarted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
	))
}

// RecordCallbackProcessed records a provider callback, noting whether the
// user already had an installation.
func (m *Metrics) RecordCallbackProcessed(ctx context.Context, provider string, success, installed bool) {
	m.CallbackProcessed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.Bool("success", success),
		attribute.Bool("installed", installed),
	))
}

// RecordTokenRefresh records a token refresh attempt.
func (m *Metrics) RecordTokenRefresh(ctx context.Context, provider string, success bool) {
	m.TokenRefreshed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.Bool("success", success),
	))
}

// RecordSessionUnwrap records a session unwrap attempt.
func (m *Metrics) RecordSessionUnwrap(ctx context.Context, success bool) {
	m.SessionUnwrapped.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("success", success),
	))
}

// RecordStateDecodeFailure records a rejected state token by kind
// ("malformed", "tampered", "expired").
func (m *Metrics) RecordStateDecodeFailure(ctx context.Context, kind string) {
	m.StateDecodeFailed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
	))
}

// RecordProviderAPICall records an upstream provider call.
func (m *Metrics) RecordProviderAPICall(ctx context.Context, provider, operation string, durationMs float64, err error) {
	m.ProviderAPICallsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("operation", operation),
		attribute.Bool("error", err != nil),
	))
	m.ProviderAPIDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("operation", operation),
	))
}

// RecordProxyForward records a proxied request.
func (m *Metrics) RecordProxyForward(ctx context.Context, method string) {
	m.ProxyForwardsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
	))
}

// RecordProxyForwardError records a proxied request that failed before any
// bytes were relayed ("target" or "network").
func (m *Metrics) RecordProxyForwardError(ctx context.Context, kind string) {
	m.ProxyForwardErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
	))
}
