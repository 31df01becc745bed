// Package instrumentation provides OpenTelemetry metrics and tracing for the
// OAuth gateway. By default it records against no-op providers, so wiring it
// costs nothing until real exporters are installed.
package instrumentation
