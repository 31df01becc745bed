package gateway

import (
	"log/slog"
	"net/http"

	"github.com/staticlabs/oauth-gateway/instrumentation"
	"github.com/staticlabs/oauth-gateway/server"
)

// Config holds the gateway configuration. All values are read once at
// construction; there is no runtime mutation.
type Config struct {
	// Issuer is the gateway's public base URL. Used to decide whether
	// HSTS headers apply to gateway-generated responses.
	Issuer string

	// StateSecret is the process-wide shared secret the state codec derives
	// its encryption key from. Required. Server-side only; it must never
	// appear in responses or logs.
	StateSecret string

	// AllowedRedirects is the ordered, non-empty list of URL prefixes that
	// return URLs are validated against. The same list is the set of
	// origins permitted to call the gateway cross-origin.
	AllowedRedirects []string

	// Flow tunes state token and session artifact lifetimes and how
	// credentials are attached to the return URL. Nil applies defaults.
	Flow *server.Config

	// ProxyHTTPClient is the client the forwarder relays requests with.
	// Nil gets a default with a 30-second timeout.
	ProxyHTTPClient *http.Client

	// Logger for structured logging (optional; defaults to slog.Default()).
	Logger *slog.Logger

	// Instrumentation enables metrics and tracing (optional).
	Instrumentation *instrumentation.Instrumentation
}
