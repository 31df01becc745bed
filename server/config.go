package server

import "time"

// Default lifetimes for state tokens minted by the orchestrator.
const (
	// DefaultStateTTL bounds how long an authorize-time state token stays
	// valid while the user is at the provider.
	DefaultStateTTL = 1 * time.Hour

	// DefaultSessionTTL is the validity of session artifacts minted at
	// callback time. With no revocation mechanism, expiry is the only way a
	// session ends; one year matches the provider's own token horizon.
	DefaultSessionTTL = 365 * 24 * time.Hour
)

// Config holds orchestrator configuration.
type Config struct {
	// StateTTL is how long authorize-time state tokens remain decodable.
	// Zero applies DefaultStateTTL; negative disables expiry entirely.
	StateTTL time.Duration

	// SessionTTL is the validity window of session artifacts.
	// Zero applies DefaultSessionTTL.
	SessionTTL time.Duration

	// WrapSessions controls how credentials are attached to the return URL
	// after a successful callback. When true (the default via
	// applyDefaults), the access and refresh tokens are re-encoded as two
	// independent long-lived state tokens under the "session" and "refresh"
	// query parameters. When false they are attached raw as "access_token"
	// and "refresh_token", exposed to browser history and referrers; a
	// documented trade-off for clients that cannot call the unwrap endpoint.
	WrapSessions *bool
}

// applyDefaults fills zero values with secure defaults.
func applyDefaults(cfg *Config) *Config {
	if cfg == nil {
		cfg = &Config{}
	}
	out := *cfg

	switch {
	case out.StateTTL == 0:
		out.StateTTL = DefaultStateTTL
	case out.StateTTL < 0:
		out.StateTTL = 0
	}
	if out.SessionTTL == 0 {
		out.SessionTTL = DefaultSessionTTL
	}
	if out.WrapSessions == nil {
		wrap := true
		out.WrapSessions = &wrap
	}
	return &out
}
