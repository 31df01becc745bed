package server

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/staticlabs/oauth-gateway/providers"
	"github.com/staticlabs/oauth-gateway/security"
)

// Server drives the OAuth flow for static-site visitors. It is fully
// stateless: the only values it holds across requests are the state codec
// (wrapping the shared secret), the redirect allowlist and the provider
// configuration, all read-only for the process lifetime. Every piece of
// per-flow state travels inside the state token handed to the browser, so
// any number of replicas can serve any leg of the flow.
type Server struct {
	provider  providers.Provider
	codec     *security.StateCodec
	allowlist *RedirectAllowlist
	logger    *slog.Logger
	config    *Config

	// now is the time source for token expiries; overridable in tests.
	now func() time.Time
}

// New creates a new orchestrator.
func New(
	provider providers.Provider,
	codec *security.StateCodec,
	allowlist *RedirectAllowlist,
	config *Config,
	logger *slog.Logger,
) (*Server, error) {
	if provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if codec == nil {
		return nil, fmt.Errorf("state codec is required")
	}
	if allowlist == nil {
		return nil, fmt.Errorf("redirect allowlist is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		provider:  provider,
		codec:     codec,
		allowlist: allowlist,
		logger:    logger,
		config:    applyDefaults(config),
		now:       time.Now,
	}, nil
}

// Allowlist exposes the redirect allowlist, which doubles as the gateway's
// cross-origin allowlist.
func (s *Server) Allowlist() *RedirectAllowlist {
	return s.allowlist
}

// Provider exposes the configured identity provider.
func (s *Server) Provider() providers.Provider {
	return s.provider
}

// SetNow overrides the server's time source. Intended for tests.
func (s *Server) SetNow(now func() time.Time) {
	s.now = now
}
