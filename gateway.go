// Package gateway implements an OAuth gateway for static sites: encrypted
// state tokens carry all per-flow data across the provider redirect, so the
// gateway holds no sessions and scales as identical replicas. It also exposes
// a transparent HTTP forwarder for targets that static pages cannot reach
// directly.
//
// The root package is the HTTP surface; the flow logic lives in the server
// package, the state codec in security, and the forwarder in proxy.
package gateway

import (
	"fmt"

	"github.com/staticlabs/oauth-gateway/providers"
	"github.com/staticlabs/oauth-gateway/proxy"
	"github.com/staticlabs/oauth-gateway/security"
	"github.com/staticlabs/oauth-gateway/server"
)

// New wires a complete gateway: state codec, redirect allowlist,
// orchestrator and forwarder, exposed through a Handler ready to register on
// a mux.
func New(provider providers.Provider, cfg *Config) (*Handler, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	codec, err := security.NewStateCodec(cfg.StateSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create state codec: %w", err)
	}

	allowlist, err := server.NewRedirectAllowlist(cfg.AllowedRedirects)
	if err != nil {
		return nil, fmt.Errorf("failed to create redirect allowlist: %w", err)
	}

	srv, err := server.New(provider, codec, allowlist, cfg.Flow, cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create server: %w", err)
	}

	forwarder := proxy.NewForwarder(cfg.ProxyHTTPClient, cfg.Logger)

	return NewHandler(srv, forwarder, cfg), nil
}
