package server

import (
	"fmt"
	"strings"
)

// RedirectAllowlist validates candidate return URLs against a fixed set of
// URL prefixes. It gates which redirect targets the authorize endpoint will
// accept, and doubles as the set of origins permitted to call the gateway
// cross-origin. The list is loaded once at construction and never mutated.
//
// Membership is a case-sensitive prefix match, not an origin parse. That is a
// known weakness: "https://a.example.evil.com" passes against the entry
// "https://a.example". The behavior is kept for compatibility with deployed
// clients and is pinned by tests; harden the entries themselves (trailing
// slash, full origin) rather than this check.
type RedirectAllowlist struct {
	prefixes []string
}

// NewRedirectAllowlist creates an allowlist from the configured prefixes.
// The list must be non-empty; an empty allowlist would either admit nothing
// (breaking every client) or everything (an open redirect), so it is rejected
// outright.
func NewRedirectAllowlist(prefixes []string) (*RedirectAllowlist, error) {
	if len(prefixes) == 0 {
		return nil, fmt.Errorf("redirect allowlist must not be empty")
	}
	for i, p := range prefixes {
		if p == "" {
			return nil, fmt.Errorf("redirect allowlist entry %d is empty", i)
		}
	}

	copied := make([]string, len(prefixes))
	copy(copied, prefixes)
	return &RedirectAllowlist{prefixes: copied}, nil
}

// IsAllowed reports whether url starts with any configured prefix.
func (a *RedirectAllowlist) IsAllowed(url string) bool {
	for _, p := range a.prefixes {
		if strings.HasPrefix(url, p) {
			return true
		}
	}
	return false
}

// Origins returns a copy of the configured prefixes for use as the gateway's
// cross-origin allowlist.
func (a *RedirectAllowlist) Origins() []string {
	origins := make([]string, len(a.prefixes))
	copy(origins, a.prefixes)
	return origins
}
