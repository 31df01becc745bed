package security

import (
	"net/http"
	"strings"
)

// SetSecurityHeaders sets defensive headers on gateway-generated responses
// (error bodies, token responses). Proxied upstream responses do not pass
// through here; the forwarder applies its own header policy.
func SetSecurityHeaders(w http.ResponseWriter, serverURL string) {
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
	w.Header().Set("Referrer-Policy", "no-referrer")

	if strings.HasPrefix(serverURL, "https://") {
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	}

	// OAuth responses carry credentials or error detail; never cache them.
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
	w.Header().Set("Pragma", "no-cache")
}
