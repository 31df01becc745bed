// Package providers defines the interface to the external OAuth/App identity
// service the gateway authenticates against, and implements it for GitHub
// Apps. All provider calls are server-to-server; the gateway never exposes
// the client secret past this boundary.
package providers

import (
	"context"

	"golang.org/x/oauth2"
)

// Provider is the gateway's view of the external identity service.
// Token bundles are standard oauth2.Token values.
type Provider interface {
	// Name returns the provider name (e.g., "github").
	Name() string

	// AuthorizationURL builds the provider authorize URL carrying the client
	// identifier and the given state token. No callback URL is included: the
	// provider redirects to its preconfigured callback, which removes a
	// request-controlled open-redirect vector at the provider boundary.
	AuthorizationURL(state string) string

	// Exchange trades an authorization code for a token bundle.
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)

	// Refresh trades a refresh token for a fresh token bundle.
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)

	// HasInstallation reports whether the principal behind accessToken has
	// at least one installation of the App. This is distinct from the OAuth
	// grant itself: a user can authorize without ever installing.
	HasInstallation(ctx context.Context, accessToken string) (bool, error)

	// InstallURL returns the page where a new user installs the App.
	InstallURL() string
}
