package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	oauthgithub "golang.org/x/oauth2/github"

	"github.com/staticlabs/oauth-gateway/providers"
)

// Compile-time check that Provider implements the providers.Provider interface.
var _ providers.Provider = (*Provider)(nil)

// providerName is the name returned by Provider.Name().
const providerName = "github"

// Default GitHub endpoints. Overridable through Config for tests.
const (
	defaultAPIBaseURL      = "https://api.github.com"
	installURLFormat       = "https://github.com/apps/%s/installations/new"
	installationsReadLimit = 1 << 20 // cap on installation listing bodies
)

// Provider implements providers.Provider for a GitHub App.
//
// GitHub Apps differ from plain OAuth Apps in two ways the gateway depends
// on: the authorize redirect always goes to the App's preconfigured callback
// (so none is sent), and an OAuth grant does not imply the App is installed
// anywhere; installation is checked separately after token exchange.
type Provider struct {
	oauth          *oauth2.Config
	appSlug        string
	apiBaseURL     string
	installURL     string
	httpClient     *http.Client
	requestTimeout time.Duration
}

// Config holds GitHub App OAuth configuration.
type Config struct {
	// ClientID is the GitHub App client ID.
	ClientID string

	// ClientSecret is the GitHub App client secret.
	ClientSecret string

	// AppSlug is the App's URL slug, used to build the installation page URL.
	AppSlug string

	// Endpoint overrides the GitHub OAuth endpoints (tests only).
	Endpoint *oauth2.Endpoint

	// APIBaseURL overrides the GitHub REST API base URL (tests only).
	APIBaseURL string

	// InstallURL overrides the App installation page URL (tests only).
	InstallURL string

	// HTTPClient is an optional custom HTTP client.
	HTTPClient *http.Client

	// RequestTimeout is the timeout for GitHub API calls (default: 30s).
	RequestTimeout time.Duration
}

// NewProvider creates a new GitHub App provider.
func NewProvider(cfg *Config) (*Provider, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("client ID is required")
	}
	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("client secret is required")
	}
	if cfg.AppSlug == "" && cfg.InstallURL == "" {
		return nil, fmt.Errorf("app slug is required")
	}

	endpoint := oauthgithub.Endpoint
	if cfg.Endpoint != nil {
		endpoint = *cfg.Endpoint
	}

	apiBaseURL := cfg.APIBaseURL
	if apiBaseURL == "" {
		apiBaseURL = defaultAPIBaseURL
	}

	installURL := cfg.InstallURL
	if installURL == "" {
		installURL = fmt.Sprintf(installURLFormat, cfg.AppSlug)
	}

	requestTimeout := cfg.RequestTimeout
	if requestTimeout == 0 {
		requestTimeout = 30 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout}
	}

	return &Provider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			// RedirectURL is deliberately left empty: the App's
			// preconfigured callback is authoritative.
		},
		appSlug:        cfg.AppSlug,
		apiBaseURL:     apiBaseURL,
		installURL:     installURL,
		httpClient:     httpClient,
		requestTimeout: requestTimeout,
	}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return providerName
}

// AuthorizationURL generates the GitHub authorize URL for the given state.
func (p *Provider) AuthorizationURL(state string) string {
	return p.oauth.AuthCodeURL(state)
}

// Exchange trades an authorization code for a token bundle.
func (p *Provider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, p.requestTimeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)

	token, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		// oauth2 errors never carry the client secret; safe to wrap as-is.
		return nil, fmt.Errorf("github code exchange failed: %w", err)
	}
	return token, nil
}

// Refresh trades a refresh token for a fresh bundle. GitHub Apps issue
// expiring user tokens with refresh tokens when that option is enabled on
// the App.
func (p *Provider) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, p.requestTimeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)

	token, err := p.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("github token refresh failed: %w", err)
	}
	return token, nil
}

// installationsResponse is the subset of the GitHub listing the gateway
// cares about.
type installationsResponse struct {
	TotalCount int `json:"total_count"`
}

// HasInstallation lists the user's installations of the App and reports
// whether there is at least one.
func (p *Provider) HasInstallation(ctx context.Context, accessToken string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, p.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiBaseURL+"/user/installations", nil)
	if err != nil {
		return false, fmt.Errorf("failed to create installations request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("installations request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("installations request returned status %d", resp.StatusCode)
	}

	var listing installationsResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, installationsReadLimit)).Decode(&listing); err != nil {
		return false, fmt.Errorf("failed to decode installations response: %w", err)
	}

	return listing.TotalCount > 0, nil
}

// InstallURL returns the App installation page.
func (p *Provider) InstallURL() string {
	return p.installURL
}
