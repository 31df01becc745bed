package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/staticlabs/oauth-gateway/providers/mock"
	"github.com/staticlabs/oauth-gateway/security"
)

func newTestServer(t *testing.T, provider *mock.MockProvider, cfg *Config) *Server {
	t.Helper()

	codec, err := security.NewStateCodec("test-secret")
	if err != nil {
		t.Fatalf("NewStateCodec() error = %v", err)
	}
	allowlist, err := NewRedirectAllowlist([]string{"https://site.example"})
	if err != nil {
		t.Fatalf("NewRedirectAllowlist() error = %v", err)
	}

	srv, err := New(provider, codec, allowlist, cfg, slog.Default())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return srv
}

// mintState runs StartAuthorization and extracts the state value the mock
// provider embedded in its authorize URL.
func mintState(t *testing.T, srv *Server, returnURL string) string {
	t.Helper()

	authURL, err := srv.StartAuthorization(returnURL)
	if err != nil {
		t.Fatalf("StartAuthorization() error = %v", err)
	}
	parsed, err := url.Parse(authURL)
	if err != nil {
		t.Fatalf("url.Parse(%q) error = %v", authURL, err)
	}
	state := parsed.Query().Get("state")
	if state == "" {
		t.Fatal("authorize URL carries no state parameter")
	}
	return state
}

func TestStartAuthorization(t *testing.T) {
	tests := []struct {
		name      string
		returnURL string
		wantErr   error
	}{
		{
			name:      "allowlisted return URL",
			returnURL: "https://site.example/dashboard",
		},
		{
			name:      "missing return URL",
			returnURL: "",
			wantErr:   ErrMissingReturnURL,
		},
		{
			name:      "disallowed return URL",
			returnURL: "https://attacker.example/dashboard",
			wantErr:   ErrReturnURLNotAllowed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := mock.NewMockProvider()
			srv := newTestServer(t, provider, nil)

			authURL, err := srv.StartAuthorization(tt.returnURL)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("StartAuthorization() error = %v, want %v", err, tt.wantErr)
				}
				if provider.Calls("AuthorizationURL") != 0 {
					t.Error("provider authorize URL was built despite rejection")
				}
				return
			}

			if err != nil {
				t.Fatalf("StartAuthorization() error = %v", err)
			}
			if !strings.HasPrefix(authURL, "https://mock.example.com/authorize") {
				t.Errorf("StartAuthorization() = %q, want provider authorize URL", authURL)
			}
		})
	}
}

func TestStartAuthorizationStateRoundTrips(t *testing.T) {
	provider := mock.NewMockProvider()
	srv := newTestServer(t, provider, nil)

	state := mintState(t, srv, "https://site.example/dashboard")

	got, err := srv.codec.Decode(state)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got != "https://site.example/dashboard" {
		t.Errorf("state payload = %q, want the return URL", got)
	}
}

func TestHandleCallbackReturningUser(t *testing.T) {
	provider := mock.NewMockProvider()
	srv := newTestServer(t, provider, nil)
	state := mintState(t, srv, "https://site.example/dashboard")

	redirect, err := srv.HandleCallback(context.Background(), "good-code", state, "")
	if err != nil {
		t.Fatalf("HandleCallback() error = %v", err)
	}

	parsed, err := url.Parse(redirect)
	if err != nil {
		t.Fatalf("url.Parse(%q) error = %v", redirect, err)
	}
	if parsed.Host != "site.example" || parsed.Path != "/dashboard" {
		t.Errorf("redirect = %q, want the return URL", redirect)
	}

	session := parsed.Query().Get("session")
	if session == "" {
		t.Fatal("redirect carries no session parameter")
	}
	if access, err := srv.UnwrapSession(session); err != nil || access != "mock-access-token" {
		t.Errorf("UnwrapSession(session) = %q, %v; want mock-access-token, nil", access, err)
	}

	refresh := parsed.Query().Get("refresh")
	if refresh == "" {
		t.Fatal("redirect carries no refresh parameter")
	}
	if rt, err := srv.UnwrapSession(refresh); err != nil || rt != "mock-refresh-token" {
		t.Errorf("UnwrapSession(refresh) = %q, %v; want mock-refresh-token, nil", rt, err)
	}

	if provider.Calls("InstallURL") != 0 {
		t.Error("install URL was consulted for a returning user")
	}
}

func TestHandleCallbackDirectTokens(t *testing.T) {
	provider := mock.NewMockProvider()
	wrap := false
	srv := newTestServer(t, provider, &Config{WrapSessions: &wrap})
	state := mintState(t, srv, "https://site.example/dashboard")

	redirect, err := srv.HandleCallback(context.Background(), "good-code", state, "")
	if err != nil {
		t.Fatalf("HandleCallback() error = %v", err)
	}

	parsed, _ := url.Parse(redirect)
	if got := parsed.Query().Get("access_token"); got != "mock-access-token" {
		t.Errorf("access_token = %q, want mock-access-token", got)
	}
	if got := parsed.Query().Get("refresh_token"); got != "mock-refresh-token" {
		t.Errorf("refresh_token = %q, want mock-refresh-token", got)
	}
}

func TestHandleCallbackNewUser(t *testing.T) {
	provider := mock.NewMockProvider()
	provider.HasInstallationFunc = func(ctx context.Context, accessToken string) (bool, error) {
		return false, nil
	}
	srv := newTestServer(t, provider, nil)
	state := mintState(t, srv, "https://site.example/dashboard")

	redirect, err := srv.HandleCallback(context.Background(), "good-code", state, "")
	if err != nil {
		t.Fatalf("HandleCallback() error = %v", err)
	}

	parsed, err := url.Parse(redirect)
	if err != nil {
		t.Fatalf("url.Parse(%q) error = %v", redirect, err)
	}
	if !strings.HasPrefix(redirect, "https://mock.example.com/apps/mock-app/installations/new") {
		t.Errorf("redirect = %q, want the install URL", redirect)
	}

	// The state value must be forwarded exactly as received.
	if got := parsed.Query().Get("state"); got != state {
		t.Errorf("forwarded state = %q, want the original state", got)
	}
}

func TestHandleCallbackProviderError(t *testing.T) {
	provider := mock.NewMockProvider()
	srv := newTestServer(t, provider, nil)
	state := mintState(t, srv, "https://site.example/dashboard")

	redirect, err := srv.HandleCallback(context.Background(), "", state, "access_denied")
	if err != nil {
		t.Fatalf("HandleCallback() error = %v", err)
	}

	parsed, _ := url.Parse(redirect)
	if got := parsed.Query().Get("error"); got != "access_denied" {
		t.Errorf("error param = %q, want access_denied", got)
	}
	if provider.Calls("Exchange") != 0 {
		t.Error("exchange was attempted after a provider error")
	}
	if provider.Calls("HasInstallation") != 0 {
		t.Error("installation check was attempted after a provider error")
	}
}

func TestHandleCallbackBadState(t *testing.T) {
	provider := mock.NewMockProvider()
	srv := newTestServer(t, provider, nil)

	tests := []struct {
		name    string
		state   string
		wantErr error
	}{
		{
			name:    "garbage state",
			state:   "!!!",
			wantErr: security.ErrStateMalformed,
		},
		{
			name: "state minted under another secret",
			state: func() string {
				other, err := security.NewStateCodec("other-secret")
				if err != nil {
					t.Fatalf("NewStateCodec() error = %v", err)
				}
				s, err := other.Encode("https://site.example/dashboard", time.Time{})
				if err != nil {
					t.Fatalf("Encode() error = %v", err)
				}
				return s
			}(),
			wantErr: security.ErrStateTampered,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := srv.HandleCallback(context.Background(), "code", tt.state, "")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("HandleCallback() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if provider.Calls("Exchange") != 0 {
		t.Error("exchange was attempted with an invalid state")
	}
}

func TestHandleCallbackExpiredState(t *testing.T) {
	provider := mock.NewMockProvider()
	srv := newTestServer(t, provider, nil)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	srv.SetNow(func() time.Time { return now })
	srv.codec.SetNow(func() time.Time { return now })

	state := mintState(t, srv, "https://site.example/dashboard")

	now = base.Add(DefaultStateTTL + time.Minute)
	_, err := srv.HandleCallback(context.Background(), "code", state, "")
	if !errors.Is(err, security.ErrStateExpired) {
		t.Errorf("HandleCallback() error = %v, want ErrStateExpired", err)
	}
}

func TestHandleCallbackReValidatesAllowlist(t *testing.T) {
	provider := mock.NewMockProvider()
	srv := newTestServer(t, provider, nil)
	state := mintState(t, srv, "https://site.example/dashboard")

	// Simulate an allowlist change between the two legs of the flow.
	shrunk, err := NewRedirectAllowlist([]string{"https://other.example"})
	if err != nil {
		t.Fatalf("NewRedirectAllowlist() error = %v", err)
	}
	srv.allowlist = shrunk

	_, err = srv.HandleCallback(context.Background(), "code", state, "")
	if !errors.Is(err, ErrReturnURLNotAllowed) {
		t.Errorf("HandleCallback() error = %v, want ErrReturnURLNotAllowed", err)
	}
	if provider.Calls("Exchange") != 0 {
		t.Error("exchange was attempted for a no-longer-allowlisted return URL")
	}
}

func TestHandleCallbackUpstreamFailures(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(p *mock.MockProvider)
		wantOp  string
		checked bool
	}{
		{
			name: "exchange failure",
			setup: func(p *mock.MockProvider) {
				p.ExchangeFunc = func(ctx context.Context, code string) (*oauth2.Token, error) {
					return nil, fmt.Errorf("provider returned status 502")
				}
			},
			wantOp: "token exchange",
		},
		{
			name: "installation check failure",
			setup: func(p *mock.MockProvider) {
				p.HasInstallationFunc = func(ctx context.Context, accessToken string) (bool, error) {
					return false, fmt.Errorf("installations request returned status 500")
				}
			},
			wantOp:  "installation check",
			checked: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := mock.NewMockProvider()
			tt.setup(provider)
			srv := newTestServer(t, provider, nil)
			state := mintState(t, srv, "https://site.example/dashboard")

			_, err := srv.HandleCallback(context.Background(), "code", state, "")
			var upstream *UpstreamError
			if !errors.As(err, &upstream) {
				t.Fatalf("HandleCallback() error = %v, want *UpstreamError", err)
			}
			if upstream.Op != tt.wantOp {
				t.Errorf("UpstreamError.Op = %q, want %q", upstream.Op, tt.wantOp)
			}

			// Strict ordering: the installation check only runs after a
			// successful exchange.
			wantChecks := 0
			if tt.checked {
				wantChecks = 1
			}
			if got := provider.Calls("HasInstallation"); got != wantChecks {
				t.Errorf("HasInstallation called %d times, want %d", got, wantChecks)
			}
		})
	}
}

func TestRefresh(t *testing.T) {
	provider := mock.NewMockProvider()
	srv := newTestServer(t, provider, nil)

	token, err := srv.Refresh(context.Background(), "old-refresh-token")
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if token.AccessToken != "new-mock-access-token" {
		t.Errorf("Refresh() access token = %q, want new-mock-access-token", token.AccessToken)
	}

	if _, err := srv.Refresh(context.Background(), ""); err == nil {
		t.Error("Refresh() with empty token succeeded, want error")
	}

	provider.RefreshFunc = func(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
		return nil, fmt.Errorf("provider returned status 401")
	}
	_, err = srv.Refresh(context.Background(), "revoked")
	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		t.Errorf("Refresh() error = %v, want *UpstreamError", err)
	}
}

func TestUnwrapSession(t *testing.T) {
	provider := mock.NewMockProvider()
	srv := newTestServer(t, provider, nil)

	session, err := srv.codec.Encode("ghu_rawProviderToken", srv.now().Add(time.Hour))
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	got, err := srv.UnwrapSession(session)
	if err != nil {
		t.Fatalf("UnwrapSession() error = %v", err)
	}
	if got != "ghu_rawProviderToken" {
		t.Errorf("UnwrapSession() = %q, want ghu_rawProviderToken", got)
	}

	if _, err := srv.UnwrapSession(""); err == nil {
		t.Error("UnwrapSession() with empty session succeeded, want error")
	}
	if _, err := srv.UnwrapSession("garbage"); !errors.Is(err, security.ErrStateMalformed) {
		t.Errorf("UnwrapSession(garbage) error = %v, want ErrStateMalformed", err)
	}
}
