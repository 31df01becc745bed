package server

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"golang.org/x/oauth2"
)

// Validation failures surfaced to the HTTP layer as 400-class errors.
var (
	// ErrMissingReturnURL indicates the authorize request carried no
	// redirect_uri parameter.
	ErrMissingReturnURL = errors.New("redirect_uri is required")

	// ErrReturnURLNotAllowed indicates the return URL failed the allowlist,
	// either at authorize time or when re-checked at callback time.
	ErrReturnURLNotAllowed = errors.New("redirect_uri is not in the allowlist")
)

// UpstreamError wraps a failed provider call. The wrapped error may carry
// the upstream status code but never the client secret: provider
// implementations only report statuses and transport failures.
type UpstreamError struct {
	// Op names the failed upstream operation ("token exchange",
	// "installation check", "token refresh").
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Query parameter names used when redirecting back to the return URL.
const (
	paramError        = "error"
	paramState        = "state"
	paramSession      = "session"
	paramRefresh      = "refresh"
	paramAccessToken  = "access_token"
	paramRefreshToken = "refresh_token"
)

// StartAuthorization validates the caller-supplied return URL, mints a state
// token carrying it, and returns the provider authorize URL to redirect the
// browser to. On rejection no token is minted and no redirect is issued.
func (s *Server) StartAuthorization(returnURL string) (string, error) {
	if returnURL == "" {
		return "", ErrMissingReturnURL
	}
	if !s.allowlist.IsAllowed(returnURL) {
		s.logger.Warn("Rejected authorization for disallowed return URL", "return_url", returnURL)
		return "", ErrReturnURLNotAllowed
	}

	var expiresAt time.Time
	if s.config.StateTTL > 0 {
		expiresAt = s.now().Add(s.config.StateTTL)
	}

	state, err := s.codec.Encode(returnURL, expiresAt)
	if err != nil {
		return "", fmt.Errorf("failed to mint state token: %w", err)
	}

	s.logger.Info("Authorization started", "provider", s.provider.Name())
	return s.provider.AuthorizationURL(state), nil
}

// HandleCallback processes the provider redirect and returns the URL the
// browser should be sent to next.
//
// The state token is decoded back to the return URL and re-checked against
// the allowlist: the list may have changed since the token was minted, and a
// still-valid token must not become an open redirect. If the provider
// reported an error (the user declined), the flow short-circuits straight
// back to the return URL with the error attached and no exchange is
// attempted. Otherwise the code is exchanged and the installation listing is
// consulted, strictly in that order; a returning user (>=1 installation) is
// sent to the return URL with credentials attached, a new user is sent to
// the App installation page with the original state forwarded unchanged so
// the flow can resume after installation.
func (s *Server) HandleCallback(ctx context.Context, code, state, providerErr string) (string, error) {
	returnURL, err := s.codec.Decode(state)
	if err != nil {
		s.logger.Warn("Callback state rejected", "error", err)
		return "", err
	}

	if !s.allowlist.IsAllowed(returnURL) {
		s.logger.Warn("Callback return URL no longer allowlisted", "return_url", returnURL)
		return "", ErrReturnURLNotAllowed
	}

	if providerErr != "" {
		s.logger.Info("Provider reported error, skipping exchange", "error", providerErr)
		return withParams(returnURL, map[string]string{paramError: providerErr})
	}

	token, err := s.provider.Exchange(ctx, code)
	if err != nil {
		return "", &UpstreamError{Op: "token exchange", Err: err}
	}

	installed, err := s.provider.HasInstallation(ctx, token.AccessToken)
	if err != nil {
		return "", &UpstreamError{Op: "installation check", Err: err}
	}

	if !installed {
		s.logger.Info("No installation found, redirecting to install page", "provider", s.provider.Name())
		// The state value is forwarded exactly as received so the
		// post-installation flow still knows the original return URL.
		return withParams(s.provider.InstallURL(), map[string]string{paramState: state})
	}

	params, err := s.credentialParams(token)
	if err != nil {
		return "", err
	}

	s.logger.Info("Callback completed for returning user", "provider", s.provider.Name())
	return withParams(returnURL, params)
}

// credentialParams builds the query parameters that carry the token bundle
// back to the return URL.
func (s *Server) credentialParams(token *oauth2.Token) (map[string]string, error) {
	if !*s.config.WrapSessions {
		params := map[string]string{paramAccessToken: token.AccessToken}
		if token.RefreshToken != "" {
			params[paramRefreshToken] = token.RefreshToken
		}
		return params, nil
	}

	expiresAt := s.now().Add(s.config.SessionTTL)

	session, err := s.codec.Encode(token.AccessToken, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("failed to mint session token: %w", err)
	}
	params := map[string]string{paramSession: session}

	if token.RefreshToken != "" {
		refresh, err := s.codec.Encode(token.RefreshToken, expiresAt)
		if err != nil {
			return nil, fmt.Errorf("failed to mint refresh session token: %w", err)
		}
		params[paramRefresh] = refresh
	}
	return params, nil
}

// Refresh trades a refresh token for a new bundle. This path serves an
// already-running client, so the result is returned directly rather than
// through a redirect.
func (s *Server) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, errors.New("refreshToken is required")
	}

	token, err := s.provider.Refresh(ctx, refreshToken)
	if err != nil {
		return nil, &UpstreamError{Op: "token refresh", Err: err}
	}

	s.logger.Info("Token refreshed", "provider", s.provider.Name())
	return token, nil
}

// UnwrapSession decodes a previously issued session artifact back into the
// raw provider token it wraps.
func (s *Server) UnwrapSession(session string) (string, error) {
	if session == "" {
		return "", errors.New("session is required")
	}
	return s.codec.Decode(session)
}

// withParams attaches query parameters to target, preserving any the URL
// already carries.
func withParams(target string, params map[string]string) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("invalid redirect target: %w", err)
	}

	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
