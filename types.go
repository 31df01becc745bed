package gateway

import (
	"time"

	"golang.org/x/oauth2"
)

// RefreshTokenRequest is the JSON body of POST /refresh-token.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// SessionTokenRequest is the JSON body of POST /token.
type SessionTokenRequest struct {
	Session string `json:"session"`
}

// SessionTokenResponse is the JSON response of POST /token: the raw provider
// token a session artifact wraps.
type SessionTokenResponse struct {
	Token string `json:"token"`
}

// TokenBundleResponse is the JSON shape of a provider token bundle, returned
// by POST /refresh-token.
type TokenBundleResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
}

// newTokenBundleResponse converts an oauth2 token into the wire shape.
func newTokenBundleResponse(token *oauth2.Token, now func() time.Time) *TokenBundleResponse {
	resp := &TokenBundleResponse{
		AccessToken:  token.AccessToken,
		TokenType:    token.TokenType,
		RefreshToken: token.RefreshToken,
	}
	if !token.Expiry.IsZero() {
		if remaining := int64(token.Expiry.Sub(now()).Seconds()); remaining > 0 {
			resp.ExpiresIn = remaining
		}
	}
	return resp
}
