// Package mock provides a mock implementation of the Provider interface for testing.
package mock

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/oauth2"

	"github.com/staticlabs/oauth-gateway/providers"
)

// Compile-time check that MockProvider implements the providers.Provider interface.
var _ providers.Provider = (*MockProvider)(nil)

// MockProvider is a configurable Provider for tests. Each method delegates to
// its corresponding Func field and records the call in CallCounts.
type MockProvider struct {
	// NameFunc is called when Name() is invoked
	NameFunc func() string

	// AuthorizationURLFunc is called when AuthorizationURL() is invoked
	AuthorizationURLFunc func(state string) string

	// ExchangeFunc is called when Exchange() is invoked
	ExchangeFunc func(ctx context.Context, code string) (*oauth2.Token, error)

	// RefreshFunc is called when Refresh() is invoked
	RefreshFunc func(ctx context.Context, refreshToken string) (*oauth2.Token, error)

	// HasInstallationFunc is called when HasInstallation() is invoked
	HasInstallationFunc func(ctx context.Context, accessToken string) (bool, error)

	// InstallURLFunc is called when InstallURL() is invoked
	InstallURLFunc func() string

	// CallCounts tracks how many times each method was called
	CallCounts map[string]int

	// mu protects CallCounts from concurrent access
	mu sync.RWMutex
}

// NewMockProvider creates a mock provider with default implementations:
// exchange succeeds with a fixed bundle and the user has one installation.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		CallCounts: make(map[string]int),
		NameFunc: func() string {
			return "mock"
		},
		AuthorizationURLFunc: func(state string) string {
			return fmt.Sprintf("https://mock.example.com/authorize?client_id=mock-client&state=%s", state)
		},
		ExchangeFunc: func(ctx context.Context, code string) (*oauth2.Token, error) {
			return &oauth2.Token{
				AccessToken:  "mock-access-token",
				TokenType:    "Bearer",
				RefreshToken: "mock-refresh-token",
			}, nil
		},
		RefreshFunc: func(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
			return &oauth2.Token{
				AccessToken:  "new-mock-access-token",
				TokenType:    "Bearer",
				RefreshToken: "new-mock-refresh-token",
			}, nil
		},
		HasInstallationFunc: func(ctx context.Context, accessToken string) (bool, error) {
			return true, nil
		},
		InstallURLFunc: func() string {
			return "https://mock.example.com/apps/mock-app/installations/new"
		},
	}
}

func (m *MockProvider) recordCall(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CallCounts == nil {
		m.CallCounts = make(map[string]int)
	}
	m.CallCounts[method]++
}

// Calls returns how many times the named method was invoked.
func (m *MockProvider) Calls(method string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.CallCounts[method]
}

// Name implements providers.Provider.
func (m *MockProvider) Name() string {
	m.recordCall("Name")
	return m.NameFunc()
}

// AuthorizationURL implements providers.Provider.
func (m *MockProvider) AuthorizationURL(state string) string {
	m.recordCall("AuthorizationURL")
	return m.AuthorizationURLFunc(state)
}

// Exchange implements providers.Provider.
func (m *MockProvider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	m.recordCall("Exchange")
	return m.ExchangeFunc(ctx, code)
}

// Refresh implements providers.Provider.
func (m *MockProvider) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	m.recordCall("Refresh")
	return m.RefreshFunc(ctx, refreshToken)
}

// HasInstallation implements providers.Provider.
func (m *MockProvider) HasInstallation(ctx context.Context, accessToken string) (bool, error) {
	m.recordCall("HasInstallation")
	return m.HasInstallationFunc(ctx, accessToken)
}

// InstallURL implements providers.Provider.
func (m *MockProvider) InstallURL() string {
	m.recordCall("InstallURL")
	return m.InstallURLFunc()
}
