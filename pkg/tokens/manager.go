// Package tokens manages per-integration OAuth credentials, refreshing them
// against the provider's token endpoint when they approach expiry.
package tokens

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	shared "github.com/trackstack/server/pkg"
	"github.com/trackstack/server/pkg/config"
	httputil "github.com/trackstack/server/pkg/infrastructure/http"
	"github.com/trackstack/server/pkg/types"
)

// DefaultExpiryMargin is how close to expiry a token may get before it is
// refreshed proactively. Generous enough to absorb provider clock skew.
const DefaultExpiryMargin = 10 * time.Minute

// Manager resolves a valid access token for an integration. It is safe for
// concurrent use; racing refreshes converge through the store's conditional
// token write rather than in-process locking, since handlers may run in
// separate instances.
type Manager struct {
	DB        shared.Database
	Providers map[string]config.ProviderConfig
	Margin    time.Duration

	// HTTPClient is swappable for tests. Defaults to http.DefaultClient.
	HTTPClient *http.Client
	// Now is swappable for tests. Defaults to time.Now.
	Now func() time.Time
}

func NewManager(db shared.Database, providers map[string]config.ProviderConfig) *Manager {
	return &Manager{
		DB:        db,
		Providers: providers,
		Margin:    DefaultExpiryMargin,
	}
}

func (m *Manager) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func (m *Manager) httpClient() *http.Client {
	if m.HTTPClient != nil {
		return m.HTTPClient
	}
	return http.DefaultClient
}

func (m *Manager) fresh(integ *types.Integration) bool {
	return integ.Expiry.IsZero() || m.now().Add(m.Margin).Before(integ.Expiry)
}

// EnsureValidAccessToken returns an access token usable right now for the
// given integration, refreshing and persisting credentials if needed.
//
// The sequence under concurrency: a caller that finds the token near expiry
// re-reads the integration first, adopting a token another invocation has
// already refreshed. Only a caller that still sees an expiring token calls
// the provider, and the store applies the result only when its expiry is
// strictly newer than what is stored. A caller whose write loses that race
// re-reads and adopts the winner's credentials.
func (m *Manager) EnsureValidAccessToken(ctx context.Context, integ *types.Integration) (string, error) {
	if integ.AccessToken != "" && m.fresh(integ) {
		return integ.AccessToken, nil
	}

	// Re-read before refreshing: a concurrent invocation may have already
	// done the work.
	current, err := m.DB.GetIntegration(ctx, integ.Provider, integ.UserID)
	if err != nil {
		return "", fmt.Errorf("re-read integration: %w", err)
	}
	if current.AccessToken != "" && m.fresh(current) {
		*integ = *current
		return current.AccessToken, nil
	}

	if current.RefreshToken == "" {
		return "", fmt.Errorf("missing refresh token for %s:%s", integ.Provider, integ.UserID)
	}

	tok, err := m.refresh(ctx, current.Provider, current.RefreshToken)
	if err != nil {
		return "", err
	}

	applied, err := m.DB.UpdateIntegrationTokens(ctx, current.Provider, current.UserID, *tok)
	if err != nil {
		return "", fmt.Errorf("persist refreshed tokens: %w", err)
	}
	if !applied {
		// Lost the race to a fresher refresh; adopt the stored winner.
		current, err = m.DB.GetIntegration(ctx, integ.Provider, integ.UserID)
		if err != nil {
			return "", fmt.Errorf("re-read integration after lost refresh race: %w", err)
		}
		*integ = *current
		return current.AccessToken, nil
	}

	integ.AccessToken = tok.AccessToken
	integ.RefreshToken = tok.RefreshToken
	integ.Expiry = tok.Expiry
	return tok.AccessToken, nil
}

// refresh performs the HTTP exchange against the provider's token endpoint.
func (m *Manager) refresh(ctx context.Context, provider types.Provider, refreshToken string) (*types.TokenUpdate, error) {
	pc, ok := m.Providers[string(provider)]
	if !ok || pc.TokenURL == "" {
		return nil, fmt.Errorf("no token endpoint configured for provider %s", provider)
	}
	if pc.ClientID == "" || pc.ClientSecret == "" {
		return nil, fmt.Errorf("missing client credentials for provider %s", provider)
	}

	data := url.Values{}
	data.Set("client_id", pc.ClientID)
	data.Set("client_secret", pc.ClientSecret)
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, "POST", pc.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("refresh request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := httputil.ParseErrorResponse(resp); err != nil {
		return nil, fmt.Errorf("token refresh: %w", err)
	}

	var result struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
		ExpiresAt    int64  `json:"expires_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode refresh response: %w", err)
	}
	if result.AccessToken == "" {
		return nil, fmt.Errorf("provider %s returned no access token", provider)
	}

	newExpiry := m.now().Add(time.Duration(result.ExpiresIn) * time.Second)
	if result.ExpiresAt != 0 {
		newExpiry = time.Unix(result.ExpiresAt, 0)
	}

	// Preserve the original refresh token if the provider didn't rotate it.
	newRefreshToken := result.RefreshToken
	if newRefreshToken == "" {
		newRefreshToken = refreshToken
	}

	return &types.TokenUpdate{
		AccessToken:  result.AccessToken,
		RefreshToken: newRefreshToken,
		Expiry:       newExpiry,
	}, nil
}
