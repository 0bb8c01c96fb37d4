package kis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"kis-trading-bot/internal/logging"
)

// Access tokens live 24 hours. Refresh a little early so in-flight
// requests never carry a token that expires mid-call.
const tokenRefreshMargin = 5 * time.Minute

// TokenManager owns the OAuth access token for the broker API.
// Token() is safe for concurrent use; only one goroutine refreshes
// at a time and the rest wait for the fresh token.
type TokenManager struct {
	mu         sync.Mutex
	appKey     string
	appSecret  string
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger

	token     string
	expiresAt time.Time
}

// NewTokenManager creates a token manager for the given credentials
func NewTokenManager(baseURL, appKey, appSecret string, timeout time.Duration) *TokenManager {
	return &TokenManager{
		appKey:     appKey,
		appSecret:  appSecret,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.WithComponent("kis-token"),
	}
}

// Token returns a valid access token, refreshing it when expired or
// close to expiry.
func (m *TokenManager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token != "" && time.Now().Before(m.expiresAt.Add(-tokenRefreshMargin)) {
		return m.token, nil
	}
	if err := m.refresh(ctx); err != nil {
		return "", err
	}
	return m.token, nil
}

// Invalidate drops the cached token so the next call fetches a new one.
// Used when the broker rejects a request as unauthorized.
func (m *TokenManager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	m.expiresAt = time.Time{}
}

func (m *TokenManager) refresh(ctx context.Context) error {
	payload, err := json.Marshal(map[string]string{
		"grant_type": "client_credentials",
		"appkey":     m.appKey,
		"appsecret":  m.appSecret,
	})
	if err != nil {
		return fmt.Errorf("encoding token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		m.baseURL+"/oauth2/tokenP", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("requesting token: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("token request failed: status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("parsing token response: %w", err)
	}
	if result.AccessToken == "" {
		return fmt.Errorf("token response missing access_token")
	}

	m.token = result.AccessToken
	if result.ExpiresIn <= 0 {
		result.ExpiresIn = 86400
	}
	m.expiresAt = time.Now().Add(time.Duration(result.ExpiresIn) * time.Second)
	m.logger.Info("access token refreshed", "expires_at", m.expiresAt.Format(time.RFC3339))
	return nil
}
