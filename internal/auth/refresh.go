package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"runtrack/internal/models"
)

// refreshBuffer is how close to expiry a token may get before it is renewed.
const refreshBuffer = 60 * time.Second

// TokenSource hands out valid bearer tokens for the run backend, refreshing
// them through POST /accessToken and persisting rotated tokens via onRefresh.
// It implements oauth2.TokenSource so it can back an *http.Client directly.
type TokenSource struct {
	baseURL    string
	httpClient *http.Client
	onRefresh  func(accessToken, refreshToken string, expiresAt time.Time) error

	mu      sync.Mutex
	session models.Session
}

// NewTokenSource creates a TokenSource seeded with a stored session. onRefresh
// is called with every renewed token pair so it can be persisted.
func NewTokenSource(baseURL string, session models.Session, onRefresh func(accessToken, refreshToken string, expiresAt time.Time) error) *TokenSource {
	return &TokenSource{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		onRefresh:  onRefresh,
		session:    session,
	}
}

// Token returns a valid token, refreshing if necessary
func (ts *TokenSource) Token() (*oauth2.Token, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if time.Until(ts.session.ExpiresAt) > refreshBuffer {
		return ts.currentLocked(), nil
	}

	payload, err := json.Marshal(struct {
		RefreshToken string `json:"refreshToken"`
		UserID       string `json:"userId"`
	}{RefreshToken: ts.session.RefreshToken, UserID: ts.session.UserID})
	if err != nil {
		return nil, fmt.Errorf("encoding refresh request: %w", err)
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost,
		ts.baseURL+"/accessToken", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := ts.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("refreshing access token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("refreshing access token: HTTP %d", resp.StatusCode)
	}

	var refreshResp struct {
		AccessToken         string `json:"accessToken"`
		ExpirationTimestamp int64  `json:"expirationTimestamp"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&refreshResp); err != nil {
		return nil, fmt.Errorf("decoding refresh response: %w", err)
	}

	ts.session.AccessToken = refreshResp.AccessToken
	ts.session.ExpiresAt = time.UnixMilli(refreshResp.ExpirationTimestamp)

	// Persist the new token if callback is set
	if ts.onRefresh != nil {
		if err := ts.onRefresh(ts.session.AccessToken, ts.session.RefreshToken, ts.session.ExpiresAt); err != nil {
			return nil, err
		}
	}

	return ts.currentLocked(), nil
}

// IsExpired checks if the current token is expired or will expire within the buffer
func (ts *TokenSource) IsExpired() bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return time.Until(ts.session.ExpiresAt) <= refreshBuffer
}

func (ts *TokenSource) currentLocked() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  ts.session.AccessToken,
		RefreshToken: ts.session.RefreshToken,
		Expiry:       ts.session.ExpiresAt,
		TokenType:    "Bearer",
	}
}
