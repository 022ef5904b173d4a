package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"runtrack/internal/models"
)

func TestTokenReusedWhileFresh(t *testing.T) {
	var refreshCalls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refreshCalls++
	}))
	defer server.Close()

	ts := NewTokenSource(server.URL, models.Session{
		UserID:      "user-a",
		AccessToken: "access-1",
		ExpiresAt:   time.Now().Add(time.Hour),
	}, nil)

	token, err := ts.Token()
	if err != nil {
		t.Fatalf("Token(): %v", err)
	}
	if token.AccessToken != "access-1" {
		t.Errorf("AccessToken = %q, want access-1", token.AccessToken)
	}
	if token.TokenType != "Bearer" {
		t.Errorf("TokenType = %q, want Bearer", token.TokenType)
	}
	if refreshCalls != 0 {
		t.Errorf("refresh endpoint hit %d times for a fresh token", refreshCalls)
	}
	if ts.IsExpired() {
		t.Error("IsExpired() = true for a fresh token")
	}
}

func TestTokenRefreshedNearExpiry(t *testing.T) {
	newExpiry := time.Now().Add(time.Hour).UnixMilli()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/accessToken" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req struct {
			RefreshToken string `json:"refreshToken"`
			UserID       string `json:"userId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("parsing refresh request: %v", err)
		}
		if req.RefreshToken != "refresh-1" || req.UserID != "user-a" {
			t.Errorf("refresh request = %+v", req)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"accessToken":         "access-2",
			"expirationTimestamp": newExpiry,
		})
	}))
	defer server.Close()

	var persisted []string
	ts := NewTokenSource(server.URL, models.Session{
		UserID:       "user-a",
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		// Inside the refresh buffer, so the next Token() call must renew.
		ExpiresAt: time.Now().Add(10 * time.Second),
	}, func(accessToken, refreshToken string, expiresAt time.Time) error {
		persisted = []string{accessToken, refreshToken}
		return nil
	})

	token, err := ts.Token()
	if err != nil {
		t.Fatalf("Token(): %v", err)
	}
	if token.AccessToken != "access-2" {
		t.Errorf("AccessToken = %q, want access-2", token.AccessToken)
	}
	if !token.Expiry.Equal(time.UnixMilli(newExpiry)) {
		t.Errorf("Expiry = %v, want %v", token.Expiry, time.UnixMilli(newExpiry))
	}

	// The rotated pair must have been handed to the persistence callback.
	if len(persisted) != 2 || persisted[0] != "access-2" || persisted[1] != "refresh-1" {
		t.Errorf("persisted = %v, want [access-2 refresh-1]", persisted)
	}
}

func TestRefreshFailureSurfaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	ts := NewTokenSource(server.URL, models.Session{
		UserID:       "user-a",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(-time.Minute),
	}, nil)

	if _, err := ts.Token(); err == nil {
		t.Fatal("Token() = nil error for a rejected refresh")
	}
}
