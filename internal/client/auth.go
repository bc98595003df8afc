package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

// AuthClient signs in against the API and holds the token in memory. It is
// a TokenSource and a SignOuter.
type AuthClient struct {
	baseURL string
	http    *http.Client

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func NewAuthClient(baseURL string, hc *http.Client) *AuthClient {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &AuthClient{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (a *AuthClient) SignIn(ctx context.Context, email, password string) error {
	body, err := send(ctx, a.http, http.MethodPost, a.baseURL+"/api/auth/login", "", map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return err
	}
	var res loginResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return fmt.Errorf("decode login response: %w", err)
	}
	if res.Token == "" {
		return fmt.Errorf("%w: login returned no token", ErrUnauthorized)
	}
	a.mu.Lock()
	a.token, a.expiresAt = res.Token, res.ExpiresAt
	a.mu.Unlock()
	return nil
}

// Token returns the held token; an expired token counts as signed out.
func (a *AuthClient) Token(context.Context) (string, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.token == "" || (!a.expiresAt.IsZero() && time.Now().After(a.expiresAt)) {
		return "", false, nil
	}
	return a.token, true, nil
}

// SignOut forgets the token and revokes it upstream.
func (a *AuthClient) SignOut(ctx context.Context) error {
	a.mu.Lock()
	token := a.token
	a.token, a.expiresAt = "", time.Time{}
	a.mu.Unlock()
	if token == "" {
		return nil
	}
	_, err := send(ctx, a.http, http.MethodPost, a.baseURL+"/api/auth/logout", token, nil)
	return err
}
