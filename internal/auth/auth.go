// Package auth obtains and refreshes the market-scoped bearer credential used
// by every remote commerce call.
//
// There is no background refresh: callers ask the Manager for a token right
// before issuing a request and the Manager refreshes when fewer than
// FreshnessLeeway remain.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"cartsync/internal/model"
)

// FreshnessLeeway is the minimum remaining lifetime a credential must have
// when a request is issued.
const FreshnessLeeway = 60 * time.Second

const (
	pathOAuthToken = "/oauth/token"
	userAgent      = "cartsync/1.0"
)

// Exchanger performs the credential exchange against the auth server.
type Exchanger interface {
	Exchange(ctx context.Context) (*model.Credential, error)
}

// ExchangeFunc adapts a function to Exchanger.
type ExchangeFunc func(ctx context.Context) (*model.Credential, error)

// Exchange calls f(ctx).
func (f ExchangeFunc) Exchange(ctx context.Context) (*model.Credential, error) {
	return f(ctx)
}

// Config identifies the sales channel and the market the token is scoped to.
type Config struct {
	Endpoint string // e.g. "https://acme.commercelayer.io"
	ClientID string
	Market   string
	Scope    string // defaults to "market:{Market}"
}

// ScopeOrDefault returns the configured scope, or the market scope when unset.
func (c Config) ScopeOrDefault() string {
	if c.Scope != "" {
		return c.Scope
	}
	return "market:" + c.Market
}

// ClientCredentials exchanges a client id for a sales channel token using the
// client_credentials grant. Sales channel applications have no secret.
type ClientCredentials struct {
	httpClient *http.Client
	cfg        Config
	now        func() time.Time
}

// NewClientCredentials creates an exchanger. httpClient may be nil.
func NewClientCredentials(cfg Config, httpClient *http.Client) *ClientCredentials {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &ClientCredentials{
		httpClient: httpClient,
		cfg:        cfg,
		now:        time.Now,
	}
}

// tokenRequest is the client_credentials request body.
type tokenRequest struct {
	GrantType string `json:"grant_type"`
	ClientID  string `json:"client_id"`
	Scope     string `json:"scope"`
}

// tokenResponse is the OAuth token response.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope"`
	CreatedAt   int64  `json:"created_at"`
}

// Exchange requests a new credential. Any failure is an AuthFailure.
func (c *ClientCredentials) Exchange(ctx context.Context) (*model.Credential, error) {
	body, err := json.Marshal(&tokenRequest{
		GrantType: "client_credentials",
		ClientID:  c.cfg.ClientID,
		Scope:     c.cfg.ScopeOrDefault(),
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling token request: %w", err)
	}

	url := strings.TrimSuffix(c.cfg.Endpoint, "/") + pathOAuthToken
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, model.NewAuthError("token endpoint unreachable", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, model.NewAuthError("reading token response", err)
	}
	if resp.StatusCode >= 400 {
		return nil, model.NewAuthError("token exchange rejected",
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))))
	}

	var tok tokenResponse
	if err := json.Unmarshal(raw, &tok); err != nil {
		return nil, model.NewAuthError("parsing token response", err)
	}
	if tok.AccessToken == "" {
		return nil, model.NewAuthError("empty access token", nil)
	}

	expiresAt, err := c.expiry(tok)
	if err != nil {
		return nil, model.NewAuthError("token has no usable expiry", err)
	}

	return &model.Credential{
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
		Scope:       tok.Scope,
		ExpiresAt:   expiresAt,
	}, nil
}

// expiry computes the absolute expiry. expires_in wins; otherwise the JWT exp
// claim of the access token is used.
func (c *ClientCredentials) expiry(tok tokenResponse) (time.Time, error) {
	if tok.ExpiresIn > 0 {
		return c.now().Add(time.Duration(tok.ExpiresIn) * time.Second), nil
	}
	return ExpiryFromJWT(tok.AccessToken)
}

// ExpiryFromJWT reads the exp claim without verifying the signature. The
// token is only inspected for scheduling; the API server verifies it.
func ExpiryFromJWT(token string) (time.Time, error) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, fmt.Errorf("parsing access token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, fmt.Errorf("access token has no exp claim")
	}
	return claims.ExpiresAt.Time, nil
}

// Manager owns the current credential. It is the only writer.
type Manager struct {
	exchanger Exchanger
	now       func() time.Time

	mu      sync.Mutex
	current *model.Credential
}

// NewManager creates a manager with no credential yet.
func NewManager(exchanger Exchanger) *Manager {
	return &Manager{
		exchanger: exchanger,
		now:       time.Now,
	}
}

// WithClock overrides the time source. Used by tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Acquire performs a fresh exchange and replaces the held credential.
func (m *Manager) Acquire(ctx context.Context) (*model.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acquireLocked(ctx)
}

func (m *Manager) acquireLocked(ctx context.Context) (*model.Credential, error) {
	cred, err := m.exchanger.Exchange(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring credential: %w", err)
	}
	m.current = cred
	return cred, nil
}

// EnsureFresh returns cur unchanged when it has at least FreshnessLeeway left,
// otherwise it acquires a replacement.
func (m *Manager) EnsureFresh(ctx context.Context, cur *model.Credential) (*model.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ensureFreshLocked(ctx, cur)
}

func (m *Manager) ensureFreshLocked(ctx context.Context, cur *model.Credential) (*model.Credential, error) {
	if !cur.ExpiresWithin(m.now(), FreshnessLeeway) {
		return cur, nil
	}
	return m.acquireLocked(ctx)
}

// Token returns a credential that is fresh right now, refreshing the held one
// when needed. Call it immediately before issuing a remote request.
func (m *Manager) Token(ctx context.Context) (*model.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ensureFreshLocked(ctx, m.current)
}

// Current returns the held credential without refreshing it. May be nil.
func (m *Manager) Current() *model.Credential {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}
