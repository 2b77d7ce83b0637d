// Package session owns the signed-in user's session. A Provider persists it;
// a Store holds the live copy and tells subscribers when it changes.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ConfigKey is the config table key the session is stored under.
const ConfigKey = "session"

var ErrInvalidCredentials = errors.New("access token is required")

type Session struct {
	AccessToken string    `json:"access_token"`
	Email       string    `json:"email,omitempty"`
	Provider    string    `json:"provider,omitempty"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the session has passed its expiry. Sessions without
// an expiry never expire.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Credentials are what the identity provider hands back after a sign-in.
type Credentials struct {
	AccessToken string
	Email       string
	ExpiresIn   time.Duration
}

type Provider interface {
	CurrentSession(ctx context.Context) (*Session, error)
	SignIn(ctx context.Context, provider string, creds Credentials) (*Session, error)
	SignOut(ctx context.Context) error
}

// ConfigStore is the slice of the job store used to persist the session.
type ConfigStore interface {
	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
	DeleteConfig(ctx context.Context, key string) error
}

// TokenProvider keeps the session as JSON in the local config table.
type TokenProvider struct {
	store ConfigStore
	now   func() time.Time
}

func NewTokenProvider(store ConfigStore) *TokenProvider {
	return &TokenProvider{store: store, now: time.Now}
}

func (p *TokenProvider) CurrentSession(ctx context.Context) (*Session, error) {
	raw, err := p.store.GetConfig(ctx, ConfigKey)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if raw == "" {
		return nil, nil
	}

	var s Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if s.AccessToken == "" {
		return nil, nil
	}
	return &s, nil
}

func (p *TokenProvider) SignIn(ctx context.Context, provider string, creds Credentials) (*Session, error) {
	token := strings.TrimSpace(creds.AccessToken)
	if token == "" {
		return nil, ErrInvalidCredentials
	}

	s := &Session{
		AccessToken: token,
		Email:       strings.TrimSpace(creds.Email),
		Provider:    provider,
	}
	if creds.ExpiresIn > 0 {
		s.ExpiresAt = p.now().Add(creds.ExpiresIn).UTC()
	}

	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}
	if err := p.store.SetConfig(ctx, ConfigKey, string(data)); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return s, nil
}

func (p *TokenProvider) SignOut(ctx context.Context) error {
	if err := p.store.DeleteConfig(ctx, ConfigKey); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}
