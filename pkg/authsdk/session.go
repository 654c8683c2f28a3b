package authsdk

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// refreshBuffer rotates the token shortly before it expires.
const refreshBuffer = 30 * time.Second

// Session holds a token and rotates it through /auth/refresh when it is
// close to expiry. Safe for concurrent use.
type Session struct {
	client *Client

	mu        sync.RWMutex
	token     string
	expiresAt time.Time
}

func newSession(c *Client, tok *TokenResponse) *Session {
	return &Session{
		client:    c,
		token:     tok.Token,
		expiresAt: tok.ExpiresAt,
	}
}

// Token returns the current token without checking expiry.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// ExpiresAt returns the current token's expiry.
func (s *Session) ExpiresAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expiresAt
}

// validToken returns a token that is not about to expire, rotating if needed.
func (s *Session) validToken(ctx context.Context) (string, error) {
	s.mu.RLock()
	if time.Now().Add(refreshBuffer).Before(s.expiresAt) {
		token := s.token
		s.mu.RUnlock()
		return token, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another goroutine may have rotated while we waited.
	if time.Now().Add(refreshBuffer).Before(s.expiresAt) {
		return s.token, nil
	}
	if s.token == "" {
		return "", fmt.Errorf("session has been logged out")
	}

	tok, err := s.client.Refresh(ctx, s.token)
	if err != nil {
		return "", fmt.Errorf("failed to refresh token: %w", err)
	}
	s.token = tok.Token
	s.expiresAt = tok.ExpiresAt
	return s.token, nil
}

// Refresh forces a rotation now.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, err := s.client.Refresh(ctx, s.token)
	if err != nil {
		return err
	}
	s.token = tok.Token
	s.expiresAt = tok.ExpiresAt
	return nil
}

// Profile returns the session's identity.
func (s *Session) Profile(ctx context.Context) (*UserResponse, error) {
	token, err := s.validToken(ctx)
	if err != nil {
		return nil, err
	}
	return s.client.Profile(ctx, token)
}

// Logout revokes the token and clears the session.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.client.Logout(ctx, s.token); err != nil {
		return err
	}
	s.token = ""
	s.expiresAt = time.Time{}
	return nil
}
