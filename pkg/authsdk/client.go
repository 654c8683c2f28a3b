package authsdk

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// Client talks to the gatekeeper HTTP surface. Public endpoints are methods
// on Client; authenticated ones take the bearer token explicitly, or go
// through a Session which tracks and rotates it.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a client for the service rooted at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Authenticate logs in and returns a Session holding the issued token.
func (c *Client) Authenticate(ctx context.Context, identifier, password string) (*Session, error) {
	tok, err := c.Login(ctx, LoginRequest{Identifier: identifier, Password: password})
	if err != nil {
		return nil, err
	}
	return newSession(c, tok), nil
}

// NewSessionFromToken wraps an existing token in a Session.
func (c *Client) NewSessionFromToken(token string, expiresAt time.Time) *Session {
	return newSession(c, &TokenResponse{Token: token, TokenType: "Bearer", ExpiresAt: expiresAt})
}
