package authsdk

import (
	"context"
	"net/http"
)

// Register creates an identity. It does not log in.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*UserResponse, error) {
	resp, err := c.do(ctx, http.MethodPost, "/auth/register", "", req)
	if err != nil {
		return nil, err
	}

	var out UserEnvelope
	if err := decodeJSON(resp, &out, http.StatusCreated); err != nil {
		return nil, err
	}
	return &out.User, nil
}

// Login exchanges credentials for a token.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*TokenResponse, error) {
	resp, err := c.do(ctx, http.MethodPost, "/auth/login", "", req)
	if err != nil {
		return nil, err
	}

	var out TokenResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// Refresh rotates token. The old token is revoked on success.
func (c *Client) Refresh(ctx context.Context, token string) (*TokenResponse, error) {
	resp, err := c.do(ctx, http.MethodPost, "/auth/refresh", token, nil)
	if err != nil {
		return nil, err
	}

	var out TokenResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout revokes token.
func (c *Client) Logout(ctx context.Context, token string) error {
	resp, err := c.do(ctx, http.MethodPost, "/auth/logout", token, nil)
	if err != nil {
		return err
	}
	return decodeJSON(resp, nil, http.StatusOK)
}

// LogoutAll revokes every token issued to the token's subject so far.
func (c *Client) LogoutAll(ctx context.Context, token string) error {
	resp, err := c.do(ctx, http.MethodPost, "/auth/logout-all", token, nil)
	if err != nil {
		return err
	}
	return decodeJSON(resp, nil, http.StatusOK)
}

// Profile returns the identity the token belongs to.
func (c *Client) Profile(ctx context.Context, token string) (*UserResponse, error) {
	resp, err := c.do(ctx, http.MethodGet, "/auth/profile", token, nil)
	if err != nil {
		return nil, err
	}

	var out UserEnvelope
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out.User, nil
}

// ChangePassword replaces the password and revokes all outstanding tokens,
// including token itself.
func (c *Client) ChangePassword(ctx context.Context, token string, req ChangePasswordRequest) error {
	resp, err := c.do(ctx, http.MethodPost, "/auth/password", token, req)
	if err != nil {
		return err
	}
	return decodeJSON(resp, nil, http.StatusOK)
}
