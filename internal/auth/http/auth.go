package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/gatekeeper/internal/auth/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/auth/service"
	"github.com/aussiebroadwan/gatekeeper/pkg/authsdk"
	"github.com/aussiebroadwan/gatekeeper/pkg/httpx"
	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"
)

const tokenTypeBearer = "Bearer"

// AuthHandler serves the /auth routes. Authenticated routes expect
// RequireSession to have run first.
type AuthHandler struct {
	Auth     service.Authenticator
	Accounts service.AccountManager
}

func userResponse(u domain.User) authsdk.UserResponse {
	return authsdk.UserResponse{
		ID:         u.ID,
		Identifier: u.Identifier,
		Name:       u.Name,
		CreatedAt:  u.CreatedAt.UTC(),
		UpdatedAt:  u.UpdatedAt.UTC(),
	}
}

func tokenResponse(t domain.Token) authsdk.TokenResponse {
	return authsdk.TokenResponse{
		Token:     t.Raw,
		TokenType: tokenTypeBearer,
		ExpiresAt: t.ExpiresAt.UTC(),
	}
}

// bearer returns the raw token of the verified session.
func bearer(w http.ResponseWriter, r *http.Request) (string, bool) {
	s, ok := sessionFromContext(r.Context())
	if !ok || s.Token.Raw == "" {
		authsdk.ErrInvalidToken.WriteError(w)
		return "", false
	}
	return s.Token.Raw, true
}

// Register godoc
//
//	@Summary		Register a new identity
//	@Description	Creates a user. No token is issued; log in afterwards.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.RegisterRequest	true	"identifier, password, name"
//	@Success		201		{object}	authsdk.UserEnvelope
//	@Failure		400		{object}	authsdk.APIError	"malformed body"
//	@Failure		409		{object}	authsdk.APIError	"identifier already registered"
//	@Failure		422		{object}	authsdk.APIError	"validation failed or weak password"
//	@Router			/auth/register [post].
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req authsdk.RegisterRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}
	if err := validateRegister(req); err != nil {
		writeValidationError(w, err)
		return
	}

	u, err := h.Auth.Register(ctx, req.Identifier, req.Password, domain.Profile{Name: req.Name})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, authsdk.UserEnvelope{User: userResponse(u)})
}

// Login godoc
//
//	@Summary		Log in
//	@Description	Exchanges credentials for a signed session token.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.LoginRequest	true	"identifier, password"
//	@Success		200		{object}	authsdk.TokenResponse
//	@Failure		401		{object}	authsdk.APIError	"invalid credentials"
//	@Failure		422		{object}	authsdk.APIError	"validation failed"
//	@Failure		503		{object}	authsdk.APIError	"revocation ledger unreachable"
//	@Router			/auth/login [post].
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req authsdk.LoginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}
	if err := validateLogin(req); err != nil {
		writeValidationError(w, err)
		return
	}

	tok, err := h.Auth.Login(ctx, req.Identifier, req.Password)
	if errors.Is(err, service.ErrLedgerUnavailable) {
		// The caller sent credentials, not a token.
		slogx.FromContext(ctx).Error("revocation ledger unavailable", "error", err)
		authsdk.ErrUnavailable.WriteError(w)
		return
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	slogx.FromContext(ctx).Info("user logged in", "user_id", tok.Subject)
	httpx.WriteJSON(w, http.StatusOK, tokenResponse(tok))
}

// Logout godoc
//
//	@Summary		Log out
//	@Description	Revokes the presented token. Other tokens of the same user stay valid.
//	@Tags			Auth
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.MessageResponse
//	@Failure		401	{object}	authsdk.APIError	"invalid token"
//	@Router			/auth/logout [post].
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	raw, ok := bearer(w, r)
	if !ok {
		return
	}

	if err := h.Auth.Logout(r.Context(), raw); err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.MessageResponse{Message: "Successfully logged out"})
}

// Refresh godoc
//
//	@Summary		Refresh a token
//	@Description	Rotates the presented token: a new token is issued and the old one is revoked.
//	@Tags			Auth
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.TokenResponse
//	@Failure		401	{object}	authsdk.APIError	"invalid token"
//	@Router			/auth/refresh [post].
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	raw, ok := bearer(w, r)
	if !ok {
		return
	}

	tok, err := h.Auth.Refresh(r.Context(), raw)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, tokenResponse(tok))
}

// Profile godoc
//
//	@Summary		Current identity
//	@Tags			Auth
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.UserEnvelope
//	@Failure		401	{object}	authsdk.APIError	"invalid token"
//	@Router			/auth/profile [get].
func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	raw, ok := bearer(w, r)
	if !ok {
		return
	}

	u, err := h.Auth.Profile(r.Context(), raw)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.UserEnvelope{User: userResponse(u)})
}

// User godoc
//
//	@Summary		Current identity (bare)
//	@Description	Same as /auth/profile without the envelope.
//	@Tags			Auth
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.UserResponse
//	@Failure		401	{object}	authsdk.APIError	"invalid token"
//	@Router			/user [get].
func (h *AuthHandler) User(w http.ResponseWriter, r *http.Request) {
	s, ok := sessionFromContext(r.Context())
	if !ok {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, userResponse(s.User))
}

// LogoutAll godoc
//
//	@Summary		Log out everywhere
//	@Description	Revokes every token issued to the current user so far.
//	@Tags			Auth
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.MessageResponse
//	@Failure		401	{object}	authsdk.APIError	"invalid token"
//	@Router			/auth/logout-all [post].
func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	raw, ok := bearer(w, r)
	if !ok {
		return
	}

	if err := h.Accounts.LogoutAll(r.Context(), raw); err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.MessageResponse{Message: "All sessions revoked"})
}

// ChangePassword godoc
//
//	@Summary		Change password
//	@Description	Replaces the password and revokes every token of the user, including this one.
//	@Tags			Auth
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.ChangePasswordRequest	true	"current_password, new_password"
//	@Success		200		{object}	authsdk.MessageResponse
//	@Failure		401		{object}	authsdk.APIError	"invalid token or wrong current password"
//	@Failure		422		{object}	authsdk.APIError	"validation failed or weak password"
//	@Router			/auth/password [post].
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	raw, ok := bearer(w, r)
	if !ok {
		return
	}

	var req authsdk.ChangePasswordRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}
	if err := validateChangePassword(req); err != nil {
		writeValidationError(w, err)
		return
	}

	if err := h.Accounts.ChangePassword(r.Context(), raw, req.CurrentPassword, req.NewPassword); err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.MessageResponse{Message: "Password changed"})
}
