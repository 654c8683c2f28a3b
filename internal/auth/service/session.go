package service

import (
	"context"

	"github.com/aussiebroadwan/gatekeeper/internal/auth/domain"
)

type sessionKey struct{}

// WithSession attaches a session verified earlier in the same request.
// Manager operations called with the same raw token reuse it instead of
// decoding and consulting the ledger again.
func WithSession(ctx context.Context, s domain.Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFromContext returns the session attached by WithSession.
func SessionFromContext(ctx context.Context) (domain.Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(domain.Session)
	return s, ok
}
