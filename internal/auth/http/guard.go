package http

import (
	"context"
	"net/http"

	"github.com/aussiebroadwan/gatekeeper/internal/auth/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/auth/service"
	"github.com/aussiebroadwan/gatekeeper/pkg/authsdk"
	"github.com/aussiebroadwan/gatekeeper/pkg/httpx"
	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"
)

// RequireSession rejects requests without a valid bearer token. On success
// the verified session and subject are stored on the request context, where
// the manager picks the session up instead of verifying the token again.
func RequireSession(auth service.Authenticator) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := httpx.BearerToken(r)
			if !ok {
				authsdk.ErrInvalidToken.WriteError(w)
				return
			}

			s, err := auth.Verify(r.Context(), raw)
			if err != nil {
				writeServiceError(w, r, err)
				return
			}

			ctx := httpx.WithUserID(r.Context(), s.User.ID)
			ctx = service.WithSession(ctx, s)
			ctx = slogx.WithContext(ctx, slogx.FromContext(ctx).With("user_id", s.User.ID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func sessionFromContext(ctx context.Context) (domain.Session, bool) {
	return service.SessionFromContext(ctx)
}
