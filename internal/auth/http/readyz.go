package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/auth/health"
	"github.com/aussiebroadwan/gatekeeper/pkg/authsdk"
	"github.com/aussiebroadwan/gatekeeper/pkg/httpx"
	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"
)

// ReadyHandler godoc
//
//	@Summary		Readiness probe
//	@Description	Ready only when the database schema is at the latest embedded migration and not dirty.
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	authsdk.ReadyResponse	"ready"
//	@Failure		503	{object}	authsdk.ReadyResponse	"not ready"
//	@Router			/ready [get].
func ReadyHandler(src health.MigrationReporter, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res := health.CheckReadiness(r.Context(), src, timeout)

		resp := authsdk.ReadyResponse{
			Status:        authsdk.StatusReady,
			Timestamp:     res.Timestamp,
			SchemaVersion: res.Schema.Version,
			LatestVersion: res.Schema.Latest,
			Dirty:         res.Schema.Dirty,
		}
		code := http.StatusOK
		if !res.Ready {
			slogx.FromContext(r.Context()).Warn("not ready", "error", res.Err)
			resp.Status = authsdk.StatusNotReady
			resp.Error = res.Err.Error()
			code = http.StatusServiceUnavailable
		}

		httpx.WriteJSON(w, code, resp)
	}
}
