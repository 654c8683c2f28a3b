package http

import (
	"net/http"

	"github.com/aussiebroadwan/gatekeeper/internal/auth/health"
	"github.com/aussiebroadwan/gatekeeper/pkg/authsdk"
	"github.com/aussiebroadwan/gatekeeper/pkg/httpx"
)

// HealthzHandler godoc
//
//	@Summary		Dependency health
//	@Description	Runs the database, cache and memory probes concurrently. Warnings do not fail the check.
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	authsdk.HealthResponse	"healthy"
//	@Failure		503	{object}	authsdk.HealthResponse	"at least one probe is unhealthy"
//	@Router			/healthz [get].
func HealthzHandler(agg *health.Aggregator, service, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := agg.Check(r.Context())

		checks := make(map[string]authsdk.CheckResult, len(report.Checks))
		for name, res := range report.Checks {
			cr := authsdk.CheckResult{
				Status:     string(res.Status),
				DurationMS: res.Duration.Milliseconds(),
				Details:    res.Details,
			}
			if res.Err != nil {
				cr.Error = res.Err.Error()
			}
			checks[name] = cr
		}

		code := http.StatusOK
		if !report.Healthy() {
			code = http.StatusServiceUnavailable
		}

		httpx.WriteJSON(w, code, authsdk.HealthResponse{
			Status:    string(report.Status),
			Timestamp: report.Timestamp,
			Service:   service,
			Version:   version,
			Checks:    checks,
		})
	}
}
