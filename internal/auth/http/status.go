package http

import (
	"context"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/auth/kv"
	"github.com/aussiebroadwan/gatekeeper/internal/auth/metrics"
	"github.com/aussiebroadwan/gatekeeper/pkg/authsdk"
	"github.com/aussiebroadwan/gatekeeper/pkg/httpx"
	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"
)

// requestsTotalKey is shared by every instance behind the same kv store.
const requestsTotalKey = "stats:requests_total"

// CountRequests increments the fleet-wide request counter. A failing
// counter never fails the request.
func CountRequests(counter kv.Store) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := counter.Incr(r.Context(), requestsTotalKey); err != nil {
				slogx.FromContext(r.Context()).Debug("request counter unavailable", "error", err)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requestsTotal(ctx context.Context, counter kv.Store) int64 {
	v, err := counter.Get(ctx, requestsTotalKey)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			slogx.FromContext(ctx).Debug("request counter unavailable", "error", err)
		}
		return 0
	}
	n, _ := strconv.ParseInt(v, 10, 64)
	return n
}

// StatusHandler godoc
//
//	@Summary		Service status
//	@Tags			System
//	@Produce		json
//	@Success		200	{object}	authsdk.StatusResponse
//	@Router			/status [get].
func StatusHandler(counter kv.Store, service, version string, startTime time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, authsdk.StatusResponse{
			Status:    "ok",
			Service:   service,
			Version:   version,
			Timestamp: time.Now().UTC(),
			Uptime:    time.Since(startTime).Round(time.Second).String(),
			Requests:  requestsTotal(r.Context(), counter),
		})
	}
}

// MetricsHandler godoc
//
//	@Summary		Metrics snapshot
//	@Description	Memory usage, the request counter and every counter of the service meter.
//	@Tags			System
//	@Produce		json
//	@Success		200	{object}	authsdk.MetricsResponse
//	@Router			/metrics [get].
func MetricsHandler(m *metrics.Metrics, counter kv.Store, startTime time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)

		counters := map[string]int64{}
		if m != nil {
			snap, err := m.Snapshot(ctx)
			if err != nil {
				slogx.FromContext(ctx).Error("failed to collect metrics", "error", err)
				authsdk.ErrServerError.WriteError(w)
				return
			}
			counters = snap
		}

		httpx.WriteJSON(w, http.StatusOK, authsdk.MetricsResponse{
			Timestamp:     time.Now().UTC(),
			Uptime:        time.Since(startTime).Round(time.Second).String(),
			MemoryUsage:   ms.HeapAlloc,
			MemoryPeak:    ms.Sys,
			RequestsTotal: requestsTotal(ctx, counter),
			Counters:      counters,
		})
	}
}

// RootHandler godoc
//
//	@Summary		Service banner
//	@Tags			System
//	@Produce		json
//	@Success		200	{object}	authsdk.RootResponse
//	@Router			/ [get].
func RootHandler(message, version, environment string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, authsdk.RootResponse{
			Message:     message,
			Version:     version,
			Environment: environment,
			Timestamp:   time.Now().UTC(),
		})
	}
}
