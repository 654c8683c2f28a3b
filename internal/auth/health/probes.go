package health

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/auth/kv"
	"github.com/aussiebroadwan/gatekeeper/pkg/cryptox"
)

// DefaultMemoryWarnPercent is the usage at which the memory probe warns.
const DefaultMemoryWarnPercent = 90.0

const sentinelTTL = 10 * time.Second

var ErrSentinelMismatch = errors.New("health: cache returned a different value")

// Pinger is satisfied by store.Store.
type Pinger interface {
	Ping(ctx context.Context) error
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

// DatabaseProbe pings the credential store. When db also reports its
// migration status the schema versions are included in the details.
func DatabaseProbe(db Pinger) Probe {
	return ProbeFunc{ProbeName: "database", Fn: func(ctx context.Context) Result {
		start := time.Now()
		if err := db.Ping(ctx); err != nil {
			return unhealthy(err)
		}
		details := map[string]any{"ping_ms": millis(time.Since(start))}

		if src, ok := db.(MigrationReporter); ok {
			if st, err := src.MigrationStatus(ctx); err == nil {
				details["schema_version"] = st.Version
				details["schema_latest"] = st.Latest
				details["schema_dirty"] = st.Dirty
			}
		}
		return healthy(details)
	}}
}

// CacheProbe writes a random sentinel through the kv store, reads it back
// and compares.
func CacheProbe(store kv.Store) Probe {
	return ProbeFunc{ProbeName: "cache", Fn: func(ctx context.Context) Result {
		value, err := cryptox.GenerateToken(16)
		if err != nil {
			return unhealthy(err)
		}
		key := "health:sentinel:" + value

		start := time.Now()
		if err := store.Set(ctx, key, value, sentinelTTL); err != nil {
			return unhealthy(fmt.Errorf("write sentinel: %w", err))
		}
		defer func() { _ = store.Delete(context.WithoutCancel(ctx), key) }()
		written := time.Now()

		got, err := store.Get(ctx, key)
		if err != nil {
			return unhealthy(fmt.Errorf("read sentinel: %w", err))
		}
		if got != value {
			return unhealthy(ErrSentinelMismatch)
		}
		return healthy(map[string]any{
			"write_ms":       millis(written.Sub(start)),
			"read_ms":        millis(time.Since(written)),
			"sentinel_bytes": len(value),
			"round_trip":     "ok",
		})
	}}
}

// MemoryProbe compares memory obtained from the OS against limit bytes.
// A zero limit uses the runtime soft limit (GOMEMLIMIT); with neither set
// the probe only reports usage.
func MemoryProbe(limit uint64, warnPercent float64) Probe {
	if warnPercent <= 0 || warnPercent > 100 {
		warnPercent = DefaultMemoryWarnPercent
	}
	return ProbeFunc{ProbeName: "memory", Fn: func(context.Context) Result {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		return memoryResult(ms.Sys, effectiveLimit(limit), warnPercent)
	}}
}

func effectiveLimit(limit uint64) uint64 {
	if limit > 0 {
		return limit
	}
	if soft := debug.SetMemoryLimit(-1); soft > 0 && soft < math.MaxInt64 {
		return uint64(soft)
	}
	return 0
}

func memoryResult(usage, limit uint64, warnPercent float64) Result {
	details := map[string]any{"usage_bytes": usage}
	if limit == 0 {
		return healthy(details)
	}

	percent := math.Round(float64(usage)/float64(limit)*10000) / 100
	details["limit_bytes"] = limit
	details["usage_percent"] = percent

	status := StatusHealthy
	if percent >= warnPercent {
		status = StatusWarning
	}
	return Result{Status: status, Details: details}
}
