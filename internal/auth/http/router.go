package http

import (
	"log/slog"
	"net/http"
	"time"

	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/aussiebroadwan/gatekeeper/api/auth" // Swagger docs
	"github.com/aussiebroadwan/gatekeeper/internal/auth/health"
	"github.com/aussiebroadwan/gatekeeper/internal/auth/kv"
	"github.com/aussiebroadwan/gatekeeper/internal/auth/metrics"
	"github.com/aussiebroadwan/gatekeeper/internal/auth/service"
	"github.com/aussiebroadwan/gatekeeper/pkg/authsdk"
	"github.com/aussiebroadwan/gatekeeper/pkg/httpx"
	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"
)

// BuildInfo identifies the running service in probe responses.
type BuildInfo struct {
	Service     string
	Version     string
	Environment string
}

// RateLimits groups the per-route limits. A zero limit disables limiting.
type RateLimits struct {
	Credentials   httpx.RateLimit `mapstructure:"credentials"`
	Authenticated httpx.RateLimit `mapstructure:"authenticated"`
	Probes        httpx.RateLimit `mapstructure:"probes"`
}

func DefaultRateLimits() RateLimits {
	return RateLimits{
		Credentials:   httpx.StrictLimit,
		Authenticated: httpx.ModerateLimit,
		Probes:        httpx.LenientLimit,
	}
}

// Router holds shared dependencies for HTTP handlers. Set the exported
// fields, then call ApplyRoutes once before serving.
type Router struct {
	Mux     *http.ServeMux
	handler http.Handler

	info      BuildInfo
	startTime time.Time
	logger    *slog.Logger

	Auth         service.Authenticator
	Accounts     service.AccountManager
	Health       *health.Aggregator
	Schema       health.MigrationReporter
	ReadyTimeout time.Duration
	Counter      kv.Store
	Metrics      *metrics.Metrics
	Limits       RateLimits
}

func NewRouter(info BuildInfo, logger *slog.Logger) *Router {
	return &Router{
		Mux:       http.NewServeMux(),
		info:      info,
		startTime: time.Now(),
		logger:    logger,
		Limits:    DefaultRateLimits(),
	}
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
	r.Mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		authsdk.ErrNotFound.WriteError(w)
	})

	mws := []httpx.Middleware{slogx.HTTPMiddleware(r.logger)}
	if r.Metrics != nil {
		mws = append(mws, r.Metrics.Middleware)
	}
	if r.Counter != nil {
		mws = append(mws, CountRequests(r.Counter))
	}
	r.handler = httpx.Chain(r.Mux, mws...)
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			Gatekeeper Authentication Service API
//	@version		0.1.0
//	@description	Stateless token authentication: register, log in, verify, refresh and revoke signed session tokens.
//	@description
//	@description				Tokens are JWTs signed with HS256 or EdDSA. Revocation is shared by every instance.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/gatekeeper
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Session token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if r.handler == nil {
		r.Mux.ServeHTTP(w, req)
		return
	}
	r.handler.ServeHTTP(w, req)
}

func (r *Router) registerAuth() {
	h := &AuthHandler{Auth: r.Auth, Accounts: r.Accounts}

	// Credential endpoints: strict, keyed by IP and identifier so one
	// client cannot spray passwords across accounts or lock others out.
	credentials := func(fn http.HandlerFunc) http.Handler {
		return httpx.Chain(fn, httpx.RateLimitByIPAndField(r.Limits.Credentials, "identifier"))
	}
	r.Mux.Handle("POST /auth/register", credentials(h.Register))
	r.Mux.Handle("POST /auth/login", credentials(h.Login))

	// Authenticated endpoints: guard first, then limit per user.
	secured := func(fn http.HandlerFunc) http.Handler {
		return httpx.Chain(fn,
			RequireSession(r.Auth),
			httpx.RateLimitByUser(r.Limits.Authenticated),
		)
	}
	r.Mux.Handle("POST /auth/logout", secured(h.Logout))
	r.Mux.Handle("POST /auth/refresh", secured(h.Refresh))
	r.Mux.Handle("GET /auth/profile", secured(h.Profile))
	r.Mux.Handle("POST /auth/logout-all", secured(h.LogoutAll))
	r.Mux.Handle("POST /auth/password", secured(h.ChangePassword))
	r.Mux.Handle("GET /user", secured(h.User))
}

func (r *Router) registerSystem() {
	// Probes: lenient, monitoring systems may poll frequently.
	probe := func(fn http.HandlerFunc) http.Handler {
		return httpx.Chain(fn, httpx.RateLimitByIP(r.Limits.Probes))
	}

	r.Mux.Handle("GET /{$}", probe(RootHandler(r.info.Service, r.info.Version, r.info.Environment)))
	r.Mux.Handle("GET /livez", probe(LivezHandler(r.startTime, r.info.Version)))
	r.Mux.Handle("GET /healthz", probe(HealthzHandler(r.Health, r.info.Service, r.info.Version)))
	r.Mux.Handle("GET /ready", probe(ReadyHandler(r.Schema, r.ReadyTimeout)))
	r.Mux.Handle("GET /status", probe(StatusHandler(r.Counter, r.info.Service, r.info.Version, r.startTime)))
	r.Mux.Handle("GET /metrics", probe(MetricsHandler(r.Metrics, r.Counter, r.startTime)))
}
