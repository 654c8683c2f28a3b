package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/auth/health"
	httpapi "github.com/aussiebroadwan/gatekeeper/internal/auth/http"
	"github.com/aussiebroadwan/gatekeeper/internal/auth/kv"
	"github.com/aussiebroadwan/gatekeeper/internal/auth/ledger"
	"github.com/aussiebroadwan/gatekeeper/internal/auth/metrics"
	"github.com/aussiebroadwan/gatekeeper/internal/auth/service"
	"github.com/aussiebroadwan/gatekeeper/internal/auth/store"
	"github.com/aussiebroadwan/gatekeeper/internal/auth/store/drivers/postgres"
	"github.com/aussiebroadwan/gatekeeper/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/gatekeeper/pkg/cryptox"
	"github.com/aussiebroadwan/gatekeeper/pkg/jwtx"
	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"

	ServiceName = "gatekeeper"
)

// Application encapsulates the auth service application with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db      store.Store
	kv      kv.Store
	metrics *metrics.Metrics

	// Services
	manager      *service.Manager
	housekeeping *service.HousekeepingService // nil when the ledger lives in Redis

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (_ *Application, err error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: ServiceName,
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	ctx := context.Background()
	defer func() {
		if err != nil {
			_ = app.closeStores()
		}
	}()

	if err := app.initDatabase(ctx); err != nil {
		return nil, err
	}
	if err := app.initKV(ctx); err != nil {
		return nil, err
	}
	if err := app.initServices(); err != nil {
		return nil, err
	}
	app.initHTTP()

	return app, nil
}

// Handler returns the fully wired HTTP handler.
func (app *Application) Handler() http.Handler { return app.router }

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	if app.housekeeping != nil {
		app.housekeeping.Start()
	}

	app.logger.Info("auth service starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down auth service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	if app.housekeeping != nil {
		app.housekeeping.Stop()
	}

	if err := app.metrics.Shutdown(ctx); err != nil {
		app.logger.Error("error stopping metrics", "error", err)
	}

	if err := app.closeStores(); err != nil {
		return err
	}

	app.logger.Info("auth service stopped")
	return nil
}

func (app *Application) closeStores() error {
	var errs []error
	if app.kv != nil {
		if err := app.kv.Close(); err != nil {
			app.logger.Error("error closing kv store", "error", err)
			errs = append(errs, err)
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database", "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// openStore opens the configured driver without migrating it.
var openStore = func(ctx context.Context, cfg Config) (store.Store, error) {
	if cfg.DatabaseDriver == DriverPostgres {
		return postgres.NewStore(ctx, cfg.DatabaseURL)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", cfg.DatabaseFile)
	return sqlite.NewStore(dsn)
}

// initDatabase opens the configured driver and applies migrations
func (app *Application) initDatabase(ctx context.Context) error {
	db, err := openStore(ctx, app.cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully", "driver", app.cfg.DatabaseDriver)
	return nil
}

// initKV connects the shared store behind the revocation ledger.
func (app *Application) initKV(ctx context.Context) error {
	if app.cfg.RedisAddr == "" {
		mem := kv.NewMemory()
		app.kv = mem
		app.housekeeping = service.NewHousekeepingService(mem, app.logger, app.cfg.HousekeepingInterval)
		app.logger.Warn("using in-memory revocation ledger; revocations are not shared between instances")
		return nil
	}

	r := kv.NewRedis(kv.RedisOptions{
		Addr:     app.cfg.RedisAddr,
		Password: app.cfg.RedisPassword,
		DB:       app.cfg.RedisDB,
		Prefix:   app.cfg.RedisPrefix,
	})
	app.kv = r

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.Ping(pingCtx); err != nil {
		return fmt.Errorf("failed to connect to redis at %s: %w", app.cfg.RedisAddr, err)
	}

	app.logger.Info("revocation ledger connected", "redis_addr", app.cfg.RedisAddr)
	return nil
}

// initServices builds the lifecycle manager and its collaborators
func (app *Application) initServices() error {
	pepper, err := cryptox.LoadOrCreatePepper(app.cfg.PepperFile)
	if err != nil {
		return fmt.Errorf("failed to load pepper: %w", err)
	}
	hasher, err := cryptox.NewHasher(pepper)
	if err != nil {
		return fmt.Errorf("failed to initialize password hasher: %w", err)
	}

	signer, err := LoadSigner(app.cfg, app.logger)
	if err != nil {
		return err
	}

	m, err := metrics.New(ServiceName, BuildVersion)
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}
	app.metrics = m

	revocations := ledger.NewCached(ledger.New(app.kv, app.cfg.AccessTTL), app.cfg.LedgerCacheTTL)
	if app.cfg.LedgerCacheTTL > 0 {
		app.logger.Info("ledger cache enabled", "ttl", min(app.cfg.LedgerCacheTTL, ledger.MaxCacheTTL))
	}

	app.manager = &service.Manager{
		Credentials: &service.Credentials{Store: app.db, Hasher: hasher},
		Codec:       jwtx.NewCodec(signer, app.cfg.Issuer),
		Ledger:      revocations,
		Policy: service.LengthPolicy{
			Min: app.cfg.PasswordMinLen,
			Max: service.DefaultPasswordMaxLength,
		},
		Metrics: m,
		TTL:     app.cfg.AccessTTL,
		Skew:    app.cfg.ClockSkew,
	}
	return nil
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(httpapi.BuildInfo{
		Service:     ServiceName,
		Version:     BuildVersion,
		Environment: app.cfg.Env,
	}, app.logger)

	router.Auth = app.manager
	router.Accounts = app.manager
	router.Health = health.NewAggregator(app.cfg.HealthProbeTimeout, app.cfg.HealthBudget,
		health.DatabaseProbe(app.db),
		health.CacheProbe(app.kv),
		health.MemoryProbe(app.cfg.HealthMemoryLimitBytes, app.cfg.HealthMemoryWarnPercent),
	)
	router.Schema = app.db
	router.ReadyTimeout = app.cfg.HealthProbeTimeout
	router.Counter = app.kv
	router.Metrics = app.metrics
	router.Limits = app.cfg.RateLimits()
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
