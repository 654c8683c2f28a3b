package app

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/spf13/viper"

	httpapi "github.com/aussiebroadwan/gatekeeper/internal/auth/http"
	"github.com/aussiebroadwan/gatekeeper/internal/auth/service"
	"github.com/aussiebroadwan/gatekeeper/pkg/httpx"
	"github.com/aussiebroadwan/gatekeeper/pkg/jwtx"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config is loaded from the environment and an optional .env file.
type Config struct {
	Port      int    `mapstructure:"PORT"`       // HTTP server port (default: 8080)
	Env       string `mapstructure:"ENV"`        // Environment (dev, staging, prod) (default: dev)
	LogLevel  string `mapstructure:"LOG_LEVEL"`  // debug, info, warn, error (default: info)
	LogFormat string `mapstructure:"LOG_FORMAT"` // json, text (default: json)

	Issuer         string        `mapstructure:"AUTH_ISSUER"`           // iss claim (default: gatekeeper)
	Algorithm      string        `mapstructure:"AUTH_ALGORITHM"`        // HS256 or EdDSA (default: EdDSA)
	SigningSecret  string        `mapstructure:"AUTH_SIGNING_SECRET"`   // HS256 shared secret, at least 32 bytes
	SigningKeyFile string        `mapstructure:"AUTH_SIGNING_KEY_FILE"` // EdDSA PEM key, created when missing (default: ./signing.key)
	AccessTTL      time.Duration `mapstructure:"AUTH_ACCESS_TTL"`       // token lifetime (default: 60m)
	ClockSkew      time.Duration `mapstructure:"AUTH_CLOCK_SKEW"`       // iat/nbf leeway, at least 1s (default: 5s)
	PepperFile     string        `mapstructure:"AUTH_PEPPER_FILE"`      // password pepper, created when missing (default: ./pepper)
	PasswordMinLen int           `mapstructure:"PASSWORD_MIN_LENGTH"`   // default: 8

	DatabaseDriver string `mapstructure:"AUTH_DATABASE_DRIVER"` // sqlite or postgres (default: sqlite)
	DatabaseFile   string `mapstructure:"AUTH_DATABASE_FILE"`   // SQLite file (default: ./auth.db)
	DatabaseURL    string `mapstructure:"DATABASE_URL"`         // Postgres DSN, required for postgres

	// With no REDIS_ADDR the ledger lives in process memory, which is only
	// correct for a single instance.
	RedisAddr      string        `mapstructure:"REDIS_ADDR"`
	RedisPassword  string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB        int           `mapstructure:"REDIS_DB"`
	RedisPrefix    string        `mapstructure:"REDIS_PREFIX"`          // default: gatekeeper:
	LedgerCacheTTL time.Duration `mapstructure:"AUTH_LEDGER_CACHE_TTL"` // 0 disables, capped at 5s

	HealthProbeTimeout      time.Duration `mapstructure:"HEALTH_PROBE_TIMEOUT"`       // default: 2s
	HealthBudget            time.Duration `mapstructure:"HEALTH_BUDGET"`              // default: 5s
	HealthMemoryLimitBytes  uint64        `mapstructure:"HEALTH_MEMORY_LIMIT_BYTES"`  // 0 uses GOMEMLIMIT
	HealthMemoryWarnPercent float64       `mapstructure:"HEALTH_MEMORY_WARN_PERCENT"` // default: 90

	// Requests per minute; 0 disables the limit.
	RateLimitCredentials   int `mapstructure:"RATELIMIT_CREDENTIALS_PER_MINUTE"`
	RateLimitAuthenticated int `mapstructure:"RATELIMIT_AUTHENTICATED_PER_MINUTE"`
	RateLimitProbes        int `mapstructure:"RATELIMIT_PROBES_PER_MINUTE"`

	ShutdownGracePeriod  time.Duration `mapstructure:"SHUTDOWN_GRACE_PERIOD"` // default: 10s
	HousekeepingInterval time.Duration `mapstructure:"HOUSEKEEPING_INTERVAL"` // default: 1m
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", 8080)
	v.SetDefault("ENV", "dev")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("AUTH_ISSUER", "gatekeeper")
	v.SetDefault("AUTH_ALGORITHM", jwtx.AlgorithmEdDSA)
	v.SetDefault("AUTH_SIGNING_SECRET", "")
	v.SetDefault("AUTH_SIGNING_KEY_FILE", "signing.key")
	v.SetDefault("AUTH_ACCESS_TTL", jwtx.DefaultAccessTokenTTL)
	v.SetDefault("AUTH_CLOCK_SKEW", 5*time.Second)
	v.SetDefault("AUTH_PEPPER_FILE", "pepper")
	v.SetDefault("PASSWORD_MIN_LENGTH", 8)

	v.SetDefault("AUTH_DATABASE_DRIVER", DriverSQLite)
	v.SetDefault("AUTH_DATABASE_FILE", "auth.db")
	v.SetDefault("DATABASE_URL", "")

	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_PREFIX", "gatekeeper:")
	v.SetDefault("AUTH_LEDGER_CACHE_TTL", 0)

	v.SetDefault("HEALTH_PROBE_TIMEOUT", 2*time.Second)
	v.SetDefault("HEALTH_BUDGET", 5*time.Second)
	v.SetDefault("HEALTH_MEMORY_LIMIT_BYTES", 0)
	v.SetDefault("HEALTH_MEMORY_WARN_PERCENT", 90.0)

	v.SetDefault("RATELIMIT_CREDENTIALS_PER_MINUTE", httpx.StrictLimit.Requests)
	v.SetDefault("RATELIMIT_AUTHENTICATED_PER_MINUTE", httpx.ModerateLimit.Requests)
	v.SetDefault("RATELIMIT_PROBES_PER_MINUTE", httpx.LenientLimit.Requests)

	v.SetDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second)
	v.SetDefault("HOUSEKEEPING_INTERVAL", time.Minute)
}

// LoadConfig reads envFile when it exists, then the environment, which
// wins. Pass "" to skip the file.
func LoadConfig(envFile string) (Config, error) {
	v := viper.New()

	if envFile != "" {
		v.SetConfigFile(envFile)
		v.SetConfigType("env")
		_ = v.ReadInConfig() // a missing file is fine
	}

	v.AutomaticEnv()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var secretRules, keyFileRules, dsnRules []validation.Rule
	switch c.Algorithm {
	case jwtx.AlgorithmHS256:
		secretRules = []validation.Rule{validation.Required, validation.Length(jwtx.MinSecretLength, 0)}
	case jwtx.AlgorithmEdDSA:
		keyFileRules = []validation.Rule{validation.Required}
	}
	if c.DatabaseDriver == DriverPostgres {
		dsnRules = []validation.Rule{validation.Required}
	}

	return validation.ValidateStruct(&c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.Issuer, validation.Required),
		validation.Field(&c.Algorithm, validation.Required, validation.In(jwtx.AlgorithmHS256, jwtx.AlgorithmEdDSA)),
		validation.Field(&c.SigningSecret, secretRules...),
		validation.Field(&c.SigningKeyFile, keyFileRules...),
		validation.Field(&c.AccessTTL, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.ClockSkew, validation.Min(service.MinClockSkew)),
		validation.Field(&c.PasswordMinLen, validation.Min(1)),
		validation.Field(&c.DatabaseDriver, validation.Required, validation.In(DriverSQLite, DriverPostgres)),
		validation.Field(&c.DatabaseURL, dsnRules...),
		validation.Field(&c.HealthMemoryWarnPercent, validation.Min(0.0), validation.Max(100.0)),
	)
}

// RateLimits converts the per-minute settings for the router.
func (c Config) RateLimits() httpapi.RateLimits {
	perMinute := func(n int) httpx.RateLimit {
		if n <= 0 {
			return httpx.RateLimit{}
		}
		return httpx.RateLimit{Requests: n, Window: time.Minute, Burst: n}
	}
	return httpapi.RateLimits{
		Credentials:   perMinute(c.RateLimitCredentials),
		Authenticated: perMinute(c.RateLimitAuthenticated),
		Probes:        perMinute(c.RateLimitProbes),
	}
}
