package authsdk

import "time"

// ============================================================================
// Request Types
// ============================================================================

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
	Name       string `json:"name,omitempty"`
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// ChangePasswordRequest is the body of POST /auth/password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// ============================================================================
// Token and User Types
// ============================================================================

// TokenResponse is returned by login and refresh.
type TokenResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
}

// UserResponse is the public view of an identity. The password hash is
// never part of it.
type UserResponse struct {
	ID         string    `json:"id"`
	Identifier string    `json:"identifier"`
	Name       string    `json:"name,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// UserEnvelope wraps a user for register and profile responses.
type UserEnvelope struct {
	User UserResponse `json:"user"`
}

// MessageResponse is a plain confirmation.
type MessageResponse struct {
	Message string `json:"message"`
}

// ============================================================================
// Health Types
// ============================================================================

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusWarning   = "warning"

	StatusReady    = "ready"
	StatusNotReady = "not_ready"
)

// CheckResult is the outcome of one health probe.
type CheckResult struct {
	Status     string         `json:"status"`
	DurationMS int64          `json:"duration_ms"`
	Details    map[string]any `json:"details,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// HealthResponse is returned by GET /healthz with 200 or 503.
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Service   string                 `json:"service"`
	Version   string                 `json:"version"`
	Checks    map[string]CheckResult `json:"checks"`
}

// ReadyResponse is returned by GET /ready with 200 or 503.
type ReadyResponse struct {
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
	SchemaVersion uint      `json:"schema_version"`
	LatestVersion uint      `json:"latest_version"`
	Dirty         bool      `json:"dirty"`
	Error         string    `json:"error,omitempty"`
}

// LivenessResponse is returned by GET /livez.
type LivenessResponse struct {
	Status  string `json:"status"`
	Uptime  string `json:"uptime"`
	Version string `json:"version"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Status    string    `json:"status"`
	Service   string    `json:"service"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    string    `json:"uptime"`
	Requests  int64     `json:"requests"`
}

// MetricsResponse is returned by GET /metrics.
type MetricsResponse struct {
	Timestamp     time.Time        `json:"timestamp"`
	Uptime        string           `json:"uptime"`
	MemoryUsage   uint64           `json:"memory_usage"`
	MemoryPeak    uint64           `json:"memory_peak"`
	RequestsTotal int64            `json:"requests_total"`
	Counters      map[string]int64 `json:"counters"`
}

// RootResponse is returned by GET /.
type RootResponse struct {
	Message     string    `json:"message"`
	Version     string    `json:"version"`
	Environment string    `json:"environment"`
	Timestamp   time.Time `json:"timestamp"`
}
