package http_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/auth/health"
	authhttp "github.com/aussiebroadwan/gatekeeper/internal/auth/http"
	"github.com/aussiebroadwan/gatekeeper/internal/auth/kv"
	"github.com/aussiebroadwan/gatekeeper/internal/auth/ledger"
	"github.com/aussiebroadwan/gatekeeper/internal/auth/metrics"
	"github.com/aussiebroadwan/gatekeeper/internal/auth/service"
	"github.com/aussiebroadwan/gatekeeper/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/gatekeeper/pkg/authsdk"
	"github.com/aussiebroadwan/gatekeeper/pkg/cryptox"
	"github.com/aussiebroadwan/gatekeeper/pkg/httpx"
	"github.com/aussiebroadwan/gatekeeper/pkg/jwtx"
	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	URL    string
	client *authsdk.Client
	kv     *kv.Memory
}

type option func(*authhttp.Router)

func withLimits(l authhttp.RateLimits) option {
	return func(r *authhttp.Router) { r.Limits = l }
}

func newServer(t *testing.T, migrate bool, opts ...option) *testServer {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	if migrate {
		require.NoError(t, st.ApplyMigrations())
	}

	hasher, err := cryptox.NewHasher("test-pepper")
	require.NoError(t, err)
	signer, err := jwtx.NewSignerHS256([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	mem := kv.NewMemory()
	m, err := metrics.New("gatekeeper", "test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })

	mgr := &service.Manager{
		Credentials: &service.Credentials{Store: st, Hasher: hasher},
		Codec:       jwtx.NewCodec(signer, "gatekeeper-test"),
		Ledger:      ledger.New(mem, time.Hour),
		Metrics:     m,
		TTL:         time.Hour,
	}

	router := authhttp.NewRouter(authhttp.BuildInfo{
		Service:     "gatekeeper",
		Version:     "test",
		Environment: "testing",
	}, slogx.Discard())
	router.Auth = mgr
	router.Accounts = mgr
	router.Health = health.NewAggregator(time.Second, 2*time.Second,
		health.DatabaseProbe(st),
		health.CacheProbe(mem),
		health.MemoryProbe(0, 0),
	)
	router.Schema = st
	router.Counter = mem
	router.Metrics = m
	router.Limits = authhttp.RateLimits{}
	for _, opt := range opts {
		opt(router)
	}
	router.ApplyRoutes()

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testServer{URL: srv.URL, client: authsdk.NewClient(srv.URL), kv: mem}
}

func (s *testServer) post(t *testing.T, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(s.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeError(t *testing.T, resp *http.Response) authsdk.APIError {
	t.Helper()
	var apiErr authsdk.APIError
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&apiErr))
	return apiErr
}

func TestEndToEndScenario(t *testing.T) {
	ctx := context.Background()
	s := newServer(t, true)
	c := s.client

	u, err := c.Register(ctx, authsdk.RegisterRequest{Identifier: "alice", Password: "secret123"})
	require.NoError(t, err)
	require.Equal(t, "alice", u.Identifier)
	require.NotEmpty(t, u.ID)

	tok, err := c.Login(ctx, authsdk.LoginRequest{Identifier: "alice", Password: "secret123"})
	require.NoError(t, err)
	require.Equal(t, "Bearer", tok.TokenType)
	require.True(t, tok.ExpiresAt.After(time.Now()))

	p, err := c.Profile(ctx, tok.Token)
	require.NoError(t, err)
	require.Equal(t, u.ID, p.ID)

	require.NoError(t, c.Logout(ctx, tok.Token))

	_, err = c.Profile(ctx, tok.Token)
	require.True(t, authsdk.IsCode(err, authsdk.ErrorCodeInvalidToken), "got %v", err)
}

func TestRegisterErrors(t *testing.T) {
	ctx := context.Background()
	s := newServer(t, true)

	_, err := s.client.Register(ctx, authsdk.RegisterRequest{Identifier: "alice@example.com", Password: "secret123"})
	require.NoError(t, err)

	t.Run("duplicate", func(t *testing.T) {
		_, err := s.client.Register(ctx, authsdk.RegisterRequest{Identifier: "Alice@Example.com", Password: "secret123"})
		require.True(t, authsdk.IsCode(err, authsdk.ErrorCodeDuplicateIdentifier), "got %v", err)
	})

	t.Run("weak password", func(t *testing.T) {
		resp := s.post(t, "/auth/register", `{"identifier":"bob","password":"short"}`)
		require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		require.Equal(t, authsdk.ErrorCodeWeakCredential, decodeError(t, resp).Code)
	})

	t.Run("bad email", func(t *testing.T) {
		resp := s.post(t, "/auth/register", `{"identifier":"bob@","password":"secret123"}`)
		require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		apiErr := decodeError(t, resp)
		require.Equal(t, authsdk.ErrorCodeValidationFailed, apiErr.Code)
		require.Contains(t, apiErr.Fields, "identifier")
	})

	t.Run("missing fields", func(t *testing.T) {
		resp := s.post(t, "/auth/register", `{}`)
		require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		apiErr := decodeError(t, resp)
		require.Contains(t, apiErr.Fields, "identifier")
		require.Contains(t, apiErr.Fields, "password")
	})

	t.Run("malformed body", func(t *testing.T) {
		resp := s.post(t, "/auth/register", `{"identifier":`)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestLoginFailureIsUniform(t *testing.T) {
	ctx := context.Background()
	s := newServer(t, true)
	_, err := s.client.Register(ctx, authsdk.RegisterRequest{Identifier: "alice", Password: "secret123"})
	require.NoError(t, err)

	wrong := s.post(t, "/auth/login", `{"identifier":"alice","password":"wrong-password"}`)
	unknown := s.post(t, "/auth/login", `{"identifier":"nobody","password":"secret123"}`)

	require.Equal(t, http.StatusUnauthorized, wrong.StatusCode)
	require.Equal(t, http.StatusUnauthorized, unknown.StatusCode)
	require.Equal(t, decodeError(t, wrong), decodeError(t, unknown))
}

func TestRefreshRotation(t *testing.T) {
	ctx := context.Background()
	s := newServer(t, true)
	_, err := s.client.Register(ctx, authsdk.RegisterRequest{Identifier: "alice", Password: "secret123"})
	require.NoError(t, err)
	old, err := s.client.Login(ctx, authsdk.LoginRequest{Identifier: "alice", Password: "secret123"})
	require.NoError(t, err)

	fresh, err := s.client.Refresh(ctx, old.Token)
	require.NoError(t, err)
	require.NotEqual(t, old.Token, fresh.Token)

	_, err = s.client.Profile(ctx, fresh.Token)
	require.NoError(t, err)

	_, err = s.client.Refresh(ctx, old.Token)
	require.True(t, authsdk.IsCode(err, authsdk.ErrorCodeInvalidToken), "got %v", err)
}

func TestGuardRejectsMissingAndBadTokens(t *testing.T) {
	s := newServer(t, true)

	for name, header := range map[string]string{
		"missing":    "",
		"not bearer": "Basic YWxpY2U6c2VjcmV0",
		"garbage":    "Bearer not.a.token",
	} {
		t.Run(name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, s.URL+"/auth/profile", nil)
			require.NoError(t, err)
			if header != "" {
				req.Header.Set("Authorization", header)
			}

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			require.Contains(t, resp.Header.Get("WWW-Authenticate"), "invalid_token")
			require.Equal(t, authsdk.ErrorCodeInvalidToken, decodeError(t, resp).Code)
		})
	}
}

func TestUserAlias(t *testing.T) {
	ctx := context.Background()
	s := newServer(t, true)
	_, err := s.client.Register(ctx, authsdk.RegisterRequest{Identifier: "alice", Password: "secret123", Name: "Alice"})
	require.NoError(t, err)
	tok, err := s.client.Login(ctx, authsdk.LoginRequest{Identifier: "alice", Password: "secret123"})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, s.URL+"/user", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+tok.Token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var u authsdk.UserResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&u))
	require.Equal(t, "Alice", u.Name)
}

func TestLogoutAllAndChangePassword(t *testing.T) {
	ctx := context.Background()
	s := newServer(t, true)
	c := s.client
	_, err := c.Register(ctx, authsdk.RegisterRequest{Identifier: "alice", Password: "secret123"})
	require.NoError(t, err)

	a, err := c.Login(ctx, authsdk.LoginRequest{Identifier: "alice", Password: "secret123"})
	require.NoError(t, err)
	b, err := c.Login(ctx, authsdk.LoginRequest{Identifier: "alice", Password: "secret123"})
	require.NoError(t, err)

	require.NoError(t, c.LogoutAll(ctx, a.Token))
	_, err = c.Profile(ctx, b.Token)
	require.True(t, authsdk.IsCode(err, authsdk.ErrorCodeInvalidToken), "got %v", err)

	tok, err := c.Login(ctx, authsdk.LoginRequest{Identifier: "alice", Password: "secret123"})
	require.NoError(t, err)

	err = c.ChangePassword(ctx, tok.Token, authsdk.ChangePasswordRequest{CurrentPassword: "secret123", NewPassword: "short"})
	require.True(t, authsdk.IsCode(err, authsdk.ErrorCodeWeakCredential), "got %v", err)

	err = c.ChangePassword(ctx, tok.Token, authsdk.ChangePasswordRequest{CurrentPassword: "secret123", NewPassword: "new-secret-456"})
	require.NoError(t, err)

	_, err = c.Profile(ctx, tok.Token)
	require.True(t, authsdk.IsCode(err, authsdk.ErrorCodeInvalidToken), "got %v", err)

	_, err = c.Authenticate(ctx, "alice", "new-secret-456")
	require.NoError(t, err)
}

func TestProbes(t *testing.T) {
	ctx := context.Background()
	s := newServer(t, true)
	c := s.client

	h, err := c.Health(ctx)
	require.NoError(t, err)
	require.Equal(t, authsdk.StatusHealthy, h.Status)
	require.Equal(t, "gatekeeper", h.Service)
	for _, name := range []string{"database", "cache", "memory"} {
		require.Contains(t, h.Checks, name)
	}

	r, err := c.Ready(ctx)
	require.NoError(t, err)
	require.Equal(t, authsdk.StatusReady, r.Status)
	require.Equal(t, r.LatestVersion, r.SchemaVersion)

	l, err := c.Liveness(ctx)
	require.NoError(t, err)
	require.Equal(t, "ok", l.Status)

	st, err := c.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, "ok", st.Status)
	require.GreaterOrEqual(t, st.Requests, int64(3))

	_, err = c.Register(ctx, authsdk.RegisterRequest{Identifier: "alice", Password: "secret123"})
	require.NoError(t, err)

	m, err := c.Metrics(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, m.Counters["auth.operations{op=register,outcome=success}"])
	require.Positive(t, m.RequestsTotal)
	require.Positive(t, m.MemoryUsage)
}

func TestRootAndNotFound(t *testing.T) {
	s := newServer(t, true)

	resp, err := http.Get(s.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var root authsdk.RootResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&root))
	require.Equal(t, "testing", root.Environment)

	missing, err := http.Get(s.URL + "/nope")
	require.NoError(t, err)
	defer missing.Body.Close()
	require.Equal(t, http.StatusNotFound, missing.StatusCode)
	require.Equal(t, authsdk.ErrorCodeNotFound, decodeError(t, missing).Code)
}

func TestNotReadyWithoutMigrations(t *testing.T) {
	s := newServer(t, false)

	r, err := s.client.Ready(context.Background())
	require.NoError(t, err)
	require.Equal(t, authsdk.StatusNotReady, r.Status)
	require.NotEmpty(t, r.Error)
}

func TestHealthUnhealthyWhenCacheDown(t *testing.T) {
	s := newServer(t, true)
	require.NoError(t, s.kv.Close())

	h, err := s.client.Health(context.Background())
	require.NoError(t, err)
	require.Equal(t, authsdk.StatusUnhealthy, h.Status)
	require.Equal(t, authsdk.StatusUnhealthy, h.Checks["cache"].Status)
	require.Equal(t, authsdk.StatusHealthy, h.Checks["database"].Status)
}

func TestLedgerDownFailsClosed(t *testing.T) {
	ctx := context.Background()
	s := newServer(t, true)
	_, err := s.client.Register(ctx, authsdk.RegisterRequest{Identifier: "alice", Password: "secret123"})
	require.NoError(t, err)
	tok, err := s.client.Login(ctx, authsdk.LoginRequest{Identifier: "alice", Password: "secret123"})
	require.NoError(t, err)

	require.NoError(t, s.kv.Close())

	_, err = s.client.Profile(ctx, tok.Token)
	require.True(t, authsdk.IsCode(err, authsdk.ErrorCodeInvalidToken), "got %v", err)

	_, err = s.client.Login(ctx, authsdk.LoginRequest{Identifier: "alice", Password: "secret123"})
	require.True(t, authsdk.IsCode(err, authsdk.ErrorCodeUnavailable), "got %v", err)
	var apiErr *authsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
}

func TestCredentialRateLimit(t *testing.T) {
	s := newServer(t, true, withLimits(authhttp.RateLimits{
		Credentials: httpx.RateLimit{Requests: 2, Window: time.Minute, Burst: 2},
	}))

	body := `{"identifier":"alice","password":"wrong-password"}`
	for range 2 {
		resp := s.post(t, "/auth/login", body)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}

	resp := s.post(t, "/auth/login", body)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get("Retry-After"))

	other := s.post(t, "/auth/login", `{"identifier":"bob","password":"wrong-password"}`)
	require.Equal(t, http.StatusUnauthorized, other.StatusCode)
}
