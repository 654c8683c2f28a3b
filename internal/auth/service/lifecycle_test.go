package service_test

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/auth/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/auth/kv"
	"github.com/aussiebroadwan/gatekeeper/internal/auth/ledger"
	"github.com/aussiebroadwan/gatekeeper/internal/auth/service"
	"github.com/aussiebroadwan/gatekeeper/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/gatekeeper/pkg/cryptox"
	"github.com/aussiebroadwan/gatekeeper/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer = "gatekeeper-test"
	testTTL    = 10 * time.Minute
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) RecordAuth(_ context.Context, op, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, op+":"+outcome)
}

type harness struct {
	mgr   *service.Manager
	store *sqlite.Store
	kv    *kv.Memory
	clock *clock
	rec   *recorder
}

func newCodec(t *testing.T, secret string) *jwtx.Codec {
	t.Helper()
	s, err := jwtx.NewSignerHS256([]byte(secret))
	require.NoError(t, err)
	return jwtx.NewCodec(s, testIssuer)
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	hasher, err := cryptox.NewHasher("test-pepper")
	require.NoError(t, err)

	clk := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 250*int(time.Millisecond), time.UTC)}
	mem := kv.NewMemory().WithClock(clk.Now)
	rec := &recorder{}

	mgr := &service.Manager{
		Credentials: &service.Credentials{Store: st, Hasher: hasher, Now: clk.Now},
		Codec:       newCodec(t, "0123456789abcdef0123456789abcdef"),
		Ledger:      ledger.New(mem, testTTL).WithClock(clk.Now),
		Metrics:     rec,
		TTL:         testTTL,
		Skew:        5 * time.Second,
		Now:         clk.Now,
	}
	return &harness{mgr: mgr, store: st, kv: mem, clock: clk, rec: rec}
}

func (h *harness) register(t *testing.T, identifier, password string) domain.User {
	t.Helper()
	u, err := h.mgr.Register(context.Background(), identifier, password, domain.Profile{Name: "Alice"})
	require.NoError(t, err)
	return u
}

func (h *harness) login(t *testing.T, identifier, password string) domain.Token {
	t.Helper()
	tok, err := h.mgr.Login(context.Background(), identifier, password)
	require.NoError(t, err)
	return tok
}

func TestRegisterLoginVerify(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	u := h.register(t, " Alice ", "secret123")
	require.Equal(t, "alice", u.Identifier)
	require.Equal(t, "Alice", u.Name)
	require.NotEmpty(t, u.ID)

	tok := h.login(t, "ALICE", "secret123")
	require.Equal(t, u.ID, tok.Subject)
	require.NotEmpty(t, tok.TokenID)
	require.True(t, tok.IssuedAt.Add(testTTL).Equal(tok.ExpiresAt))

	s, err := h.mgr.Verify(ctx, tok.Raw)
	require.NoError(t, err)
	require.Equal(t, u.ID, s.User.ID)
	require.Equal(t, tok.TokenID, s.Token.TokenID)

	p, err := h.mgr.Profile(ctx, tok.Raw)
	require.NoError(t, err)
	require.Equal(t, "alice", p.Identifier)
	require.Empty(t, h.kv.Len(), "verification must not write to the ledger")
}

func TestLoginFailuresAreUniform(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.register(t, "alice", "secret123")

	_, errWrong := h.mgr.Login(ctx, "alice", "not-the-password")
	_, errUnknown := h.mgr.Login(ctx, "mallory", "secret123")

	require.ErrorIs(t, errWrong, service.ErrInvalidCredentials)
	require.ErrorIs(t, errUnknown, service.ErrInvalidCredentials)
	require.Equal(t, errWrong.Error(), errUnknown.Error())
}

func TestRegisterDuplicateLeavesStoreUnchanged(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	first := h.register(t, "alice", "secret123")

	_, err := h.mgr.Register(ctx, "ALICE", "another-password", domain.Profile{})
	require.ErrorIs(t, err, service.ErrDuplicateIdentifier)

	n, err := h.store.Users().CountUsers(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	tok := h.login(t, "alice", "secret123")
	require.Equal(t, first.ID, tok.Subject)
}

func TestRegisterValidation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	tests := []struct {
		name       string
		identifier string
		password   string
		want       error
	}{
		{"short password", "alice", "short", service.ErrWeakCredential},
		{"blank password", "alice", "          ", service.ErrWeakCredential},
		{"empty identifier", "   ", "secret123", service.ErrValidation},
		{"identifier with space", "al ice", "secret123", service.ErrValidation},
		{"identifier too long", strings.Repeat("a", 255), "secret123", service.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.mgr.Register(ctx, tt.identifier, tt.password, domain.Profile{})
			require.ErrorIs(t, err, tt.want)
		})
	}

	n, err := h.store.Users().CountUsers(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestLogoutRevokesAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.register(t, "alice", "secret123")
	tok := h.login(t, "alice", "secret123")

	require.NoError(t, h.mgr.Logout(ctx, tok.Raw))

	_, err := h.mgr.Verify(ctx, tok.Raw)
	require.ErrorIs(t, err, service.ErrRevoked)
	require.True(t, service.IsUnauthenticated(err))

	require.NoError(t, h.mgr.Logout(ctx, tok.Raw))
	require.ErrorIs(t, h.mgr.Logout(ctx, "not-a-token"), service.ErrMalformed)
}

func TestLogoutDoesNotAffectOtherTokens(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.register(t, "alice", "secret123")
	a := h.login(t, "alice", "secret123")
	b := h.login(t, "alice", "secret123")

	require.NoError(t, h.mgr.Logout(ctx, a.Raw))

	_, err := h.mgr.Verify(ctx, b.Raw)
	require.NoError(t, err)
}

func TestRefreshRotates(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.register(t, "alice", "secret123")
	old := h.login(t, "alice", "secret123")

	h.clock.Advance(time.Minute)
	fresh, err := h.mgr.Refresh(ctx, old.Raw)
	require.NoError(t, err)
	require.NotEqual(t, old.TokenID, fresh.TokenID)
	require.True(t, fresh.ExpiresAt.After(old.ExpiresAt))

	_, err = h.mgr.Verify(ctx, fresh.Raw)
	require.NoError(t, err)

	_, err = h.mgr.Verify(ctx, old.Raw)
	require.ErrorIs(t, err, service.ErrRevoked)

	_, err = h.mgr.Refresh(ctx, old.Raw)
	require.ErrorIs(t, err, service.ErrRevoked)
}

func TestRefreshRaceHasSingleWinner(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.register(t, "alice", "secret123")
	tok := h.login(t, "alice", "secret123")

	const workers = 16
	var (
		wg      sync.WaitGroup
		wins    atomic.Int32
		revoked atomic.Int32
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.mgr.Refresh(ctx, tok.Raw)
			switch {
			case err == nil:
				wins.Add(1)
			case service.IsUnauthenticated(err):
				revoked.Add(1)
			}
		}()
	}
	wg.Wait()

	require.EqualValues(t, 1, wins.Load())
	require.EqualValues(t, workers-1, revoked.Load())
}

func TestExpiredToken(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.register(t, "alice", "secret123")
	tok := h.login(t, "alice", "secret123")

	h.clock.Advance(testTTL)

	_, err := h.mgr.Verify(ctx, tok.Raw)
	require.ErrorIs(t, err, service.ErrExpired)

	_, err = h.mgr.Refresh(ctx, tok.Raw)
	require.ErrorIs(t, err, service.ErrExpired)

	require.NoError(t, h.mgr.Logout(ctx, tok.Raw))
}

func TestTamperedTokenFailsSignature(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.register(t, "alice", "secret123")
	tok := h.login(t, "alice", "secret123")

	parts := strings.Split(tok.Raw, ".")
	require.Len(t, parts, 3)

	flip := func(segment string, i int) string {
		b := []byte(segment)
		if b[i] == 'A' {
			b[i] = 'B'
		} else {
			b[i] = 'A'
		}
		return string(b)
	}

	for i := range len(parts[0]) {
		raw := flip(parts[0], i) + "." + parts[1] + "." + parts[2]
		_, err := h.mgr.Verify(ctx, raw)
		require.ErrorIs(t, err, service.ErrSignatureInvalid, "header byte %d", i)
	}
	for i := range len(parts[1]) {
		raw := parts[0] + "." + flip(parts[1], i) + "." + parts[2]
		_, err := h.mgr.Verify(ctx, raw)
		require.ErrorIs(t, err, service.ErrSignatureInvalid, "payload byte %d", i)
	}
}

func TestForeignKeyFailsSignature(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	u := h.register(t, "alice", "secret123")

	foreign := newCodec(t, "ffffffffffffffffffffffffffffffff")
	raw, err := foreign.Encode(jwtx.NewClaims(u.ID, testIssuer, testTTL, h.clock.Now()))
	require.NoError(t, err)

	_, err = h.mgr.Verify(ctx, raw)
	require.ErrorIs(t, err, service.ErrSignatureInvalid)

	require.NoError(t, h.mgr.Logout(ctx, raw))
}

func TestFutureIssuedAtIsMalformed(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	u := h.register(t, "alice", "secret123")

	claims := jwtx.NewClaims(u.ID, testIssuer, testTTL, h.clock.Now().Add(time.Minute))
	raw, err := h.mgr.Codec.Encode(claims)
	require.NoError(t, err)

	_, err = h.mgr.Verify(ctx, raw)
	require.ErrorIs(t, err, service.ErrMalformed)
}

func TestDeletedSubjectIsRevoked(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	raw, err := h.mgr.Codec.Encode(jwtx.NewClaims("01J000000000000000000000GH", testIssuer, testTTL, h.clock.Now()))
	require.NoError(t, err)

	_, err = h.mgr.Verify(ctx, raw)
	require.ErrorIs(t, err, service.ErrRevoked)
}

func TestLedgerUnavailableFailsClosed(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.register(t, "alice", "secret123")
	tok := h.login(t, "alice", "secret123")

	require.NoError(t, h.kv.Close())

	_, err := h.mgr.Verify(ctx, tok.Raw)
	require.ErrorIs(t, err, service.ErrLedgerUnavailable)
	require.True(t, service.IsUnauthenticated(err))

	_, err = h.mgr.Refresh(ctx, tok.Raw)
	require.ErrorIs(t, err, service.ErrLedgerUnavailable)

	_, err = h.mgr.Login(ctx, "alice", "secret123")
	require.ErrorIs(t, err, service.ErrLedgerUnavailable)
}

func TestLogoutAll(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.register(t, "alice", "secret123")
	h.register(t, "bob", "secret123")
	a := h.login(t, "alice", "secret123")
	b := h.login(t, "alice", "secret123")
	other := h.login(t, "bob", "secret123")

	require.NoError(t, h.mgr.LogoutAll(ctx, a.Raw))

	for _, raw := range []string{a.Raw, b.Raw} {
		_, err := h.mgr.Verify(ctx, raw)
		require.ErrorIs(t, err, service.ErrRevoked)
	}

	_, err := h.mgr.Verify(ctx, other.Raw)
	require.NoError(t, err)

	// A login in the same second as the revoke-all must still be usable.
	again := h.login(t, "alice", "secret123")
	_, err = h.mgr.Verify(ctx, again.Raw)
	require.NoError(t, err)
	require.False(t, again.IssuedAt.Before(ledger.Epoch(h.clock.Now())))
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.register(t, "alice", "secret123")
	tok := h.login(t, "alice", "secret123")

	err := h.mgr.ChangePassword(ctx, tok.Raw, "wrong-password", "new-secret-456")
	require.ErrorIs(t, err, service.ErrInvalidCredentials)

	err = h.mgr.ChangePassword(ctx, tok.Raw, "secret123", "short")
	require.ErrorIs(t, err, service.ErrWeakCredential)

	require.NoError(t, h.mgr.ChangePassword(ctx, tok.Raw, "secret123", "new-secret-456"))

	_, err = h.mgr.Verify(ctx, tok.Raw)
	require.ErrorIs(t, err, service.ErrRevoked)

	_, err = h.mgr.Login(ctx, "alice", "secret123")
	require.ErrorIs(t, err, service.ErrInvalidCredentials)

	fresh := h.login(t, "alice", "new-secret-456")
	_, err = h.mgr.Verify(ctx, fresh.Raw)
	require.NoError(t, err)
}

func TestCustomPasswordPolicy(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.mgr.Policy = service.Policies{
		service.DefaultPasswordPolicy(),
		service.PolicyFunc(func(pw string) error {
			if strings.EqualFold(pw, "password") {
				return service.ErrWeakCredential
			}
			return nil
		}),
	}

	_, err := h.mgr.Register(ctx, "alice", "Password", domain.Profile{})
	require.ErrorIs(t, err, service.ErrWeakCredential)

	_, err = h.mgr.Register(ctx, "alice", "correct horse", domain.Profile{})
	require.NoError(t, err)
}

func TestMetricsRecorded(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.register(t, "alice", "secret123")
	_, _ = h.mgr.Login(ctx, "alice", "nope-nope")

	h.rec.mu.Lock()
	defer h.rec.mu.Unlock()
	require.Equal(t, []string{"register:success", "login:invalid_credentials"}, h.rec.events)
}

// epochOutage fails exactly one RevokedSince call, the nth.
type epochOutage struct {
	ledger.Ledger
	n     int32
	calls atomic.Int32
}

func (l *epochOutage) RevokedSince(ctx context.Context, subject string) (time.Time, error) {
	if l.calls.Add(1) == l.n {
		return time.Time{}, kv.ErrUnavailable
	}
	return l.Ledger.RevokedSince(ctx, subject)
}

func TestRefreshFailureKeepsOldToken(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.register(t, "alice", "secret123")
	tok := h.login(t, "alice", "secret123")

	// Call 1 is verification of the old token, call 2 is issuance.
	h.mgr.Ledger = &epochOutage{Ledger: h.mgr.Ledger, n: 2}

	_, err := h.mgr.Refresh(ctx, tok.Raw)
	require.ErrorIs(t, err, service.ErrLedgerUnavailable)

	_, err = h.mgr.Verify(ctx, tok.Raw)
	require.NoError(t, err)

	fresh, err := h.mgr.Refresh(ctx, tok.Raw)
	require.NoError(t, err)
	_, err = h.mgr.Verify(ctx, fresh.Raw)
	require.NoError(t, err)
}

func TestSubSecondSkewAfterLogoutAll(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.mgr.Skew = 500 * time.Millisecond
	h.register(t, "alice", "secret123")
	tok := h.login(t, "alice", "secret123")

	require.NoError(t, h.mgr.LogoutAll(ctx, tok.Raw))

	again := h.login(t, "alice", "secret123")
	require.True(t, again.IssuedAt.After(h.clock.Now()))

	_, err := h.mgr.Verify(ctx, again.Raw)
	require.NoError(t, err)
}

func TestVerifiedSessionIsReused(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.register(t, "alice", "secret123")
	a := h.login(t, "alice", "secret123")
	b := h.login(t, "alice", "secret123")

	s, err := h.mgr.Verify(ctx, a.Raw)
	require.NoError(t, err)
	ctx = service.WithSession(ctx, s)

	require.NoError(t, h.kv.Close())

	u, err := h.mgr.Profile(ctx, a.Raw)
	require.NoError(t, err)
	require.Equal(t, s.User.ID, u.ID)

	_, err = h.mgr.Profile(ctx, b.Raw)
	require.ErrorIs(t, err, service.ErrLedgerUnavailable)
}
