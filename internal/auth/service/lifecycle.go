package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/auth/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/auth/ledger"
	"github.com/aussiebroadwan/gatekeeper/internal/auth/store"
	"github.com/aussiebroadwan/gatekeeper/pkg/jwtx"
	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"
)

// DefaultClockSkew is the leeway applied to iat and nbf. Never to exp.
const DefaultClockSkew = 5 * time.Second

// Authenticator is what the HTTP gateway needs from the lifecycle manager.
type Authenticator interface {
	Register(ctx context.Context, identifier, rawPassword string, profile domain.Profile) (domain.User, error)
	Login(ctx context.Context, identifier, rawPassword string) (domain.Token, error)
	Verify(ctx context.Context, raw string) (domain.Session, error)
	Refresh(ctx context.Context, raw string) (domain.Token, error)
	Logout(ctx context.Context, raw string) error
	Profile(ctx context.Context, raw string) (domain.User, error)
}

// AccountManager covers the subject-wide operations.
type AccountManager interface {
	LogoutAll(ctx context.Context, raw string) error
	ChangePassword(ctx context.Context, raw, currentPassword, newPassword string) error
}

// Recorder receives one event per lifecycle operation outcome.
type Recorder interface {
	RecordAuth(ctx context.Context, op, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) RecordAuth(context.Context, string, string) {}

// Manager issues, verifies, rotates and revokes session tokens. It keeps
// no state of its own; the ledger is the only shared mutable resource.
type Manager struct {
	Credentials *Credentials
	Codec       *jwtx.Codec
	Ledger      ledger.Ledger
	Policy      PasswordPolicy
	Metrics     Recorder

	TTL  time.Duration
	Skew time.Duration // zero means DefaultClockSkew
	Now  func() time.Time
}

var (
	_ Authenticator  = (*Manager)(nil)
	_ AccountManager = (*Manager)(nil)
)

func (m *Manager) now() time.Time {
	if m.Now != nil {
		return m.Now().UTC()
	}
	return time.Now().UTC()
}

func (m *Manager) ttl() time.Duration {
	if m.TTL > 0 {
		return m.TTL
	}
	return jwtx.DefaultAccessTokenTTL
}

// MinClockSkew covers the forward bump of iat to a revoke-all epoch, which
// is rounded up to the next second.
const MinClockSkew = time.Second

func (m *Manager) skew() time.Duration {
	if m.Skew > 0 {
		return max(m.Skew, MinClockSkew)
	}
	return DefaultClockSkew
}

func (m *Manager) policy() PasswordPolicy {
	if m.Policy != nil {
		return m.Policy
	}
	return DefaultPasswordPolicy()
}

func (m *Manager) record(ctx context.Context, op string, err error) {
	rec := m.Metrics
	if rec == nil {
		rec = nopRecorder{}
	}
	outcome := "success"
	if err != nil {
		outcome = outcomeOf(err)
	}
	rec.RecordAuth(ctx, op, outcome)
}

func outcomeOf(err error) string {
	for _, e := range []error{
		ErrDuplicateIdentifier, ErrInvalidCredentials, ErrValidation, ErrWeakCredential,
		ErrMalformed, ErrSignatureInvalid, ErrExpired, ErrRevoked, ErrLedgerUnavailable,
	} {
		if errors.Is(err, e) {
			return e.Error()
		}
	}
	return "error"
}

func ledgerErr(err error) error {
	return fmt.Errorf("%w: %w", ErrLedgerUnavailable, err)
}

// Register creates an identity. It never issues a token.
func (m *Manager) Register(ctx context.Context, identifier, rawPassword string, profile domain.Profile) (u domain.User, err error) {
	defer func() { m.record(ctx, "register", err) }()

	if err := m.policy().Check(rawPassword); err != nil {
		return domain.User{}, err
	}

	u, err = m.Credentials.Create(ctx, identifier, rawPassword, profile)
	if err != nil {
		return domain.User{}, err
	}

	slogx.FromContext(ctx).Info("user registered", slog.String("user_id", u.ID))
	return u, nil
}

// Login checks credentials and mints a fresh token. Unknown identifiers and
// wrong passwords fail identically, after the same amount of hashing work.
func (m *Manager) Login(ctx context.Context, identifier, rawPassword string) (tok domain.Token, err error) {
	defer func() { m.record(ctx, "login", err) }()

	u, err := m.Credentials.FindByIdentifier(ctx, identifier)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Token{}, m.Credentials.VerifyDummy(rawPassword)
	}
	if err != nil {
		return domain.Token{}, fmt.Errorf("find user: %w", err)
	}

	if err := m.Credentials.VerifyPassword(u, rawPassword); err != nil {
		slogx.FromContext(ctx).Info("login failed", slog.String("user_id", u.ID))
		return domain.Token{}, ErrInvalidCredentials
	}

	return m.issue(ctx, u.ID)
}

// issue signs a new token for subject. The issued-at time is never earlier
// than the subject's revoke-all epoch, so a login right after a revoke-all
// in the same second still yields a usable token.
func (m *Manager) issue(ctx context.Context, subject string) (domain.Token, error) {
	epoch, err := m.Ledger.RevokedSince(ctx, subject)
	if err != nil {
		return domain.Token{}, ledgerErr(err)
	}

	now := m.now()
	claims := jwtx.NewClaims(subject, m.Codec.Issuer(), m.ttl(), now)
	if iat := claims.IssuedAtTime(); !epoch.IsZero() && iat.Before(epoch) {
		claims.IssuedAt.Time = epoch
		claims.NotBefore.Time = epoch
	}

	raw, err := m.Codec.Encode(claims)
	if err != nil {
		return domain.Token{}, fmt.Errorf("sign token: %w", err)
	}

	return domain.Token{
		Subject:   subject,
		TokenID:   claims.ID,
		IssuedAt:  claims.IssuedAtTime(),
		ExpiresAt: claims.ExpiresAtTime(),
		Raw:       raw,
	}, nil
}

// decode checks the signature and claim shape only.
func (m *Manager) decode(raw string) (jwtx.Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return jwtx.Claims{}, ErrMalformed
	}

	claims, err := m.Codec.Decode(raw)
	switch {
	case err == nil:
		return claims, nil
	case errors.Is(err, jwtx.ErrAlgMismatch),
		errors.Is(err, jwtx.ErrUnknownKID),
		errors.Is(err, jwtx.ErrInvalidSig),
		errors.Is(err, jwtx.ErrIssuer):
		return jwtx.Claims{}, fmt.Errorf("%w: %w", ErrSignatureInvalid, err)
	default:
		return jwtx.Claims{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
}

// verifyClaims runs every check after the signature, cheapest first: the
// time window, then the ledger.
func (m *Manager) verifyClaims(ctx context.Context, claims jwtx.Claims) error {
	switch err := claims.ValidateTimes(m.now(), m.skew()); {
	case errors.Is(err, jwtx.ErrExpired):
		return ErrExpired
	case err != nil:
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	revoked, err := m.Ledger.IsRevoked(ctx, claims.ID)
	if err != nil {
		return ledgerErr(err)
	}
	if revoked {
		return ErrRevoked
	}

	epoch, err := m.Ledger.RevokedSince(ctx, claims.Subject)
	if err != nil {
		return ledgerErr(err)
	}
	if !epoch.IsZero() && claims.IssuedAtTime().Before(epoch) {
		return ErrRevoked
	}
	return nil
}

// Verify authenticates raw and loads its identity.
func (m *Manager) Verify(ctx context.Context, raw string) (s domain.Session, err error) {
	defer func() { m.record(ctx, "verify", err) }()
	return m.verify(ctx, raw)
}

func (m *Manager) verify(ctx context.Context, raw string) (domain.Session, error) {
	if s, ok := SessionFromContext(ctx); ok && s.Token.Raw != "" && s.Token.Raw == strings.TrimSpace(raw) {
		return s, nil
	}

	claims, err := m.decode(raw)
	if err != nil {
		return domain.Session{}, err
	}
	if err := m.verifyClaims(ctx, claims); err != nil {
		return domain.Session{}, err
	}

	u, err := m.Credentials.FindByID(ctx, claims.Subject)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Session{}, ErrRevoked
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("load user: %w", err)
	}

	return domain.Session{
		User: u,
		Token: domain.Token{
			Subject:   claims.Subject,
			TokenID:   claims.ID,
			IssuedAt:  claims.IssuedAtTime(),
			ExpiresAt: claims.ExpiresAtTime(),
			Raw:       strings.TrimSpace(raw),
		},
	}, nil
}

// Refresh rotates raw. The replacement is signed first and the old token
// is claimed in the ledger last, so a failure leaves raw usable. Only the
// caller that wins the claim gets the new token; replays fail ErrRevoked.
func (m *Manager) Refresh(ctx context.Context, raw string) (tok domain.Token, err error) {
	defer func() { m.record(ctx, "refresh", err) }()

	s, err := m.verify(ctx, raw)
	if err != nil {
		return domain.Token{}, err
	}

	next, err := m.issue(ctx, s.User.ID)
	if err != nil {
		return domain.Token{}, err
	}

	first, err := m.Ledger.Revoke(ctx, s.Token.TokenID, s.Token.ExpiresAt)
	if err != nil {
		return domain.Token{}, ledgerErr(err)
	}
	if !first {
		return domain.Token{}, ErrRevoked
	}
	return next, nil
}

// Logout revokes raw. It is idempotent: tokens that are already revoked,
// expired or not signed by us are accepted as a no-op. Only a token that
// cannot be parsed at all fails, with ErrMalformed.
func (m *Manager) Logout(ctx context.Context, raw string) (err error) {
	defer func() { m.record(ctx, "logout", err) }()

	claims, err := m.decode(raw)
	switch {
	case errors.Is(err, ErrSignatureInvalid):
		return nil
	case err != nil:
		return ErrMalformed
	}

	if !m.now().Before(claims.ExpiresAtTime()) {
		return nil
	}

	if _, err := m.Ledger.Revoke(ctx, claims.ID, claims.ExpiresAtTime()); err != nil {
		return ledgerErr(err)
	}
	slogx.FromContext(ctx).Info("token revoked", slog.String("user_id", claims.Subject))
	return nil
}

// Profile returns the identity behind raw. No side effects.
func (m *Manager) Profile(ctx context.Context, raw string) (u domain.User, err error) {
	defer func() { m.record(ctx, "profile", err) }()

	s, err := m.verify(ctx, raw)
	if err != nil {
		return domain.User{}, err
	}
	return s.User, nil
}

// LogoutAll revokes every token issued to raw's subject up to now,
// including raw itself.
func (m *Manager) LogoutAll(ctx context.Context, raw string) (err error) {
	defer func() { m.record(ctx, "logout_all", err) }()

	s, err := m.verify(ctx, raw)
	if err != nil {
		return err
	}
	if err := m.Ledger.RevokeAllForSubject(ctx, s.User.ID, m.now()); err != nil {
		return ledgerErr(err)
	}
	slogx.FromContext(ctx).Info("all tokens revoked", slog.String("user_id", s.User.ID))
	return nil
}

// ChangePassword replaces the password of raw's subject and revokes all of
// the subject's tokens.
func (m *Manager) ChangePassword(ctx context.Context, raw, currentPassword, newPassword string) (err error) {
	defer func() { m.record(ctx, "change_password", err) }()

	s, err := m.verify(ctx, raw)
	if err != nil {
		return err
	}
	if err := m.Credentials.VerifyPassword(s.User, currentPassword); err != nil {
		return err
	}
	if err := m.policy().Check(newPassword); err != nil {
		return err
	}
	if err := m.Credentials.SetPassword(ctx, s.User.ID, newPassword); err != nil {
		return fmt.Errorf("set password: %w", err)
	}
	if err := m.Ledger.RevokeAllForSubject(ctx, s.User.ID, m.now()); err != nil {
		return ledgerErr(err)
	}

	slogx.FromContext(ctx).Info("password changed", slog.String("user_id", s.User.ID))
	return nil
}
