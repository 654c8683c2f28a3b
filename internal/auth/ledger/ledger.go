// Package ledger records revoked tokens and per-subject revocation epochs in
// the shared kv.Store. It is the only shared mutable state of the service.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/auth/kv"
)

const (
	revokedPrefix = "revoked:"
	epochPrefix   = "revoked_all:"

	// minRecordTTL keeps a record for tokens that are already at or past expiry.
	minRecordTTL = time.Second
)

var ErrUnavailable = errors.New("ledger: unavailable")

// Ledger is the revocation store consulted on every verification.
type Ledger interface {
	// Revoke marks jti revoked until the token's natural expiry. first is true
	// only for the call that created the record, which makes Revoke usable
	// as an atomic claim.
	Revoke(ctx context.Context, jti string, until time.Time) (first bool, err error)

	IsRevoked(ctx context.Context, jti string) (bool, error)

	// RevokeAllForSubject invalidates every token of subject issued at or
	// before asOf. The epoch is kept at whole seconds, rounded up.
	RevokeAllForSubject(ctx context.Context, subject string, asOf time.Time) error

	// RevokedSince returns the subject's epoch: tokens issued before it are
	// revoked. Zero when the subject has none.
	RevokedSince(ctx context.Context, subject string) (time.Time, error)
}

// KV is a Ledger stored in a kv.Store.
type KV struct {
	store    kv.Store
	epochTTL time.Duration
	now      func() time.Time
}

var _ Ledger = (*KV)(nil)

// New returns a ledger over store. maxTokenLifetime bounds how long a
// subject epoch must be kept.
func New(store kv.Store, maxTokenLifetime time.Duration) *KV {
	return &KV{
		store:    store,
		epochTTL: maxTokenLifetime + minRecordTTL,
		now:      time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (l *KV) WithClock(now func() time.Time) *KV {
	l.now = now
	return l
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func (l *KV) Revoke(ctx context.Context, jti string, until time.Time) (bool, error) {
	now := l.now()
	ttl := max(until.Sub(now), minRecordTTL)

	first, err := l.store.SetNX(ctx, revokedPrefix+jti, strconv.FormatInt(now.Unix(), 10), ttl)
	if err != nil {
		return false, unavailable(err)
	}
	return first, nil
}

func (l *KV) IsRevoked(ctx context.Context, jti string) (bool, error) {
	_, err := l.store.Get(ctx, revokedPrefix+jti)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, kv.ErrNotFound):
		return false, nil
	default:
		return false, unavailable(err)
	}
}

// Epoch is the first second from which tokens of a subject stay valid
// after a revoke-all at asOf.
func Epoch(asOf time.Time) time.Time {
	return time.Unix(asOf.Unix()+1, 0)
}

func (l *KV) RevokeAllForSubject(ctx context.Context, subject string, asOf time.Time) error {
	if _, err := l.store.SetMax(ctx, epochPrefix+subject, Epoch(asOf).Unix(), l.epochTTL); err != nil {
		return unavailable(err)
	}
	return nil
}

func (l *KV) RevokedSince(ctx context.Context, subject string) (time.Time, error) {
	v, err := l.store.Get(ctx, epochPrefix+subject)
	switch {
	case errors.Is(err, kv.ErrNotFound):
		return time.Time{}, nil
	case err != nil:
		return time.Time{}, unavailable(err)
	}

	secs, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, unavailable(fmt.Errorf("corrupt epoch for %s: %w", subject, err))
	}
	return time.Unix(secs, 0), nil
}
