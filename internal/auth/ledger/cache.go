package ledger

import (
	"context"
	"sync"
	"time"
)

// MaxCacheTTL caps how long a "not revoked" answer may be served from a
// local cache. It is the fleet-wide bound on how long a revoked token can
// stay usable on an instance that did not perform the revocation.
const MaxCacheTTL = 5 * time.Second

const maxCacheEntries = 65536

type cached struct {
	revoked bool
	epoch   time.Time
	at      time.Time
}

// Cached memoizes ledger lookups for a short TTL. Revocations are written
// through immediately and evict the local entry. A revoked answer is never
// replaced by a stale "not revoked" one.
type Cached struct {
	inner Ledger
	ttl   time.Duration
	now   func() time.Time

	mu     sync.Mutex
	jtis   map[string]cached
	epochs map[string]cached
}

var _ Ledger = (*Cached)(nil)

// NewCached wraps inner. A ttl of zero or less disables caching and
// returns inner itself; larger values are clamped to MaxCacheTTL.
func NewCached(inner Ledger, ttl time.Duration) Ledger {
	if ttl <= 0 {
		return inner
	}
	return &Cached{
		inner:  inner,
		ttl:    min(ttl, MaxCacheTTL),
		now:    time.Now,
		jtis:   make(map[string]cached),
		epochs: make(map[string]cached),
	}
}

// TTL returns the effective cache lifetime.
func (c *Cached) TTL() time.Duration { return c.ttl }

func (c *Cached) fresh(e cached, now time.Time) bool {
	return now.Sub(e.at) < c.ttl
}

// sweep must be called with mu held.
func (c *Cached) sweep(m map[string]cached, now time.Time) {
	if len(m) < maxCacheEntries {
		return
	}
	for k, e := range m {
		if !c.fresh(e, now) {
			delete(m, k)
		}
	}
	if len(m) >= maxCacheEntries {
		clear(m)
	}
}

func (c *Cached) Revoke(ctx context.Context, jti string, until time.Time) (bool, error) {
	first, err := c.inner.Revoke(ctx, jti, until)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	c.jtis[jti] = cached{revoked: true, at: c.now()}
	c.mu.Unlock()
	return first, nil
}

func (c *Cached) IsRevoked(ctx context.Context, jti string) (bool, error) {
	now := c.now()

	c.mu.Lock()
	e, ok := c.jtis[jti]
	c.mu.Unlock()
	if ok && (e.revoked || c.fresh(e, now)) {
		return e.revoked, nil
	}

	revoked, err := c.inner.IsRevoked(ctx, jti)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	c.sweep(c.jtis, now)
	if prev, ok := c.jtis[jti]; !ok || !prev.revoked {
		c.jtis[jti] = cached{revoked: revoked, at: now}
	}
	c.mu.Unlock()
	return revoked, nil
}

func (c *Cached) RevokeAllForSubject(ctx context.Context, subject string, asOf time.Time) error {
	if err := c.inner.RevokeAllForSubject(ctx, subject, asOf); err != nil {
		return err
	}

	c.mu.Lock()
	delete(c.epochs, subject)
	c.mu.Unlock()
	return nil
}

func (c *Cached) RevokedSince(ctx context.Context, subject string) (time.Time, error) {
	now := c.now()

	c.mu.Lock()
	e, ok := c.epochs[subject]
	c.mu.Unlock()
	if ok && c.fresh(e, now) {
		return e.epoch, nil
	}

	epoch, err := c.inner.RevokedSince(ctx, subject)
	if err != nil {
		return time.Time{}, err
	}

	c.mu.Lock()
	c.sweep(c.epochs, now)
	if prev, ok := c.epochs[subject]; !ok || !prev.epoch.After(epoch) {
		c.epochs[subject] = cached{epoch: epoch, at: now}
	}
	c.mu.Unlock()
	return epoch, nil
}
