// Package kv is the shared key-value store behind the revocation ledger, the
// cache health probe and the request counter. The Redis driver is the one to
// run with more than one instance; the memory driver is process-local.
//
// Consistency: every operation is a single round trip to the backing store.
// Read-after-write across instances holds only as far as the backend gives
// it (a single Redis primary does; replicas may lag).
package kv

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound    = errors.New("kv: key not found")
	ErrUnavailable = errors.New("kv: store unavailable")
)

// Store is the minimal set of atomic operations the service needs.
// A ttl of zero means the key never expires.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// SetNX writes key only if it is absent and reports whether it did.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// SetMax stores value if it is greater than the integer currently held at
	// key (or key is absent) and returns the value held afterwards.
	SetMax(ctx context.Context, key string, value int64, ttl time.Duration) (int64, error)

	Incr(ctx context.Context, key string) (int64, error)
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}
