package store

import (
	"context"
	"errors"

	"github.com/aussiebroadwan/gatekeeper/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite, postgres)
// implement this and expose sub-repositories so transactions cannot nest.
type Store interface {
	Users() Users

	// ApplyMigrations brings the schema up to the latest embedded version.
	ApplyMigrations() error

	// MigrationStatus reports the applied schema version against the latest
	// embedded one. It never modifies the schema.
	MigrationStatus(ctx context.Context) (MigrationStatus, error)

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx runs fn in a transaction, committing if fn returns nil.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error

	Close() error
}

// Tx is a transactional store.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByIdentifier matches the lower-cased identifier exactly.
	GetUserByIdentifier(ctx context.Context, identifier string) (domain.User, error)

	// CreateUser inserts u. Returns ErrAlreadyExists when the identifier is taken.
	CreateUser(ctx context.Context, u domain.User) error

	// UpdatePasswordHash sets the password_hash and bumps updated_at.
	UpdatePasswordHash(ctx context.Context, userID string, newHash string) error

	CountUsers(ctx context.Context) (int64, error)
}

// MigrationStatus describes how far the schema is from the embedded migrations.
type MigrationStatus struct {
	Version uint // applied version, 0 when none
	Latest  uint // newest embedded migration
	Dirty   bool // a migration failed half way
}

// Current reports whether the schema is fully migrated and clean.
func (s MigrationStatus) Current() bool {
	return !s.Dirty && s.Version == s.Latest && s.Latest > 0
}
