package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/auth/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/auth/store"
	"github.com/aussiebroadwan/gatekeeper/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/gatekeeper/pkg/idx"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()

	s, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.ApplyMigrations())
	return s
}

func newUser(identifier string) domain.User {
	now := time.Now().UTC().Truncate(time.Second)
	return domain.User{
		ID:           idx.New().String(),
		Identifier:   identifier,
		Name:         "Alice",
		PasswordHash: "$argon2id$v=19$m=19456,t=2,p=1$c2FsdA$aGFzaA",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestUsersCreateAndGet(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	u := newUser("alice@example.com")
	require.NoError(t, s.Users().CreateUser(ctx, u))

	byID, err := s.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, u.Identifier, byID.Identifier)
	require.Equal(t, u.PasswordHash, byID.PasswordHash)
	require.True(t, u.CreatedAt.Equal(byID.CreatedAt))

	byIdent, err := s.Users().GetUserByIdentifier(ctx, "alice@example.com")
	require.NoError(t, err)
	require.Equal(t, u.ID, byIdent.ID)

	_, err = s.Users().GetUserByIdentifier(ctx, "bob@example.com")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestUsersDuplicateIdentifier(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.Users().CreateUser(ctx, newUser("alice@example.com")))

	dup := newUser("alice@example.com")
	dup.PasswordHash = "different"
	require.ErrorIs(t, s.Users().CreateUser(ctx, dup), store.ErrAlreadyExists)

	n, err := s.Users().CountUsers(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestUsersUpdatePasswordHash(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	u := newUser("alice@example.com")
	require.NoError(t, s.Users().CreateUser(ctx, u))
	require.NoError(t, s.Users().UpdatePasswordHash(ctx, u.ID, "new-hash"))

	got, err := s.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "new-hash", got.PasswordHash)

	require.ErrorIs(t, s.Users().UpdatePasswordHash(ctx, "missing", "x"), store.ErrNotFound)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	err := s.WithTx(ctx, func(tx store.Tx) error {
		require.NoError(t, tx.Users().CreateUser(ctx, newUser("alice@example.com")))
		return store.ErrAlreadyExists
	})
	require.ErrorIs(t, err, store.ErrAlreadyExists)

	n, err := s.Users().CountUsers(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestMigrationStatus(t *testing.T) {
	ctx := context.Background()

	fresh, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = fresh.Close() })

	status, err := fresh.MigrationStatus(ctx)
	require.NoError(t, err)
	require.Zero(t, status.Version)
	require.NotZero(t, status.Latest)
	require.False(t, status.Current())

	require.NoError(t, fresh.ApplyMigrations())
	require.NoError(t, fresh.ApplyMigrations(), "second run is a no-op")

	status, err = fresh.MigrationStatus(ctx)
	require.NoError(t, err)
	require.Equal(t, status.Latest, status.Version)
	require.False(t, status.Dirty)
	require.True(t, status.Current())
}
