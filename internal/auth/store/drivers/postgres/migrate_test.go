package postgres

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMigrateURL(t *testing.T) {
	require.Equal(t, "pgx5://u:p@db:5432/auth", migrateURL("postgres://u:p@db:5432/auth"))
	require.Equal(t, "pgx5://db/auth?sslmode=disable", migrateURL("postgresql://db/auth?sslmode=disable"))
	require.Equal(t, "pgx5://db/auth", migrateURL("pgx5://db/auth"))
}
