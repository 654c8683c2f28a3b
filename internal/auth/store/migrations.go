package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// MigrationsTable is the bookkeeping table golang-migrate writes.
const MigrationsTable = "schema_migrations"

// LatestVersion returns the highest migration version found in fsys.
func LatestVersion(fsys fs.FS) (uint, error) {
	src, err := iofs.New(fsys, ".")
	if err != nil {
		return 0, err
	}
	defer src.Close()

	v, err := src.First()
	if err != nil {
		return 0, fmt.Errorf("store: no migrations: %w", err)
	}
	for {
		next, err := src.Next(v)
		if errors.Is(err, fs.ErrNotExist) {
			return v, nil
		}
		if err != nil {
			return 0, err
		}
		v = next
	}
}

// Queryer is the subset of *sql.DB and *sql.Tx the drivers share.
type Queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ReadMigrationStatus reads the applied version without taking migrate's
// lock. A missing bookkeeping table reads as version 0. isMissingTable lets
// each driver recognise its own "no such table" error.
func ReadMigrationStatus(ctx context.Context, q Queryer, fsys fs.FS, isMissingTable func(error) bool) (MigrationStatus, error) {
	latest, err := LatestVersion(fsys)
	if err != nil {
		return MigrationStatus{}, err
	}

	status := MigrationStatus{Latest: latest}

	var version int64
	err = q.QueryRowContext(ctx, `SELECT version, dirty FROM `+MigrationsTable+` LIMIT 1`).Scan(&version, &status.Dirty)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return status, nil
	case err != nil && isMissingTable(err):
		return status, nil
	case err != nil:
		return MigrationStatus{}, err
	}
	if version > 0 {
		status.Version = uint(version)
	}
	return status, nil
}
