package health

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/auth/store"
)

var ErrMigrationsPending = errors.New("health: database migrations pending")

// MigrationReporter is satisfied by store.Store.
type MigrationReporter interface {
	MigrationStatus(ctx context.Context) (store.MigrationStatus, error)
}

// Readiness is binary: the schema is either fully migrated and clean, or
// the service is not ready.
type Readiness struct {
	Ready     bool
	Timestamp time.Time
	Schema    store.MigrationStatus
	Err       error
}

// CheckReadiness compares the applied schema version with the latest
// embedded migration. It never runs migrations.
func CheckReadiness(ctx context.Context, src MigrationReporter, timeout time.Duration) Readiness {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	r := Readiness{Timestamp: time.Now().UTC()}
	status, err := src.MigrationStatus(ctx)
	if err != nil {
		r.Err = err
		return r
	}

	r.Schema = status
	r.Ready = status.Current()
	if !r.Ready {
		r.Err = ErrMigrationsPending
	}
	return r
}
