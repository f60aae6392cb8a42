package db

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jingkaihe/playground/pkg/logger"
	"github.com/jingkaihe/playground/pkg/telemetry"
)

// ConfigTable holds the single row with the current schema version.
// Stores created before it existed are at version 1.
const ConfigTable = "config"

// ConfigTableVersion is the version that introduced ConfigTable. An existing
// but empty config table means the store is at this version.
const ConfigTableVersion = 2

// Migration is one step of the schema chain. Up builds on the structures of
// the previous version and must be safe to run again on a store that already
// has them: the registry re-runs the steps up to the detected version before
// applying the missing ones.
type Migration struct {
	Version     int
	Description string
	Up          func(ctx context.Context, tx *sql.Tx) error
}

// ConvergenceError reports a failure to bring the store to the latest schema version.
type ConvergenceError struct {
	From int
	To   int
	Err  error
}

func (e *ConvergenceError) Error() string {
	return fmt.Sprintf("schema convergence from v%d to v%d failed: %v", e.From, e.To, e.Err)
}

func (e *ConvergenceError) Unwrap() error {
	return e.Err
}

// Registry converges a database to the latest version of an ordered migration chain
type Registry struct {
	db         *sqlx.DB
	migrations []Migration
}

// NewRegistry creates a registry over the given migrations, ordered by version
func NewRegistry(db *sqlx.DB, migrations []Migration) *Registry {
	sorted := make([]Migration, len(migrations))
	copy(sorted, migrations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Version < sorted[j].Version
	})
	return &Registry{db: db, migrations: sorted}
}

// Migrations returns the ordered migration chain
func (r *Registry) Migrations() []Migration {
	return r.migrations
}

// Latest returns the highest known schema version
func (r *Registry) Latest() int {
	if len(r.migrations) == 0 {
		return 0
	}
	return r.migrations[len(r.migrations)-1].Version
}

// Detect returns the schema version the store is currently at.
func (r *Registry) Detect(ctx context.Context) (int, error) {
	exists, err := TableExists(ctx, r.db, ConfigTable)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 1, nil
	}

	var versions []int
	if err := r.db.SelectContext(ctx, &versions, "SELECT version FROM config"); err != nil {
		return 0, errors.Wrap(err, "failed to read schema version")
	}
	switch len(versions) {
	case 0:
		return ConfigTableVersion, nil
	case 1:
		return versions[0], nil
	default:
		return 0, errors.Errorf("config table holds %d schema versions, expected at most one", len(versions))
	}
}

// Converge brings the store to the latest version. Steps up to the detected
// version are re-run to materialize what that version implies, which leaves a
// converged store unchanged.
func (r *Registry) Converge(ctx context.Context) error {
	latest := r.Latest()

	return telemetry.WithSpan(ctx, telemetry.SpanConverge, func(ctx context.Context) error {
		if err := r.validateChain(); err != nil {
			return &ConvergenceError{To: latest, Err: err}
		}

		current, err := r.Detect(ctx)
		if err != nil {
			return &ConvergenceError{To: latest, Err: err}
		}
		telemetry.SetAttributes(ctx, attribute.Int("schema.from", current), attribute.Int("schema.to", latest))

		log := logger.G(ctx).WithField("current_version", current).WithField("latest_version", latest)
		if current > latest || current < 1 {
			return &ConvergenceError{
				From: current,
				To:   latest,
				Err:  errors.Errorf("unsupported schema version %d", current),
			}
		}

		if current == latest {
			log.Debug("database schema is up to date")
		} else {
			log.Info("converging database schema")
		}
		for _, m := range r.migrations {
			if m.Version < current {
				// materialize the structures the detected version implies
				if err := r.apply(ctx, m, false); err != nil {
					return &ConvergenceError{From: current, To: latest, Err: err}
				}
				continue
			}
			// the detected version's own step rewrites its version row
			if err := r.apply(ctx, m, true); err != nil {
				return &ConvergenceError{From: current, To: latest, Err: err}
			}
			if m.Version > current {
				log.WithField("version", m.Version).WithField("description", m.Description).Info("applied schema migration")
			}
		}
		return nil
	})
}

// validateChain checks that versions run 1..N with no gaps or duplicates
func (r *Registry) validateChain() error {
	if len(r.migrations) == 0 {
		return errors.New("no migrations registered")
	}
	for i, m := range r.migrations {
		if m.Version != i+1 {
			return errors.Errorf("migration chain is not contiguous at version %d", m.Version)
		}
		if m.Up == nil {
			return errors.Errorf("migration %d has no Up step", m.Version)
		}
	}
	return nil
}

func (r *Registry) apply(ctx context.Context, m Migration, recordVersion bool) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if err := m.Up(ctx, tx.Tx); err != nil {
		return errors.Wrapf(err, "migration %d (%s)", m.Version, m.Description)
	}

	if recordVersion {
		hasConfig, err := TableExists(ctx, tx, ConfigTable)
		if err != nil {
			return err
		}
		if hasConfig {
			if _, err := tx.ExecContext(ctx, "DELETE FROM config"); err != nil {
				return errors.Wrap(err, "failed to clear schema version")
			}
			if _, err := tx.ExecContext(ctx, "INSERT INTO config (version) VALUES (?)", m.Version); err != nil {
				return errors.Wrap(err, "failed to record schema version")
			}
		}
	}

	return errors.Wrap(tx.Commit(), "failed to commit migration")
}
