package migrations

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/pkg/errors"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const migrationTable = "schema_migrations"

// Migration is one named, ordered schema change. Apply runs inside a single
// transaction together with the success record, so a migration either lands
// completely or leaves the store untouched.
type Migration struct {
	Name  string
	Apply func(ctx context.Context, tx database.Tx) error
}

// Engine brings one store instance to the current schema version. Instances
// are migrated independently; there is no cross-instance coordination.
type Engine struct {
	db         database.DB
	logger     ectologger.Logger
	migrations []Migration
	now        func() time.Time
}

// NewEngine creates a migration engine. When no migrations are passed the
// default ordered list is used.
func NewEngine(db database.DB, logger ectologger.Logger, migrations ...Migration) *Engine {
	if len(migrations) == 0 {
		migrations = All()
	}
	return &Engine{
		db:         db,
		logger:     logger,
		migrations: migrations,
		now:        time.Now,
	}
}

// Run applies every pending migration in order. A migration with a success
// record is skipped unconditionally; a failed migration is recorded with its
// error detail and the run continues with the next one, so one failure never
// blocks independent migrations. Run returns an error only when the tracking
// table itself cannot be established or read.
func (e *Engine) Run(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "migrations.Engine.Run")
	defer span.End()

	if err := e.bootstrap(ctx); err != nil {
		return errors.Wrap(err, "failed to bootstrap migration tracking")
	}

	for _, m := range e.migrations {
		applied, err := e.alreadyApplied(ctx, m.Name)
		if err != nil {
			return errors.Wrapf(err, "failed to check migration %q", m.Name)
		}
		if applied {
			e.logger.WithContext(ctx).WithField("migration", m.Name).Debugf("migration %q already applied, skipping", m.Name)
			continue
		}

		if err := e.apply(ctx, m); err != nil {
			// Recorded and logged; the affected feature degrades instead of
			// the whole instance failing to boot.
			continue
		}
	}

	return nil
}

// Status returns the migration records for this store instance plus the names
// still pending, for operational visibility.
func (e *Engine) Status(ctx context.Context) (*models.MigrationStatusResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "migrations.Engine.Status")
	defer span.End()

	var records []models.MigrationRecord
	query := `SELECT id, name, applied_at, success, detail, execution_time_ms FROM ` + migrationTable + ` ORDER BY id ASC`
	if err := e.db.SelectContext(ctx, &records, query); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("failed to read migration records")
		return nil, models.NewStorageError("migration status", err)
	}

	succeeded := make(map[string]bool, len(records))
	for _, r := range records {
		if r.Success {
			succeeded[r.Name] = true
		}
	}

	pending := make([]string, 0)
	for _, m := range e.migrations {
		if !succeeded[m.Name] {
			pending = append(pending, m.Name)
		}
	}

	return &models.MigrationStatusResponse{Records: records, Pending: pending}, nil
}

// bootstrap creates the tracking table with a plain existence check. This is
// the one schema change outside the generic migration path, since nothing can
// be recorded before the table exists.
func (e *Engine) bootstrap(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + migrationTable + ` (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT UNIQUE NOT NULL,
			applied_at TIMESTAMP NOT NULL,
			success BOOLEAN NOT NULL DEFAULT 1,
			detail TEXT,
			execution_time_ms INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_schema_migrations_name ON ` + migrationTable + `(name)`,
	}

	for _, stmt := range stmts {
		if _, err := e.db.ExecContext(ctx, stmt); err != nil {
			e.logger.WithContext(ctx).WithError(err).Error("failed to create migration tracking table")
			return err
		}
	}
	return nil
}

func (e *Engine) alreadyApplied(ctx context.Context, name string) (bool, error) {
	var count int
	query := `SELECT COUNT(*) FROM ` + migrationTable + ` WHERE name = ? AND success = 1`
	if err := e.db.GetContext(ctx, &count, query, name); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (e *Engine) apply(ctx context.Context, m Migration) error {
	start := e.now()
	log := e.logger.WithContext(ctx).WithField("migration", m.Name)
	log.Infof("applying migration %q", m.Name)

	txCtx, tx, err := e.db.GetTx(ctx, nil)
	if err != nil {
		e.recordFailure(ctx, m.Name, err, start)
		return models.NewMigrationError(m.Name, err)
	}
	defer tx.Rollback(txCtx)

	if err := m.Apply(txCtx, tx); err != nil {
		if rbErr := tx.Rollback(txCtx); rbErr != nil {
			log.WithError(rbErr).Error("failed to roll back migration")
		}
		e.recordFailure(ctx, m.Name, err, start)
		log.WithError(err).Errorf("migration %q failed", m.Name)
		return models.NewMigrationError(m.Name, err)
	}

	elapsed := e.now().Sub(start).Milliseconds()
	if err := e.record(txCtx, tx, m.Name, true, nil, elapsed); err != nil {
		if rbErr := tx.Rollback(txCtx); rbErr != nil {
			log.WithError(rbErr).Error("failed to roll back migration")
		}
		e.recordFailure(ctx, m.Name, err, start)
		return models.NewMigrationError(m.Name, err)
	}

	if err := tx.Commit(txCtx); err != nil {
		e.recordFailure(ctx, m.Name, err, start)
		return models.NewMigrationError(m.Name, err)
	}

	metrics.RecordMigration(m.Name, true)
	log.WithField("elapsed_ms", elapsed).Infof("applied migration %q", m.Name)
	return nil
}

// record upserts the migration record. The upsert handles the retry case: a
// failed record for the same name is replaced when the migration later
// succeeds.
func (e *Engine) record(ctx context.Context, tx database.Tx, name string, success bool, detail *string, elapsedMS int64) error {
	sb := database.NewInsertBuilder()
	sb.InsertInto(migrationTable)
	sb.Cols("name", "applied_at", "success", "detail", "execution_time_ms")
	sb.Values(name, e.now().UTC(), success, detail, elapsedMS)
	sb.OnConflictUpdate([]string{"name"},
		"applied_at = excluded.applied_at",
		"success = excluded.success",
		"detail = excluded.detail",
		"execution_time_ms = excluded.execution_time_ms",
	)

	query, args := sb.Build()
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// recordFailure writes the failure record in a best-effort, non-transactional
// write so the failure itself is not lost with the rollback.
func (e *Engine) recordFailure(ctx context.Context, name string, cause error, start time.Time) {
	metrics.RecordMigration(name, false)
	detail := cause.Error()
	elapsed := e.now().Sub(start).Milliseconds()

	sb := database.NewInsertBuilder()
	sb.InsertInto(migrationTable)
	sb.Cols("name", "applied_at", "success", "detail", "execution_time_ms")
	sb.Values(name, e.now().UTC(), false, detail, elapsed)
	sb.OnConflictUpdate([]string{"name"},
		"applied_at = excluded.applied_at",
		"success = excluded.success",
		"detail = excluded.detail",
		"execution_time_ms = excluded.execution_time_ms",
	)

	query, args := sb.Build()
	if _, err := e.db.ExecContext(ctx, query, args...); err != nil {
		e.logger.WithContext(ctx).WithError(err).Errorf("failed to record failure of migration %q", name)
	}
}
