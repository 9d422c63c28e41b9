package migrations_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/fern/internal/migrations"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
)

func getTestLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func getTestDB(t *testing.T) database.DB {
	cfg := database.SQLiteConfig{Path: ":memory:", BusyTimeout: 5 * time.Second}
	db, err := database.OpenSQLite(cfg, getTestLogger())
	require.NoError(t, err, "failed to open in-memory store")
	t.Cleanup(func() { db.Close() })
	return db
}

func recordFor(t *testing.T, db database.DB, name string) []models.MigrationRecord {
	t.Helper()
	var records []models.MigrationRecord
	err := db.SelectContext(context.Background(), &records,
		`SELECT id, name, applied_at, success, detail, execution_time_ms FROM schema_migrations WHERE name = ?`, name)
	require.NoError(t, err)
	return records
}

func TestEngine_RunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := getTestDB(t)
	engine := migrations.NewEngine(db, getTestLogger())

	require.NoError(t, engine.Run(ctx))
	require.NoError(t, engine.Run(ctx))

	// exactly one record per migration, all successful
	for _, m := range migrations.All() {
		records := recordFor(t, db, m.Name)
		require.Len(t, records, 1, "expected one record for %s", m.Name)
		assert.True(t, records[0].Success)
		assert.Nil(t, records[0].Detail)
	}

	status, err := engine.Status(ctx)
	require.NoError(t, err)
	assert.Empty(t, status.Pending)
	assert.Len(t, status.Records, len(migrations.All()))
}

func TestEngine_FailureIsRecordedAndRetried(t *testing.T) {
	ctx := context.Background()
	db := getTestDB(t)

	broken := true
	flaky := migrations.Migration{
		Name: "create_widget_table",
		Apply: func(ctx context.Context, tx database.Tx) error {
			if broken {
				return errors.New("disk on fire")
			}
			_, err := tx.ExecContext(ctx, `CREATE TABLE widgets (id INTEGER PRIMARY KEY)`)
			return err
		},
	}
	next := migrations.Migration{
		Name: "create_gadget_table",
		Apply: func(ctx context.Context, tx database.Tx) error {
			_, err := tx.ExecContext(ctx, `CREATE TABLE gadgets (id INTEGER PRIMARY KEY)`)
			return err
		},
	}

	engine := migrations.NewEngine(db, getTestLogger(), flaky, next)

	// the failure is recorded but does not stop the run or error it out
	require.NoError(t, engine.Run(ctx))

	records := recordFor(t, db, "create_widget_table")
	require.Len(t, records, 1)
	assert.False(t, records[0].Success)
	require.NotNil(t, records[0].Detail)
	assert.Contains(t, *records[0].Detail, "disk on fire")

	// the migration after the failed one still applied
	nextRecords := recordFor(t, db, "create_gadget_table")
	require.Len(t, nextRecords, 1)
	assert.True(t, nextRecords[0].Success)

	status, err := engine.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"create_widget_table"}, status.Pending)

	// the next run retries the failed migration and replaces its record
	broken = false
	require.NoError(t, engine.Run(ctx))

	records = recordFor(t, db, "create_widget_table")
	require.Len(t, records, 1)
	assert.True(t, records[0].Success)
	assert.Nil(t, records[0].Detail)

	var count int
	require.NoError(t, db.GetContext(ctx, &count, `SELECT COUNT(*) FROM widgets`))
	assert.Equal(t, 0, count)
}

func TestEngine_FailedMigrationLeavesNoPartialSchema(t *testing.T) {
	ctx := context.Background()
	db := getTestDB(t)

	partial := migrations.Migration{
		Name: "partial_schema",
		Apply: func(ctx context.Context, tx database.Tx) error {
			if _, err := tx.ExecContext(ctx, `CREATE TABLE halfway (id INTEGER PRIMARY KEY)`); err != nil {
				return err
			}
			return errors.New("second half failed")
		},
	}

	engine := migrations.NewEngine(db, getTestLogger(), partial)
	require.NoError(t, engine.Run(ctx))

	var count int
	err := db.GetContext(ctx, &count, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'halfway'`)
	require.NoError(t, err)
	assert.Equal(t, 0, count, "rolled-back migration must leave no table behind")
}

func TestEngine_BackfillsLegacyReadings(t *testing.T) {
	ctx := context.Background()
	db := getTestDB(t)

	// shape of an old instance: entries plus the duplicated per-entry table
	setup := []string{
		`CREATE TABLE entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			readings_enabled BOOLEAN NOT NULL DEFAULT 1,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE entry_readings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			entry_id INTEGER NOT NULL,
			kind TEXT NOT NULL,
			value TEXT NOT NULL,
			recorded_at TIMESTAMP NOT NULL,
			source_type TEXT DEFAULT 'manual',
			source_id TEXT
		)`,
		`INSERT INTO entries (name, created_at) VALUES ('fermenter 1', CURRENT_TIMESTAMP)`,
		`INSERT INTO entries (name, created_at) VALUES ('fermenter 2', CURRENT_TIMESTAMP)`,
		`INSERT INTO entry_readings (entry_id, kind, value, recorded_at) VALUES (1, 'temperature', '20.5', '2026-01-01 10:00:00')`,
		`INSERT INTO entry_readings (entry_id, kind, value, recorded_at) VALUES (2, 'temperature', '21.0', '2026-01-01 10:05:00')`,
		`INSERT INTO entry_readings (entry_id, kind, value, recorded_at, source_type) VALUES (1, 'gravity', '1.050', '2026-01-01 11:00:00', 'device')`,
	}
	for _, stmt := range setup {
		_, err := db.ExecContext(ctx, stmt)
		require.NoError(t, err)
	}

	engine := migrations.NewEngine(db, getTestLogger())
	require.NoError(t, engine.Run(ctx))

	var readingCount int
	require.NoError(t, db.GetContext(ctx, &readingCount, `SELECT COUNT(*) FROM readings`))
	assert.Equal(t, 3, readingCount)

	var migrated int
	require.NoError(t, db.GetContext(ctx, &migrated, `SELECT COUNT(*) FROM readings WHERE source_type = ?`, models.SourceTypeMigrated))
	assert.Equal(t, 3, migrated)

	var primaryLinks int
	require.NoError(t, db.GetContext(ctx, &primaryLinks, `SELECT COUNT(*) FROM reading_entry_links WHERE link_type = ?`, models.LinkTypePrimary))
	assert.Equal(t, 3, primaryLinks)

	var provenance int
	require.NoError(t, db.GetContext(ctx, &provenance,
		`SELECT COUNT(*) FROM readings WHERE metadata LIKE '%migrated_from_entry_reading_id%'`))
	assert.Equal(t, 3, provenance)

	// the legacy table is renamed away so the backfill never runs twice
	var legacy int
	require.NoError(t, db.GetContext(ctx, &legacy, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'entry_readings'`))
	assert.Equal(t, 0, legacy)

	var backup int
	require.NoError(t, db.GetContext(ctx, &backup, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name LIKE 'entry_readings_backup_%'`))
	assert.Equal(t, 1, backup)

	// a second run must not duplicate the backfilled readings
	require.NoError(t, engine.Run(ctx))
	require.NoError(t, db.GetContext(ctx, &readingCount, `SELECT COUNT(*) FROM readings`))
	assert.Equal(t, 3, readingCount)
}
