package migrations

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
)

// All returns the fixed, ordered migration list for a store instance. Entries
// are appended, never reordered or renamed; the record name is the identity.
func All() []Migration {
	return []Migration{
		{Name: "create_entry_tables", Apply: createEntryTables},
		{Name: "add_shared_reading_tables", Apply: addSharedReadingTables},
		{Name: "add_reading_indexes", Apply: addReadingIndexes},
		{Name: "backfill_legacy_readings", Apply: backfillLegacyReadings},
	}
}

func execAll(ctx context.Context, tx database.Tx, stmts ...string) error {
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func createEntryTables(ctx context.Context, tx database.Tx) error {
	return execAll(ctx, tx,
		`CREATE TABLE IF NOT EXISTS entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			readings_enabled BOOLEAN NOT NULL DEFAULT 1,
			created_at TIMESTAMP NOT NULL
		)`,
	)
}

func addSharedReadingTables(ctx context.Context, tx database.Tx) error {
	return execAll(ctx, tx,
		`CREATE TABLE IF NOT EXISTS readings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			value TEXT NOT NULL,
			recorded_at TIMESTAMP NOT NULL,
			source_type TEXT NOT NULL DEFAULT 'manual',
			source_id TEXT,
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS reading_entry_links (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			reading_id INTEGER NOT NULL,
			entry_id INTEGER NOT NULL,
			link_type TEXT NOT NULL DEFAULT 'primary',
			created_at TIMESTAMP NOT NULL,
			FOREIGN KEY (reading_id) REFERENCES readings(id) ON DELETE CASCADE,
			FOREIGN KEY (entry_id) REFERENCES entries(id) ON DELETE CASCADE,
			UNIQUE (reading_id, entry_id)
		)`,
	)
}

func addReadingIndexes(ctx context.Context, tx database.Tx) error {
	return execAll(ctx, tx,
		`CREATE INDEX IF NOT EXISTS idx_reading_entry_links_entry ON reading_entry_links(entry_id)`,
		`CREATE INDEX IF NOT EXISTS idx_reading_entry_links_reading ON reading_entry_links(reading_id)`,
		`CREATE INDEX IF NOT EXISTS idx_readings_kind_recorded ON readings(kind, recorded_at)`,
	)
}

// backfillLegacyReadings migrates instances still carrying the old
// one-reading-per-entry table: each legacy row becomes one shared reading
// with a primary link, carrying its old row id in the metadata for
// provenance. The legacy table is renamed to a timestamped backup so the
// migration cannot run against it twice.
func backfillLegacyReadings(ctx context.Context, tx database.Tx) error {
	var count int
	err := tx.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'entry_readings'`)
	if err != nil {
		return err
	}
	if count == 0 {
		return nil // fresh instance, nothing to backfill
	}

	type legacyRow struct {
		ID         int64     `db:"id"`
		EntryID    int64     `db:"entry_id"`
		Kind       string    `db:"kind"`
		Value      string    `db:"value"`
		RecordedAt time.Time `db:"recorded_at"`
		SourceType string    `db:"source_type"`
		SourceID   *string   `db:"source_id"`
	}

	var rows []legacyRow
	err = tx.SelectContext(ctx, &rows,
		`SELECT id, entry_id, kind, value, recorded_at, source_type, source_id
		 FROM entry_readings ORDER BY recorded_at ASC, id ASC`)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, row := range rows {
		meta, err := json.Marshal(map[string]any{"migrated_from_entry_reading_id": row.ID})
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO readings (kind, value, recorded_at, source_type, source_id, metadata, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			row.Kind, row.Value, row.RecordedAt, models.SourceTypeMigrated, row.SourceID, string(meta), now)
		if err != nil {
			return err
		}

		readingID, err := res.LastInsertId()
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO reading_entry_links (reading_id, entry_id, link_type, created_at)
			 VALUES (?, ?, ?, ?)`,
			readingID, row.EntryID, models.LinkTypePrimary, now)
		if err != nil {
			return err
		}
	}

	backup := fmt.Sprintf("entry_readings_backup_%s", now.Format("20060102_150405"))
	if _, err := tx.ExecContext(ctx, `ALTER TABLE entry_readings RENAME TO `+backup); err != nil {
		return err
	}

	return nil
}
