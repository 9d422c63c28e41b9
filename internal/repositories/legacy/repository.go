package legacy

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// LegacyRepository serves consumers still expecting the old per-entry
// duplicated reading format. Rows are synthesized from the shared store on
// read; nothing is stored except by the explicit reverse migration.
type LegacyRepository interface {
	RowsForEntry(ctx context.Context, entryID int64) ([]models.LegacyReadingRow, error)
	RebuildLegacyTable(ctx context.Context) (int64, error)
}

// Repository implements LegacyRepository
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new legacy repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// RowsForEntry returns one row per link in the old duplicated shape. A reading
// linked to three entries yields one row for each of the three.
func (r *Repository) RowsForEntry(ctx context.Context, entryID int64) ([]models.LegacyReadingRow, error) {
	ctx, span := tracing.StartSpan(ctx, "legacy.Repository.RowsForEntry")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("l.entry_id", "r.kind", "r.value", "r.recorded_at", "r.source_type", "r.source_id")
	sb.From("readings r")
	sb.Join("reading_entry_links l", "l.reading_id = r.id")
	sb.Where(sb.Equal("l.entry_id", entryID))
	sb.OrderBy("r.recorded_at DESC", "r.id DESC")

	query, args := sb.Build()

	rows := []models.LegacyReadingRow{}
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to project legacy rows")
		return nil, models.NewStorageError("legacy rows", err)
	}

	return rows, nil
}

// RebuildLegacyTable materializes the entry_readings table from the shared
// store, one row per link, in a single transaction. It is the reverse of the
// backfill migration and only ever runs when an operator asks for it.
func (r *Repository) RebuildLegacyTable(ctx context.Context) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "legacy.Repository.RebuildLegacyTable")
	defer span.End()

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return 0, models.NewStorageError("rebuild legacy table", err)
	}
	defer tx.Rollback(ctx)

	stmts := []string{
		`DROP TABLE IF EXISTS entry_readings`,
		`CREATE TABLE entry_readings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			entry_id INTEGER NOT NULL,
			kind TEXT NOT NULL,
			value TEXT NOT NULL,
			recorded_at TIMESTAMP NOT NULL,
			source_type TEXT DEFAULT 'manual',
			source_id TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			r.logger.WithContext(ctx).WithError(err).Error("failed to recreate legacy table")
			return 0, models.NewStorageError("rebuild legacy table", err)
		}
	}

	copyRows := `
		INSERT INTO entry_readings (entry_id, kind, value, recorded_at, source_type, source_id)
		SELECT l.entry_id, r.kind, r.value, r.recorded_at, r.source_type, r.source_id
		FROM readings r
		JOIN reading_entry_links l ON l.reading_id = r.id`
	res, err := tx.ExecContext(ctx, copyRows)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to write legacy rows")
		return 0, models.NewStorageError("rebuild legacy table", err)
	}
	written, _ := res.RowsAffected()

	if err := tx.Commit(ctx); err != nil {
		return 0, models.NewStorageError("rebuild legacy table", err)
	}

	r.logger.WithContext(ctx).WithField("rows", written).Info("rebuilt legacy reading table")
	return written, nil
}
