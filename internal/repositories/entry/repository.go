package entry

import (
	"context"
	"database/sql"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// EntryRepository defines the interface for entry operations. The reading
// core only needs entries as link targets; everything else about them belongs
// to the surrounding application.
type EntryRepository interface {
	Create(ctx context.Context, req models.CreateEntryRequest) (*models.Entry, error)
	GetByID(ctx context.Context, id int64) (*models.Entry, error)
	List(ctx context.Context) ([]models.Entry, error)
	SetReadingsEnabled(ctx context.Context, id int64, enabled bool) error
	Existing(ctx context.Context, ids []int64) ([]models.Entry, error)
}

// Repository implements EntryRepository
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new entry repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

const tableName = "entries"

// Create creates a new entry
func (r *Repository) Create(ctx context.Context, req models.CreateEntryRequest) (*models.Entry, error) {
	ctx, span := tracing.StartSpan(ctx, "entry.Repository.Create")
	defer span.End()

	if req.Name == "" {
		return nil, models.NewValidationError("name is required")
	}

	enabled := true
	if req.ReadingsEnabled != nil {
		enabled = *req.ReadingsEnabled
	}
	now := time.Now().UTC()

	sb := database.NewInsertBuilder()
	sb.InsertInto(tableName)
	sb.Cols("name", "readings_enabled", "created_at")
	sb.Values(req.Name, enabled, now)

	query, args := sb.Build()
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to create entry")
		return nil, models.NewStorageError("create entry", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, models.NewStorageError("create entry", err)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"id":   id,
		"name": req.Name,
	}).Info("created entry")

	return r.GetByID(ctx, id)
}

// GetByID gets an entry by ID. Returns nil when the entry does not exist.
func (r *Repository) GetByID(ctx context.Context, id int64) (*models.Entry, error) {
	ctx, span := tracing.StartSpan(ctx, "entry.Repository.GetByID")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("id", "name", "readings_enabled", "created_at")
	sb.From(tableName)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()

	var e models.Entry
	err := r.db.GetContext(ctx, &e, query, args...)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("failed to get entry by ID")
		return nil, models.NewStorageError("get entry", err)
	}

	return &e, nil
}

// List lists all entries
func (r *Repository) List(ctx context.Context) ([]models.Entry, error) {
	ctx, span := tracing.StartSpan(ctx, "entry.Repository.List")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("id", "name", "readings_enabled", "created_at")
	sb.From(tableName)
	sb.OrderBy("id ASC")

	query, args := sb.Build()

	items := []models.Entry{}
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list entries")
		return nil, models.NewStorageError("list entries", err)
	}

	return items, nil
}

// SetReadingsEnabled toggles whether new readings may be linked to the entry.
// Existing links are unaffected.
func (r *Repository) SetReadingsEnabled(ctx context.Context, id int64, enabled bool) error {
	ctx, span := tracing.StartSpan(ctx, "entry.Repository.SetReadingsEnabled")
	defer span.End()

	sb := database.NewUpdateBuilder()
	sb.Update(tableName)
	sb.Set(sb.Assign("readings_enabled", enabled))
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to update entry")
		return models.NewStorageError("update entry", err)
	}

	affected, _ := res.RowsAffected()
	if affected == 0 {
		return models.NewNotFoundError("entry", id)
	}

	return nil
}

// Existing returns the subset of entries that exist for the given ids. It
// joins the caller's transaction when one is open, so reference validation
// inside create-reading sees a consistent snapshot.
func (r *Repository) Existing(ctx context.Context, ids []int64) ([]models.Entry, error) {
	ctx, span := tracing.StartSpan(ctx, "entry.Repository.Existing")
	defer span.End()

	if len(ids) == 0 {
		return nil, nil
	}

	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}

	sb := database.NewSelectBuilder()
	sb.Select("id", "name", "readings_enabled", "created_at")
	sb.From(tableName)
	sb.Where(sb.In("id", args...))

	query, queryArgs := sb.Build()

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return nil, models.NewStorageError("lookup entries", err)
	}
	defer tx.Rollback(ctx)

	items := []models.Entry{}
	if err := tx.SelectContext(ctx, &items, query, queryArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to look up entries")
		return nil, models.NewStorageError("lookup entries", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, models.NewStorageError("lookup entries", err)
	}

	return items, nil
}
