package reading

import (
	"context"
	"database/sql"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/internal/repositories/entry"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// ReadingRepository defines the interface for shared reading operations.
// Readings are stored once and linked to any number of entries; all
// multi-step mutations run inside a single store transaction.
type ReadingRepository interface {
	Create(ctx context.Context, req models.CreateReadingRequest) (*models.Reading, error)
	GetByID(ctx context.Context, id int64) (*models.Reading, error)
	LinkEntries(ctx context.Context, readingID int64, req models.LinkEntriesRequest) (*models.LinkEntriesResponse, error)
	ListForEntry(ctx context.Context, entryID int64, kind string) ([]models.EntryReading, error)
	Unlink(ctx context.Context, readingID, entryID int64) (bool, error)
	PurgeOrphaned(ctx context.Context) (int64, error)
	Summarize(ctx context.Context, entryID int64) (map[string]models.Reading, error)
	Stats(ctx context.Context, entryID int64) (*models.ReadingStats, error)
}

// Repository implements ReadingRepository
type Repository struct {
	db      database.DB
	entries entry.EntryRepository
	logger  ectologger.Logger
}

// NewRepository creates a new reading repository
func NewRepository(db database.DB, entries entry.EntryRepository, logger ectologger.Logger) *Repository {
	return &Repository{db: db, entries: entries, logger: logger}
}

const (
	readingsTable = "readings"
	linksTable    = "reading_entry_links"
)

var readingColumns = []string{"id", "kind", "value", "recorded_at", "source_type", "source_id", "metadata", "created_at"}

// Create stores one reading and links it to every requested entry in a single
// transaction. The first entry id receives the primary link unless overridden;
// the rest default to secondary. On any failure nothing is stored: no orphan
// reading, no partial links.
func (r *Repository) Create(ctx context.Context, req models.CreateReadingRequest) (*models.Reading, error) {
	ctx, span := tracing.StartSpan(ctx, "reading.Repository.Create")
	defer span.End()

	entryIDs, err := validateCreate(req)
	if err != nil {
		return nil, err
	}

	sourceType := req.SourceType
	if sourceType == "" {
		sourceType = models.SourceTypeManual
	}
	metadata := models.Metadata(req.Metadata)
	now := time.Now().UTC()

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return nil, models.NewStorageError("create reading", err)
	}
	defer tx.Rollback(ctx)

	if err := r.checkEntriesWritable(ctx, entryIDs); err != nil {
		return nil, err
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(readingsTable)
	ib.Cols("kind", "value", "recorded_at", "source_type", "source_id", "metadata", "created_at")
	ib.Values(req.Kind, req.Value, req.RecordedAt.UTC(), sourceType, req.SourceID, metadata, now)

	query, args := ib.Build()
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to insert reading")
		return nil, models.NewStorageError("create reading", err)
	}
	readingID, err := res.LastInsertId()
	if err != nil {
		return nil, models.NewStorageError("create reading", err)
	}

	linkTypes := make([]string, 0, len(entryIDs))
	for i, entryID := range entryIDs {
		linkType := linkTypeFor(req, i, entryID)
		if _, _, err := insertLink(ctx, tx, readingID, entryID, linkType, now); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithField("entry_id", entryID).Error("failed to link reading")
			return nil, models.NewStorageError("link reading", err)
		}
		linkTypes = append(linkTypes, linkType)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, models.NewStorageError("create reading", err)
	}

	metrics.RecordReadingCreated(sourceType, req.Kind, linkTypes)
	r.logger.WithContext(ctx).WithFields(map[string]any{
		"reading_id": readingID,
		"kind":       req.Kind,
		"entries":    len(entryIDs),
	}).Info("created reading")

	return r.GetByID(ctx, readingID)
}

// GetByID gets a reading by ID. Returns nil when the reading does not exist.
func (r *Repository) GetByID(ctx context.Context, id int64) (*models.Reading, error) {
	ctx, span := tracing.StartSpan(ctx, "reading.Repository.GetByID")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(readingColumns...)
	sb.From(readingsTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()

	var reading models.Reading
	err := r.db.GetContext(ctx, &reading, query, args...)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("failed to get reading by ID")
		return nil, models.NewStorageError("get reading", err)
	}

	return &reading, nil
}

// LinkEntries links an existing reading to additional entries. Pairs that are
// already linked are skipped, not errors, so retries are safe. Unknown
// readings or entries are rejected before any link is written.
func (r *Repository) LinkEntries(ctx context.Context, readingID int64, req models.LinkEntriesRequest) (*models.LinkEntriesResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "reading.Repository.LinkEntries")
	defer span.End()

	entryIDs := dedupe(req.EntryIDs)
	if len(entryIDs) == 0 {
		return nil, models.NewValidationError("entry_ids is required")
	}
	linkType := req.LinkType
	if linkType == "" {
		linkType = models.LinkTypeSecondary
	}
	if !validLinkType(linkType) {
		return nil, models.NewValidationError("link_type must be one of primary, secondary, reference")
	}

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return nil, models.NewStorageError("link entries", err)
	}
	defer tx.Rollback(ctx)

	var count int
	readingExists := `SELECT COUNT(*) FROM readings WHERE id = ?`
	if err := tx.GetContext(ctx, &count, readingExists, readingID); err != nil {
		return nil, models.NewStorageError("link entries", err)
	}
	if count == 0 {
		return nil, models.NewNotFoundError("reading", readingID)
	}

	known, err := r.entries.Existing(ctx, entryIDs)
	if err != nil {
		return nil, err
	}
	if missing := missingIDs(entryIDs, known); len(missing) > 0 {
		return nil, models.NewNotFoundError("entry", missing[0])
	}

	resp := &models.LinkEntriesResponse{ReadingID: readingID, CreatedLinkIDs: []int64{}}
	now := time.Now().UTC()
	for _, entryID := range entryIDs {
		linkID, created, err := insertLink(ctx, tx, readingID, entryID, linkType, now)
		if err != nil {
			r.logger.WithContext(ctx).WithError(err).WithField("entry_id", entryID).Error("failed to link entry")
			return nil, models.NewStorageError("link entries", err)
		}
		if created {
			resp.CreatedLinkIDs = append(resp.CreatedLinkIDs, linkID)
		} else {
			resp.Skipped++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, models.NewStorageError("link entries", err)
	}

	metrics.RecordLinkOutcome(linkType, len(resp.CreatedLinkIDs), resp.Skipped)
	return resp, nil
}

// ListForEntry returns the readings linked to one entry, newest first, each
// carrying the entry's own link metadata and the reading's total link count.
// kind is an optional filter; pass "" for all kinds.
func (r *Repository) ListForEntry(ctx context.Context, entryID int64, kind string) ([]models.EntryReading, error) {
	ctx, span := tracing.StartSpan(ctx, "reading.Repository.ListForEntry")
	defer span.End()

	start := time.Now()

	sb := database.NewSelectBuilder()
	sb.Select(
		"r.id", "r.kind", "r.value", "r.recorded_at", "r.source_type",
		"r.source_id", "r.metadata", "r.created_at",
		"l.link_type", "l.created_at AS linked_at",
		"(SELECT COUNT(*) FROM reading_entry_links c WHERE c.reading_id = r.id) AS total_linked_entries",
	)
	sb.From(readingsTable + " r")
	sb.Join(linksTable+" l", "l.reading_id = r.id")
	sb.Where(sb.Equal("l.entry_id", entryID))
	if kind != "" {
		sb.Where(sb.Equal("r.kind", kind))
	}
	// one row per reading even if link rows are ever duplicated
	sb.GroupBy("r.id")
	sb.OrderBy("r.recorded_at DESC", "r.id DESC")

	query, args := sb.Build()

	items := []models.EntryReading{}
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list readings for entry")
		return nil, models.NewStorageError("list readings", err)
	}

	metrics.DatabaseQueryDuration.WithLabelValues("list_readings").Observe(time.Since(start).Seconds())
	return items, nil
}

// Unlink removes the link between one reading and one entry. The reading row
// itself is never deleted here, even when this was its last link; use
// PurgeOrphaned for that. Returns whether a link was actually removed.
func (r *Repository) Unlink(ctx context.Context, readingID, entryID int64) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "reading.Repository.Unlink")
	defer span.End()

	del := database.NewDeleteBuilder()
	del.DeleteFrom(linksTable)
	del.Where(del.Equal("reading_id", readingID), del.Equal("entry_id", entryID))

	query, args := del.Build()
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to unlink reading")
		return false, models.NewStorageError("unlink reading", err)
	}

	affected, _ := res.RowsAffected()
	if affected == 0 {
		return false, nil
	}

	metrics.LinksRemovedTotal.Inc()
	r.logger.WithContext(ctx).WithFields(map[string]any{
		"reading_id": readingID,
		"entry_id":   entryID,
	}).Info("unlinked reading")

	return true, nil
}

// PurgeOrphaned deletes readings that no entry links to anymore. It is an
// explicit garbage-collection operation and is never run implicitly.
func (r *Repository) PurgeOrphaned(ctx context.Context) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "reading.Repository.PurgeOrphaned")
	defer span.End()

	query := `DELETE FROM readings WHERE id NOT IN (SELECT reading_id FROM reading_entry_links)`
	res, err := r.db.ExecContext(ctx, query)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to purge orphaned readings")
		return 0, models.NewStorageError("purge readings", err)
	}

	purged, _ := res.RowsAffected()
	if purged > 0 {
		r.logger.WithContext(ctx).WithField("purged", purged).Info("purged orphaned readings")
	}

	return purged, nil
}

func validateCreate(req models.CreateReadingRequest) ([]int64, error) {
	if req.Kind == "" {
		return nil, models.NewValidationError("kind is required")
	}
	if req.Value == "" {
		return nil, models.NewValidationError("value is required")
	}
	if req.RecordedAt.IsZero() {
		return nil, models.NewValidationError("recorded_at is required")
	}
	if req.SourceType != "" && !validSourceType(req.SourceType) {
		return nil, models.NewValidationError("source_type must be one of device, manual, api")
	}
	if req.FirstLinkType != "" && !validLinkType(req.FirstLinkType) {
		return nil, models.NewValidationError("first_link_type must be one of primary, secondary, reference")
	}
	for _, lt := range req.LinkTypeOverrides {
		if !validLinkType(lt) {
			return nil, models.NewValidationError("link_type_overrides values must be one of primary, secondary, reference")
		}
	}

	entryIDs := dedupe(req.EntryIDs)
	if len(entryIDs) == 0 {
		return nil, models.NewValidationError("entry_ids is required")
	}
	return entryIDs, nil
}

// checkEntriesWritable verifies every entry exists and accepts new readings.
// It runs with the create transaction already on ctx, so the entry lookup
// joins it.
func (r *Repository) checkEntriesWritable(ctx context.Context, entryIDs []int64) error {
	known, err := r.entries.Existing(ctx, entryIDs)
	if err != nil {
		return err
	}
	if missing := missingIDs(entryIDs, known); len(missing) > 0 {
		return models.NewValidationError("unknown entry id")
	}
	for _, e := range known {
		if !e.ReadingsEnabled {
			return models.NewValidationError("entry does not accept readings")
		}
	}
	return nil
}

func linkTypeFor(req models.CreateReadingRequest, position int, entryID int64) string {
	if lt, ok := req.LinkTypeOverrides[entryID]; ok {
		return lt
	}
	if position == 0 {
		if req.FirstLinkType != "" {
			return req.FirstLinkType
		}
		return models.LinkTypePrimary
	}
	return models.LinkTypeSecondary
}

// insertLink writes one link row, silently skipping pairs that already exist.
// Returns the new link id and whether a row was created.
func insertLink(ctx context.Context, tx database.Tx, readingID, entryID int64, linkType string, now time.Time) (int64, bool, error) {
	ib := database.NewInsertBuilder()
	ib.InsertInto(linksTable)
	ib.Cols("reading_id", "entry_id", "link_type", "created_at")
	ib.Values(readingID, entryID, linkType, now)
	ib.OnConflictDoNothing("reading_id", "entry_id")

	query, args := ib.Build()
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, false, err
	}
	if affected == 0 {
		return 0, false, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func validLinkType(lt string) bool {
	return lt == models.LinkTypePrimary || lt == models.LinkTypeSecondary || lt == models.LinkTypeReference
}

func validSourceType(st string) bool {
	return st == models.SourceTypeDevice || st == models.SourceTypeManual || st == models.SourceTypeAPI
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func missingIDs(requested []int64, found []models.Entry) []int64 {
	known := make(map[int64]struct{}, len(found))
	for _, e := range found {
		known[e.ID] = struct{}{}
	}
	var missing []int64
	for _, id := range requested {
		if _, ok := known[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}
