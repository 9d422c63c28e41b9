package reading_test

import (
	"context"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/fern/internal/migrations"
	"github.com/Ramsey-B/fern/internal/repositories/entry"
	"github.com/Ramsey-B/fern/internal/repositories/reading"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
)

func getTestLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

type fixture struct {
	db       database.DB
	entries  *entry.Repository
	readings *reading.Repository
}

func getFixture(t *testing.T) *fixture {
	cfg := database.SQLiteConfig{Path: ":memory:", BusyTimeout: 5 * time.Second}
	db, err := database.OpenSQLite(cfg, getTestLogger())
	require.NoError(t, err, "failed to open in-memory store")
	t.Cleanup(func() { db.Close() })

	require.NoError(t, migrations.NewEngine(db, getTestLogger()).Run(context.Background()))

	entries := entry.NewRepository(db, getTestLogger())
	return &fixture{
		db:       db,
		entries:  entries,
		readings: reading.NewRepository(db, entries, getTestLogger()),
	}
}

func (f *fixture) createEntry(t *testing.T, name string) *models.Entry {
	t.Helper()
	e, err := f.entries.Create(context.Background(), models.CreateEntryRequest{Name: name})
	require.NoError(t, err)
	return e
}

func (f *fixture) createReading(t *testing.T, kind, value string, recordedAt time.Time, entryIDs ...int64) *models.Reading {
	t.Helper()
	r, err := f.readings.Create(context.Background(), models.CreateReadingRequest{
		Kind:       kind,
		Value:      value,
		RecordedAt: recordedAt,
		EntryIDs:   entryIDs,
	})
	require.NoError(t, err)
	return r
}

func (f *fixture) countRows(t *testing.T, table string) int {
	t.Helper()
	var count int
	require.NoError(t, f.db.GetContext(context.Background(), &count, `SELECT COUNT(*) FROM `+table))
	return count
}

func TestRepository_CreateLinksAllEntries(t *testing.T) {
	ctx := context.Background()
	f := getFixture(t)

	a := f.createEntry(t, "fermenter 1")
	b := f.createEntry(t, "fermenter 2")
	c := f.createEntry(t, "chamber")

	recordedAt := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	created := f.createReading(t, "temperature", "20.5", recordedAt, a.ID, b.ID, c.ID)

	assert.Equal(t, "temperature", created.Kind)
	assert.Equal(t, "20.5", created.Value)
	assert.Equal(t, models.SourceTypeManual, created.SourceType)
	assert.True(t, recordedAt.Equal(created.RecordedAt))

	// one reading row, one link per entry
	assert.Equal(t, 1, f.countRows(t, "readings"))
	assert.Equal(t, 3, f.countRows(t, "reading_entry_links"))

	// visible from every linked entry, first entry holds the primary link
	for i, e := range []*models.Entry{a, b, c} {
		listed, err := f.readings.ListForEntry(ctx, e.ID, "")
		require.NoError(t, err)
		require.Len(t, listed, 1)
		assert.Equal(t, created.ID, listed[0].ID)
		assert.Equal(t, 3, listed[0].TotalLinkedEntries)
		if i == 0 {
			assert.Equal(t, models.LinkTypePrimary, listed[0].LinkType)
		} else {
			assert.Equal(t, models.LinkTypeSecondary, listed[0].LinkType)
		}
	}
}

func TestRepository_CreateLinkTypeOverrides(t *testing.T) {
	ctx := context.Background()
	f := getFixture(t)

	a := f.createEntry(t, "a")
	b := f.createEntry(t, "b")

	_, err := f.readings.Create(ctx, models.CreateReadingRequest{
		Kind:              "gravity",
		Value:             "1.050",
		RecordedAt:        time.Now().UTC(),
		EntryIDs:          []int64{a.ID, b.ID},
		LinkTypeOverrides: map[int64]string{b.ID: models.LinkTypeReference},
	})
	require.NoError(t, err)

	listed, err := f.readings.ListForEntry(ctx, b.ID, "")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, models.LinkTypeReference, listed[0].LinkType)
}

func TestRepository_CreateValidation(t *testing.T) {
	ctx := context.Background()
	f := getFixture(t)
	e := f.createEntry(t, "a")

	tests := []struct {
		name string
		req  models.CreateReadingRequest
	}{
		{"missing kind", models.CreateReadingRequest{Value: "1", RecordedAt: time.Now(), EntryIDs: []int64{e.ID}}},
		{"missing value", models.CreateReadingRequest{Kind: "temp", RecordedAt: time.Now(), EntryIDs: []int64{e.ID}}},
		{"missing recorded_at", models.CreateReadingRequest{Kind: "temp", Value: "1", EntryIDs: []int64{e.ID}}},
		{"no entries", models.CreateReadingRequest{Kind: "temp", Value: "1", RecordedAt: time.Now()}},
		{"bad source type", models.CreateReadingRequest{Kind: "temp", Value: "1", RecordedAt: time.Now(), EntryIDs: []int64{e.ID}, SourceType: "telepathy"}},
		{"bad link type", models.CreateReadingRequest{Kind: "temp", Value: "1", RecordedAt: time.Now(), EntryIDs: []int64{e.ID}, FirstLinkType: "tertiary"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.readings.Create(ctx, tc.req)
			require.Error(t, err)
			assert.True(t, models.IsValidation(err), "expected validation error, got: %v", err)
		})
	}
}

func TestRepository_CreateUnknownEntryRollsBack(t *testing.T) {
	ctx := context.Background()
	f := getFixture(t)
	e := f.createEntry(t, "a")

	_, err := f.readings.Create(ctx, models.CreateReadingRequest{
		Kind:       "temperature",
		Value:      "20.5",
		RecordedAt: time.Now().UTC(),
		EntryIDs:   []int64{e.ID, 9999},
	})
	require.Error(t, err)
	assert.True(t, models.IsValidation(err))

	// nothing stored: no orphan reading, no partial links
	assert.Equal(t, 0, f.countRows(t, "readings"))
	assert.Equal(t, 0, f.countRows(t, "reading_entry_links"))
}

func TestRepository_CreateRejectsDisabledEntry(t *testing.T) {
	ctx := context.Background()
	f := getFixture(t)
	e := f.createEntry(t, "archived")
	require.NoError(t, f.entries.SetReadingsEnabled(ctx, e.ID, false))

	_, err := f.readings.Create(ctx, models.CreateReadingRequest{
		Kind:       "temperature",
		Value:      "20.5",
		RecordedAt: time.Now().UTC(),
		EntryIDs:   []int64{e.ID},
	})
	require.Error(t, err)
	assert.True(t, models.IsValidation(err))
}

func TestRepository_LinkEntriesIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := getFixture(t)

	a := f.createEntry(t, "a")
	b := f.createEntry(t, "b")
	r := f.createReading(t, "temperature", "20.5", time.Now().UTC(), a.ID)

	resp, err := f.readings.LinkEntries(ctx, r.ID, models.LinkEntriesRequest{EntryIDs: []int64{b.ID}})
	require.NoError(t, err)
	assert.Len(t, resp.CreatedLinkIDs, 1)
	assert.Equal(t, 0, resp.Skipped)

	// relinking the same pair is a no-op, not an error
	resp, err = f.readings.LinkEntries(ctx, r.ID, models.LinkEntriesRequest{EntryIDs: []int64{b.ID}})
	require.NoError(t, err)
	assert.Empty(t, resp.CreatedLinkIDs)
	assert.Equal(t, 1, resp.Skipped)

	assert.Equal(t, 2, f.countRows(t, "reading_entry_links"))
}

func TestRepository_LinkEntriesUnknownReferences(t *testing.T) {
	ctx := context.Background()
	f := getFixture(t)
	a := f.createEntry(t, "a")
	r := f.createReading(t, "temperature", "20.5", time.Now().UTC(), a.ID)

	_, err := f.readings.LinkEntries(ctx, 9999, models.LinkEntriesRequest{EntryIDs: []int64{a.ID}})
	require.Error(t, err)
	assert.True(t, models.IsNotFound(err))

	_, err = f.readings.LinkEntries(ctx, r.ID, models.LinkEntriesRequest{EntryIDs: []int64{9999}})
	require.Error(t, err)
	assert.True(t, models.IsNotFound(err))

	assert.Equal(t, 1, f.countRows(t, "reading_entry_links"))
}

func TestRepository_ListForEntryOrderAndFilter(t *testing.T) {
	ctx := context.Background()
	f := getFixture(t)
	e := f.createEntry(t, "a")

	t1 := time.Date(2026, 1, 10, 10, 0, 0, 0, time.UTC)
	t2 := time.Date(2026, 1, 10, 11, 0, 0, 0, time.UTC)
	f.createReading(t, "temperature", "20.0", t1, e.ID)
	newest := f.createReading(t, "temperature", "21.0", t2, e.ID)
	f.createReading(t, "gravity", "1.050", t1, e.ID)

	listed, err := f.readings.ListForEntry(ctx, e.ID, "")
	require.NoError(t, err)
	require.Len(t, listed, 3)
	assert.Equal(t, newest.ID, listed[0].ID, "newest recorded_at first")

	temps, err := f.readings.ListForEntry(ctx, e.ID, "temperature")
	require.NoError(t, err)
	require.Len(t, temps, 2)
	for _, r := range temps {
		assert.Equal(t, "temperature", r.Kind)
	}

	empty, err := f.readings.ListForEntry(ctx, e.ID, "ph")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestRepository_UnlinkKeepsReading(t *testing.T) {
	ctx := context.Background()
	f := getFixture(t)

	a := f.createEntry(t, "a")
	b := f.createEntry(t, "b")
	r := f.createReading(t, "temperature", "20.5", time.Now().UTC(), a.ID, b.ID)

	removed, err := f.readings.Unlink(ctx, r.ID, a.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	// gone from a, still visible from b
	fromA, err := f.readings.ListForEntry(ctx, a.ID, "")
	require.NoError(t, err)
	assert.Empty(t, fromA)
	fromB, err := f.readings.ListForEntry(ctx, b.ID, "")
	require.NoError(t, err)
	assert.Len(t, fromB, 1)

	// removing the last link never deletes the reading itself
	removed, err = f.readings.Unlink(ctx, r.ID, b.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	stored, err := f.readings.GetByID(ctx, r.ID)
	require.NoError(t, err)
	require.NotNil(t, stored, "orphaned reading stays stored until purged")

	// a missing pair reports removed=false, not an error
	removed, err = f.readings.Unlink(ctx, r.ID, a.ID)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestRepository_PurgeOrphaned(t *testing.T) {
	ctx := context.Background()
	f := getFixture(t)

	a := f.createEntry(t, "a")
	orphan := f.createReading(t, "temperature", "20.5", time.Now().UTC(), a.ID)
	kept := f.createReading(t, "gravity", "1.050", time.Now().UTC(), a.ID)

	_, err := f.readings.Unlink(ctx, orphan.ID, a.ID)
	require.NoError(t, err)

	purged, err := f.readings.PurgeOrphaned(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	gone, err := f.readings.GetByID(ctx, orphan.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
	stillThere, err := f.readings.GetByID(ctx, kept.ID)
	require.NoError(t, err)
	assert.NotNil(t, stillThere)
}

func TestRepository_SummarizePicksLatestPerKind(t *testing.T) {
	ctx := context.Background()
	f := getFixture(t)
	e := f.createEntry(t, "a")

	t1 := time.Date(2026, 1, 10, 10, 0, 0, 0, time.UTC)
	t2 := time.Date(2026, 1, 10, 11, 0, 0, 0, time.UTC)
	f.createReading(t, "temperature", "20.0", t1, e.ID)
	latest := f.createReading(t, "temperature", "21.0", t2, e.ID)
	f.createReading(t, "gravity", "1.050", t1, e.ID)

	summary, err := f.readings.Summarize(ctx, e.ID)
	require.NoError(t, err)
	require.Len(t, summary, 2)
	assert.Equal(t, latest.ID, summary["temperature"].ID)
	assert.Equal(t, "21.0", summary["temperature"].Value)
	assert.Equal(t, "1.050", summary["gravity"].Value)
}

func TestRepository_SummarizeTiesBreakOnID(t *testing.T) {
	ctx := context.Background()
	f := getFixture(t)
	e := f.createEntry(t, "a")

	same := time.Date(2026, 1, 10, 10, 0, 0, 0, time.UTC)
	f.createReading(t, "temperature", "20.0", same, e.ID)
	winner := f.createReading(t, "temperature", "20.1", same, e.ID)

	summary, err := f.readings.Summarize(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, winner.ID, summary["temperature"].ID, "greater id wins a recorded_at tie")
}

func TestRepository_Stats(t *testing.T) {
	ctx := context.Background()
	f := getFixture(t)

	a := f.createEntry(t, "a")
	b := f.createEntry(t, "b")

	t1 := time.Date(2026, 1, 10, 10, 0, 0, 0, time.UTC)
	t2 := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	f.createReading(t, "temperature", "20.0", t1, a.ID, b.ID) // primary on a
	f.createReading(t, "gravity", "1.050", t2, b.ID, a.ID)    // secondary on a

	stats, err := f.readings.Stats(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalReadings)
	assert.Equal(t, 2, stats.KindCount)
	assert.ElementsMatch(t, []string{"temperature", "gravity"}, stats.Kinds)
	require.NotNil(t, stats.EarliestReading)
	require.NotNil(t, stats.LatestReading)
	assert.True(t, t1.Equal(*stats.EarliestReading))
	assert.True(t, t2.Equal(*stats.LatestReading))
	assert.Equal(t, 1, stats.PrimaryLinks)
	assert.Equal(t, 1, stats.SecondaryLinks)

	empty, err := f.readings.Stats(ctx, 9999)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.TotalReadings)
	assert.Nil(t, empty.EarliestReading)
}
