package reading

import (
	"context"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Summarize returns the latest reading per kind for one entry. Latest means
// greatest recorded_at, with the greater id winning a timestamp tie.
func (r *Repository) Summarize(ctx context.Context, entryID int64) (map[string]models.Reading, error) {
	ctx, span := tracing.StartSpan(ctx, "reading.Repository.Summarize")
	defer span.End()

	readings, err := r.ListForEntry(ctx, entryID, "")
	if err != nil {
		return nil, err
	}

	// ListForEntry orders recorded_at DESC, id DESC, so the first reading
	// seen for a kind is the latest one.
	summary := make(map[string]models.Reading, len(readings))
	for _, er := range readings {
		if _, ok := summary[er.Kind]; ok {
			continue
		}
		summary[er.Kind] = er.Reading
	}

	return summary, nil
}

// Stats aggregates the readings linked to one entry: totals, distinct kinds,
// recorded_at range and link-type counts.
func (r *Repository) Stats(ctx context.Context, entryID int64) (*models.ReadingStats, error) {
	ctx, span := tracing.StartSpan(ctx, "reading.Repository.Stats")
	defer span.End()

	readings, err := r.ListForEntry(ctx, entryID, "")
	if err != nil {
		return nil, err
	}

	stats := &models.ReadingStats{Kinds: []string{}}
	seenKinds := map[string]struct{}{}
	for _, er := range readings {
		stats.TotalReadings++
		if _, ok := seenKinds[er.Kind]; !ok {
			seenKinds[er.Kind] = struct{}{}
			stats.Kinds = append(stats.Kinds, er.Kind)
		}
		recorded := er.RecordedAt
		if stats.EarliestReading == nil || recorded.Before(*stats.EarliestReading) {
			t := recorded
			stats.EarliestReading = &t
		}
		if stats.LatestReading == nil || recorded.After(*stats.LatestReading) {
			t := recorded
			stats.LatestReading = &t
		}
		switch er.LinkType {
		case models.LinkTypePrimary:
			stats.PrimaryLinks++
		case models.LinkTypeSecondary:
			stats.SecondaryLinks++
		}
	}
	stats.KindCount = len(stats.Kinds)

	return stats, nil
}
