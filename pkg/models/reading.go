package models

import (
	"time"
)

// Link types for reading/entry associations. Each entry tracks its own
// primary/secondary designation for a reading; primary-uniqueness is not
// enforced globally across entries.
const (
	LinkTypePrimary   = "primary"
	LinkTypeSecondary = "secondary"
	LinkTypeReference = "reference"
)

// Source types for readings.
const (
	SourceTypeDevice   = "device"
	SourceTypeManual   = "manual"
	SourceTypeAPI      = "api"
	SourceTypeMigrated = "migrated" // rows carried over from the legacy per-entry table
)

// Reading is one immutable physical measurement. Corrections are modeled as
// new readings with links replacing old ones, never in-place edits.
type Reading struct {
	ID         int64     `json:"id" db:"id"`
	Kind       string    `json:"kind" db:"kind"`
	Value      string    `json:"value" db:"value"` // stored as text to preserve source formatting
	RecordedAt time.Time `json:"recorded_at" db:"recorded_at"`
	SourceType string    `json:"source_type" db:"source_type"`
	SourceID   *string   `json:"source_id,omitempty" db:"source_id"`
	Metadata   Metadata  `json:"metadata" db:"metadata"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// ReadingLink associates one reading with one entry.
type ReadingLink struct {
	ID        int64     `json:"id" db:"id"`
	ReadingID int64     `json:"reading_id" db:"reading_id"`
	EntryID   int64     `json:"entry_id" db:"entry_id"`
	LinkType  string    `json:"link_type" db:"link_type"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// EntryReading is a reading as seen from one entry: the reading row plus the
// link metadata for that entry.
type EntryReading struct {
	Reading
	LinkType           string    `json:"link_type" db:"link_type"`
	LinkedAt           time.Time `json:"linked_at" db:"linked_at"`
	TotalLinkedEntries int       `json:"total_linked_entries" db:"total_linked_entries"`
}

// LegacyReadingRow mirrors the shape of the old duplicated-storage format, one
// row per link. It is synthesized on read and never stored, except by the
// explicit reverse migration.
type LegacyReadingRow struct {
	EntryID    int64     `json:"entry_id" db:"entry_id"`
	Kind       string    `json:"kind" db:"kind"`
	Value      string    `json:"value" db:"value"`
	RecordedAt time.Time `json:"recorded_at" db:"recorded_at"`
	SourceType string    `json:"source_type" db:"source_type"`
	SourceID   *string   `json:"source_id,omitempty" db:"source_id"`
}

// CreateReadingRequest creates one reading linked to one or more entries.
type CreateReadingRequest struct {
	Kind       string         `json:"kind" validate:"required"`
	Value      string         `json:"value" validate:"required"`
	RecordedAt time.Time      `json:"recorded_at" validate:"required"`
	EntryIDs   []int64        `json:"entry_ids" validate:"required,min=1"`
	SourceType string         `json:"source_type,omitempty" validate:"omitempty,oneof=device manual api"`
	SourceID   *string        `json:"source_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`

	// FirstLinkType applies to the first entry id; the rest default to
	// secondary unless overridden per id.
	FirstLinkType     string           `json:"first_link_type,omitempty" validate:"omitempty,oneof=primary secondary reference"`
	LinkTypeOverrides map[int64]string `json:"link_type_overrides,omitempty"`
}

// LinkEntriesRequest links an existing reading to additional entries.
type LinkEntriesRequest struct {
	EntryIDs []int64 `json:"entry_ids" validate:"required,min=1"`
	LinkType string  `json:"link_type,omitempty" validate:"omitempty,oneof=primary secondary reference"`
}

// ReadingListResponse is the payload for per-entry reading listings.
type ReadingListResponse struct {
	EntryID  int64          `json:"entry_id"`
	Readings []EntryReading `json:"readings"`
}

// LinkEntriesResponse reports the outcome of a link request. Pairs that
// already existed are counted as skipped, not errors.
type LinkEntriesResponse struct {
	ReadingID      int64   `json:"reading_id"`
	CreatedLinkIDs []int64 `json:"created_link_ids"`
	Skipped        int     `json:"skipped"`
}

// ReadingStats summarizes the readings linked to one entry.
type ReadingStats struct {
	TotalReadings   int        `json:"total_readings" db:"total_readings"`
	KindCount       int        `json:"kind_count" db:"kind_count"`
	Kinds           []string   `json:"kinds"`
	EarliestReading *time.Time `json:"earliest_reading,omitempty" db:"earliest_reading"`
	LatestReading   *time.Time `json:"latest_reading,omitempty" db:"latest_reading"`
	PrimaryLinks    int        `json:"primary_links" db:"primary_links"`
	SecondaryLinks  int        `json:"secondary_links" db:"secondary_links"`
}
