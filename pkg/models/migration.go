package models

import "time"

// MigrationRecord is durable proof that a named schema change ran against this
// store instance. A success record means the migration is never re-applied; a
// failure record preserves the error detail and the migration is retried on
// the next engine run.
type MigrationRecord struct {
	ID              int64     `json:"id" db:"id"`
	Name            string    `json:"name" db:"name"`
	AppliedAt       time.Time `json:"applied_at" db:"applied_at"`
	Success         bool      `json:"success" db:"success"`
	Detail          *string   `json:"detail,omitempty" db:"detail"`
	ExecutionTimeMS int64     `json:"execution_time_ms" db:"execution_time_ms"`
}

// MigrationStatusResponse is the operational view of applied migrations.
type MigrationStatusResponse struct {
	Records []MigrationRecord `json:"records"`
	Pending []string          `json:"pending"`
}
