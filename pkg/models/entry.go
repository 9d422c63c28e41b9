package models

import "time"

// Entry is a logical record in the surrounding application. The reading core
// treats it as an opaque link target; only existence and the readings_enabled
// flag matter here.
type Entry struct {
	ID              int64     `json:"id" db:"id"`
	Name            string    `json:"name" db:"name" validate:"required"`
	ReadingsEnabled bool      `json:"readings_enabled" db:"readings_enabled"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// CreateEntryRequest creates a new entry.
type CreateEntryRequest struct {
	Name            string `json:"name" validate:"required"`
	ReadingsEnabled *bool  `json:"readings_enabled,omitempty"`
}
