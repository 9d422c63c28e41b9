package database

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteConfig describes one independently-owned, single-file store instance.
type SQLiteConfig struct {
	Path        string
	BusyTimeout time.Duration
	JournalWAL  bool
}

// DSN builds the mattn/go-sqlite3 connection string. Foreign keys are always
// enabled (link rows cascade on reading deletion) and timestamps are read
// back in UTC.
func (c SQLiteConfig) DSN() string {
	params := url.Values{}
	params.Set("_foreign_keys", "on")
	params.Set("_loc", "UTC")
	if c.BusyTimeout > 0 {
		params.Set("_busy_timeout", fmt.Sprintf("%d", c.BusyTimeout.Milliseconds()))
	}
	if c.JournalWAL && !strings.Contains(c.Path, ":memory:") {
		params.Set("_journal_mode", "WAL")
	}

	sep := "?"
	if strings.Contains(c.Path, "?") {
		sep = "&"
	}
	return c.Path + sep + params.Encode()
}

// OpenSQLite opens the store file and enforces the single-writer discipline
// with one pooled connection. The store itself serializes conflicting writers;
// contention fails fast via the busy timeout rather than blocking forever.
func OpenSQLite(cfg SQLiteConfig, logger ectologger.Logger) (DB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	db, err := sqlx.Connect("sqlite3", cfg.DSN())
	if err != nil {
		logger.WithError(err).Errorf("failed to open sqlite store at %s", cfg.Path)
		return nil, fmt.Errorf("failed to open sqlite store: %w", err)
	}

	db.SetMaxOpenConns(1)

	logger.WithField("path", cfg.Path).Info("opened sqlite store")
	return NewDatabaseInstance(db, logger), nil
}
