package boot

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/migrations"
	"github.com/Ramsey-B/fern/pkg/database"
)

// DatabaseDependency opens the SQLite store for this instance.
type DatabaseDependency struct {
	cfg    config.Config
	logger ectologger.Logger
	db     database.DB
}

func NewDatabaseDependency(cfg config.Config, logger ectologger.Logger) *DatabaseDependency {
	return &DatabaseDependency{cfg: cfg, logger: logger}
}

func (d *DatabaseDependency) GetName() string {
	return "database"
}

func (d *DatabaseDependency) DependsOn() []string {
	return nil
}

func (d *DatabaseDependency) Start(ctx context.Context) error {
	db, err := database.OpenSQLite(database.SQLiteConfig{
		Path:        d.cfg.DatabasePath,
		BusyTimeout: d.cfg.DatabaseBusyTimeout,
		JournalWAL:  d.cfg.DatabaseJournalWAL,
	}, d.logger)
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return err
	}
	d.db = db
	return nil
}

func (d *DatabaseDependency) Stop(ctx context.Context) error {
	if d.db == nil {
		return nil
	}
	return d.db.Close()
}

// DB returns the open store handle. Only valid after Start.
func (d *DatabaseDependency) DB() database.DB {
	return d.db
}

// MigrationDependency runs the migration engine exactly once per process
// start, after the store is open. Individual migration failures are recorded
// by the engine and degrade their feature instead of failing boot; only a
// broken tracking table stops startup.
type MigrationDependency struct {
	database *DatabaseDependency
	logger   ectologger.Logger
	engine   *migrations.Engine
}

func NewMigrationDependency(db *DatabaseDependency, logger ectologger.Logger) *MigrationDependency {
	return &MigrationDependency{database: db, logger: logger}
}

func (m *MigrationDependency) GetName() string {
	return "migrations"
}

func (m *MigrationDependency) DependsOn() []string {
	return []string{"database"}
}

func (m *MigrationDependency) Start(ctx context.Context) error {
	m.engine = migrations.NewEngine(m.database.DB(), m.logger)
	return m.engine.Run(ctx)
}

func (m *MigrationDependency) Stop(ctx context.Context) error {
	return nil
}

// Engine returns the migration engine. Only valid after Start.
func (m *MigrationDependency) Engine() *migrations.Engine {
	return m.engine
}
