package database

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationFS embed.FS

// Migrator applies the embedded schema migrations for the connection's driver
type Migrator struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewMigrator creates a new migrator
func NewMigrator(db *sqlx.DB, logger *zap.Logger) *Migrator {
	return &Migrator{
		db:     db,
		logger: logger,
	}
}

// Up applies all pending migrations
func (m *Migrator) Up() error {
	mig, err := m.instance()
	if err != nil {
		return err
	}

	m.logger.Info("Starting database migrations", zap.String("driver", m.db.DriverName()))
	if err := mig.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, _ := mig.Version()
	m.logger.Info("Database migrations completed successfully",
		zap.Uint("version", version),
		zap.Bool("dirty", dirty))
	return nil
}

// Down rolls back the most recent migration
func (m *Migrator) Down() error {
	mig, err := m.instance()
	if err != nil {
		return err
	}

	if err := mig.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to roll back migration: %w", err)
	}
	m.logger.Info("Rolled back one migration")
	return nil
}

// Version returns the applied schema version
func (m *Migrator) Version() (uint, bool, error) {
	mig, err := m.instance()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := mig.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// instance builds a migrate.Migrate bound to the existing pool.
// It is never closed because closing it would close the shared *sql.DB.
func (m *Migrator) instance() (*migrate.Migrate, error) {
	var (
		dir    string
		driver database.Driver
		err    error
	)

	switch m.db.DriverName() {
	case DriverSQLite:
		dir = "migrations/sqlite"
		driver, err = migratesqlite.WithInstance(m.db.DB, &migratesqlite.Config{})
	case DriverPostgres:
		dir = "migrations/postgres"
		driver, err = migratepgx.WithInstance(m.db.DB, &migratepgx.Config{})
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", m.db.DriverName())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationFS, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	mig, err := migrate.NewWithInstance("iofs", source, m.db.DriverName(), driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	return mig, nil
}
