package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var MigrationsFS embed.FS

// Manager handles database migrations
type Manager struct {
	migrator *migrate.Migrate
	db       *sql.DB
	ownsDB   bool
}

// NewManagerWithDB creates a migration manager on an existing connection.
// The connection stays open after Close.
func NewManagerWithDB(db *sql.DB) (*Manager, error) {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}

	sourceDriver, err := iofs.New(MigrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to create source driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}

	return &Manager{migrator: migrator, db: db}, nil
}

// NewManager opens dbPath and creates a migration manager that owns the connection
func NewManager(dbPath string) (*Manager, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	m, err := NewManagerWithDB(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	m.ownsDB = true
	return m, nil
}

// Up runs all pending migrations
func (m *Manager) Up() error {
	log.Println("Running database migrations...")

	if err := m.FixDirtyState(); err != nil {
		return err
	}

	err := m.migrator.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		log.Println("No new migrations to run")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Println("Migrations completed successfully")
	return nil
}

// Down rolls back the given number of migrations; 0 rolls back all of them
func (m *Manager) Down(steps int) error {
	log.Println("Rolling back migrations...")

	var err error
	if steps > 0 {
		err = m.migrator.Steps(-steps)
	} else {
		err = m.migrator.Down()
	}

	if errors.Is(err, migrate.ErrNoChange) {
		log.Println("No migrations to rollback")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to rollback migration: %w", err)
	}

	log.Println("Migration rollback completed successfully")
	return nil
}

// Steps applies n migrations forward
func (m *Manager) Steps(n int) error {
	err := m.migrator.Steps(n)
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to migrate %d steps: %w", n, err)
	}
	return nil
}

// Force sets the migration version without running migrations
func (m *Manager) Force(version int) error {
	log.Printf("Forcing migration version to %d...", version)

	if err := m.migrator.Force(version); err != nil {
		return fmt.Errorf("failed to force migration version: %w", err)
	}

	log.Printf("Migration version forced to %d", version)
	return nil
}

// Version returns the current migration version
func (m *Manager) Version() (uint, bool, error) {
	version, dirty, err := m.migrator.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, fmt.Errorf("failed to get migration version: %w", err)
	}

	return version, dirty, nil
}

// FixDirtyState attempts to fix a dirty migration state left by a failed run
func (m *Manager) FixDirtyState() error {
	version, dirty, err := m.Version()
	if err != nil {
		return err
	}

	if !dirty {
		return nil
	}

	log.Printf("Database is in dirty state at version %d. Attempting to fix...", version)

	if version == 0 {
		return fmt.Errorf("database is dirty at version 0 and cannot be fixed automatically")
	}

	// Roll the marker back so the failed migration runs again
	target := int(version) - 1
	if target == 0 {
		target = -1 // nil version: nothing applied
	}
	if err := m.migrator.Force(target); err != nil {
		return fmt.Errorf("failed to fix dirty database state: %w", err)
	}

	log.Printf("Successfully forced to version %d", target)
	return nil
}

// Close releases the connection when the manager opened it itself
func (m *Manager) Close() error {
	if m.ownsDB {
		return m.db.Close()
	}
	return nil
}
