// Package migrations holds the versioned catalog schema and applies it with
// golang-migrate from files embedded in the binary.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	msqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	msqlite3 "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed files/*.sql
var migrationFiles embed.FS

// Status describes where a database stands relative to the embedded migrations.
type Status struct {
	Version uint
	Latest  uint
	Dirty   bool
}

// Current reports whether the schema is at the latest version.
func (s Status) Current() bool {
	return !s.Dirty && s.Version == s.Latest
}

// CheckDBMigrationStatus verifies that the database schema is up-to-date.
// Returns nil if the database is at the latest version.
func CheckDBMigrationStatus(db *sql.DB, driver string) error {
	status, err := ReadStatus(db, driver)
	if err != nil {
		return err
	}

	if status.Dirty {
		return fmt.Errorf("database is in dirty state at version %d (migration failed previously)", status.Version)
	}
	if status.Version < status.Latest {
		return fmt.Errorf("database is at version %d but latest is %d (%d migrations behind)",
			status.Version, status.Latest, status.Latest-status.Version)
	}
	if status.Version > status.Latest {
		return fmt.Errorf("database version %d is ahead of binary version %d (binary needs update)",
			status.Version, status.Latest)
	}
	return nil
}

// ReadStatus returns the current and latest schema versions.
func ReadStatus(db *sql.DB, driver string) (Status, error) {
	m, err := newMigrate(db, driver)
	if err != nil {
		return Status{}, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	// m is not closed: closing it would close db, which the caller owns.

	version, dirty, err := m.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return Status{}, fmt.Errorf("database has no schema version (needs migration)")
		}
		return Status{}, fmt.Errorf("failed to get database version: %w", err)
	}

	sourceDriver, err := iofs.New(migrationFiles, "files")
	if err != nil {
		return Status{}, fmt.Errorf("failed to read migration files: %w", err)
	}
	defer sourceDriver.Close()

	latest, err := getLatestVersion(sourceDriver)
	if err != nil {
		return Status{}, fmt.Errorf("failed to determine latest version: %w", err)
	}

	return Status{Version: version, Latest: latest, Dirty: dirty}, nil
}

// MigrateUp runs all pending migrations to bring the database to the latest
// version. It is safe to call on every start.
func MigrateUp(db *sql.DB, driver string) error {
	m, err := newMigrate(db, driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		return fmt.Errorf("migration failed: %w", err)
	}

	return nil
}

// newMigrate creates a migrate instance for the given database/sql driver name.
func newMigrate(db *sql.DB, driver string) (*migrate.Migrate, error) {
	sourceDriver, err := iofs.New(migrationFiles, "files")
	if err != nil {
		return nil, fmt.Errorf("failed to create source driver: %w", err)
	}

	var dbDriver database.Driver
	switch driver {
	case "sqlite3":
		dbDriver, err = msqlite3.WithInstance(db, &msqlite3.Config{})
	case "sqlite":
		dbDriver, err = msqlite.WithInstance(db, &msqlite.Config{})
	default:
		err = fmt.Errorf("unsupported driver %q", driver)
	}
	if err != nil {
		sourceDriver.Close()
		return nil, fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, driver, dbDriver)
	if err != nil {
		sourceDriver.Close()
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	return m, nil
}

// getLatestVersion returns the highest version number available in the source.
func getLatestVersion(src source.Driver) (uint, error) {
	version, err := src.First()
	if err != nil {
		return 0, err
	}

	latest := version
	for {
		next, err := src.Next(latest)
		if err != nil {
			break
		}
		latest = next
	}

	return latest, nil
}
