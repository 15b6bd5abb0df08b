package db

import (
	"database/sql"
	"embed"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/sthao/quickform/pkg/errors"
)

// LatestVersion is the schema version the repository code reads and writes.
const LatestVersion = 6

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrate brings the database at dbPath up to LatestVersion.
func Migrate(dbPath string) error {
	return MigrateTo(dbPath, LatestVersion)
}

// MigrateTo applies migrations until the schema is at version. Moving to an
// older version than the current one is not supported.
func MigrateTo(dbPath string, version uint) error {
	m, err := newMigrator(dbPath)
	if err != nil {
		return err
	}
	defer m.Close()

	current, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return errors.Wrap(err, "failed to read schema version")
	}
	if dirty {
		slog.Error("database_schema_dirty", "db_path", dbPath, "version", current)
		return errors.Wrap(migrate.ErrDirty{Version: int(current)}, "schema left dirty by a failed migration")
	}
	if current > version {
		return fmt.Errorf("schema version %d is newer than requested %d", current, version)
	}

	slog.Info("database_migrate", "db_path", dbPath, "from_version", current, "to_version", version)
	if err := m.Migrate(version); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		slog.Error("database_migrate_failed", "db_path", dbPath, "error", err)
		return errors.Wrap(err, "failed to migrate schema")
	}

	slog.Info("database_migrate_complete", "db_path", dbPath, "version", version)
	return nil
}

// SchemaVersion reports the applied schema version. A database that has never
// been migrated reports version 0.
func SchemaVersion(dbPath string) (uint, bool, error) {
	m, err := newMigrator(dbPath)
	if err != nil {
		return 0, false, err
	}
	defer m.Close()

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrap(err, "failed to read schema version")
	}
	return version, dirty, nil
}

// newMigrator opens a dedicated connection for schema changes. Foreign keys
// stay off on it so table rebuilds do not cascade into child tables.
func newMigrator(dbPath string) (*migrate.Migrate, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database for migration")
	}

	driver, err := sqlite.WithInstance(conn, &sqlite.Config{})
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "failed to init migration driver")
	}

	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		driver.Close()
		return nil, errors.Wrap(err, "failed to load migrations")
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		driver.Close()
		return nil, errors.Wrap(err, "failed to init migrator")
	}
	return m, nil
}
