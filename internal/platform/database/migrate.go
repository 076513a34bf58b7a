package database

import (
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// MigrateUp applies all pending migrations from sourcePath to the SQLite
// database at dbPath. Used by cmd/migrate for the global database and by
// org provisioning for fresh tenant databases.
func MigrateUp(dbPath, sourcePath string) error {
	m, err := migrate.New("file://"+sourcePath, "sqlite3://"+dbPath)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

// MigrateDown rolls back the most recent migration.
func MigrateDown(dbPath, sourcePath string) error {
	m, err := migrate.New("file://"+sourcePath, "sqlite3://"+dbPath)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Steps(-1); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}
