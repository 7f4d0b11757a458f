// Package sqlite persists pipeline runs and their detected objects. One row
// per run, one row per merged object; feature vectors, outlines, and
// assessments are stored as JSON columns so the schema survives feature
// additions without migrations.
package sqlite

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/iceberg.report/internal/monitoring"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Open opens (creating if needed) the database at path, applies pragmas for
// concurrent access, and runs all pending migrations.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database %q: %w", path, err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// migrateUp applies all embedded migrations that are not yet in the database.
func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load embedded migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	// Not closing m: that would close the shared DB connection.

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	version, _, err := m.Version()
	if err == nil {
		monitoring.Logf("sqlite: schema at version %d", version)
	}
	return nil
}

const maxBusyRetries = 5

// retryOnBusy retries a write that failed with SQLITE_BUSY, backing off
// between attempts. Any other error fails immediately.
func retryOnBusy(fn func() error) error {
	var err error
	for attempt := 0; attempt < maxBusyRetries; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !strings.Contains(err.Error(), "SQLITE_BUSY") {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * 10 * time.Millisecond)
	}
	return err
}
