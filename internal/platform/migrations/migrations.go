// Package migrations applies the registry's schema via golang-migrate
// against an embedded SQL source, so both the write and read pools can be
// brought to the current schema without a separate migration binary.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	pgdriver "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed sql/*.sql
var files embed.FS

// Apply migrates db to the latest embedded version. It is idempotent:
// calling Apply against an already-current database is a no-op.
func Apply(db *sql.DB) error {
	source, err := iofs.New(files, "sql")
	if err != nil {
		return fmt.Errorf("open embedded migration source: %w", err)
	}

	driver, err := pgdriver.WithInstance(db, &pgdriver.Config{})
	if err != nil {
		return fmt.Errorf("build postgres migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("build migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
