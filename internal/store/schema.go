package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	pgxv5 "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/starford/mailblog/internal/sqlbuilder"
)

//go:embed migrations
var migrationsFS embed.FS

// Migrate creates or upgrades the schema. It runs on its own connection
// because the migration driver closes the database it is handed.
func (s *Store) Migrate(ctx context.Context) error {
	driver, source, err := driverSource(s.dialect, s.dsn)
	if err != nil {
		return err
	}
	conn, err := sql.Open(driver, source)
	if err != nil {
		return storeErr("open migration db", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return storeErr("ping migration db", err)
	}

	var (
		dbDriver database.Driver
		name     string
	)
	switch s.dialect {
	case sqlbuilder.SQLite:
		dbDriver, err = sqlite3.WithInstance(conn, &sqlite3.Config{})
		name = "sqlite3"
	case sqlbuilder.Postgres:
		dbDriver, err = pgxv5.WithInstance(conn, &pgxv5.Config{})
		name = "pgx5"
	}
	if err != nil {
		conn.Close()
		return storeErr("migration driver", err)
	}

	src, err := iofs.New(migrationsFS, "migrations/"+string(s.dialect))
	if err != nil {
		dbDriver.Close()
		return fmt.Errorf("store: migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, name, dbDriver)
	if err != nil {
		dbDriver.Close()
		return storeErr("migrate init", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return storeErr("migrate up", err)
	}
	return nil
}
