package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

//go:embed confirm_trigger.sql
var confirmTriggerSQL string

// MigrationsTable keeps this schema's version apart from other tools sharing the database.
const MigrationsTable = "bookstore_schema_migrations"

// RunMigrations brings the schema up to date. It opens its own database/sql
// connection so it can run before the pgx pool is created.
func RunMigrations(dsn string) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to ping database for migrations: %w", err)
	}

	driver, err := migratepg.WithInstance(db, &migratepg.Config{
		MigrationsTable: MigrationsTable,
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("could not open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}
	return nil
}

// InstallConfirmTrigger installs the legacy trigger that adds quantity_ordered
// to stock when a replenishment order is written as Confirmed. Migrations never
// install it; the order manager reconciles stock whether it is present or not.
func (s *PostgresStore) InstallConfirmTrigger(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, confirmTriggerSQL); err != nil {
		return fmt.Errorf("failed to install confirm trigger: %w", err)
	}
	return nil
}

// DropConfirmTrigger removes the legacy trigger and its function.
func (s *PostgresStore) DropConfirmTrigger(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		DROP TRIGGER IF EXISTS trg_confirm_replenishment ON replenishment_orders;
		DROP FUNCTION IF EXISTS apply_confirmed_replenishment();
	`)
	if err != nil {
		return fmt.Errorf("failed to drop confirm trigger: %w", err)
	}
	return nil
}
