package database

import (
	"context"
	"embed"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
)

const migrationDir = "migrations"

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrate brings the schema up to the newest bundled goose migration.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	goose.SetBaseFS(migrationFiles)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("migration dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db.DB, migrationDir); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	return nil
}
