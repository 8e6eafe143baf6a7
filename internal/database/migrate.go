package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/identity/*.sql
var identityMigrations embed.FS

//go:embed migrations/content/*.sql
var contentMigrations embed.FS

// Schema selects the migration set for one of the two databases.
type Schema string

const (
	SchemaIdentity Schema = "identity"
	SchemaContent  Schema = "content"
)

func (s Schema) files() (fs.FS, error) {
	switch s {
	case SchemaIdentity:
		return fs.Sub(identityMigrations, "migrations/identity")
	case SchemaContent:
		return fs.Sub(contentMigrations, "migrations/content")
	default:
		return nil, fmt.Errorf("unknown schema %q", string(s))
	}
}

// gooseUp is a seam for tests.
var gooseUp = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// Migrate applies the embedded migrations of schema to db. Each database keeps
// its own goose version table, so the two schemas evolve independently.
func Migrate(ctx context.Context, db *DB, schema Schema) error {
	files, err := schema.files()
	if err != nil {
		return err
	}

	goose.SetBaseFS(files)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	if err := gooseUp(ctx, db.DB.DB, "."); err != nil {
		return fmt.Errorf("migrate %s schema: %w", schema, err)
	}
	return nil
}
