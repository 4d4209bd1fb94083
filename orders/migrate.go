package orders

import (
	"context"
	"database/sql"
	"embed"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"

	"github.com/zircuit-labs/zkr-taskworker/xerrors/errclass"
	"github.com/zircuit-labs/zkr-taskworker/xerrors/stacktrace"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrations returns the schema migrations of the ledger.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		// the directory is embedded at compile time
		panic(err)
	}
	return sub
}

// NewMigrator prepares the ledger migrations for db, a Postgres database.
func NewMigrator(db *sql.DB) (*goose.Provider, error) {
	provider, err := goose.NewProvider(goose.DialectPostgres, db, Migrations())
	if err != nil {
		return nil, errclass.WrapAs(stacktrace.Wrap(err), errclass.Persistent)
	}
	return provider, nil
}

// Migrate brings the ledger schema up to date.
func Migrate(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	provider, err := NewMigrator(db)
	if err != nil {
		return err
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return errclass.WrapAs(stacktrace.Wrap(err), errclass.Persistent)
	}
	for _, r := range results {
		logger.Info("applied ledger migration",
			slog.Int64("version", r.Source.Version),
			slog.Duration("duration", r.Duration),
		)
	}
	return nil
}
