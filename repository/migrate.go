package repository

import (
	"context"
	"io/fs"
	"path"

	goerrors "github.com/goliatone/go-errors"
	auth "github.com/txnjournal/go-txn-auth"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/migrate"
)

const migrationsRoot = "data/sql/migrations"

// MigrationsFor returns the migration files for the dialect of db.
func MigrationsFor(db *bun.DB) (fs.FS, error) {
	var dir string
	switch db.Dialect().Name() {
	case dialect.PG:
		dir = "postgres"
	case dialect.SQLite:
		dir = "sqlite"
	default:
		return nil, goerrors.New("no migrations for dialect "+db.Dialect().Name().String(), goerrors.CategoryInternal)
	}
	return fs.Sub(auth.GetMigrationsFS(), path.Join(migrationsRoot, dir))
}

// Migrate applies every pending migration and returns the names applied.
func Migrate(ctx context.Context, db *bun.DB) ([]string, error) {
	fsys, err := MigrationsFor(db)
	if err != nil {
		return nil, err
	}

	migrations := migrate.NewMigrations()
	if err := migrations.Discover(fsys); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to discover migrations")
	}

	migrator := migrate.NewMigrator(db, migrations)
	if err := migrator.Init(ctx); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to init migration tables")
	}

	group, err := migrator.Migrate(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to run migrations")
	}
	if group.IsZero() {
		return nil, nil
	}

	applied := make([]string, 0, len(group.Migrations))
	for _, m := range group.Migrations {
		applied = append(applied, m.Name+"_"+m.Comment)
	}
	return applied, nil
}
