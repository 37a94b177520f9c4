package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"checkout-service/internal/util"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

func migrationsFS() (fs.FS, error) {
	return fs.Sub(migrationFiles, "migrations")
}

func gooseDialect(driver string) (goose.Dialect, error) {
	switch driver {
	case DriverPostgres:
		return goose.DialectPostgres, nil
	case DriverSQLite:
		return goose.DialectSQLite3, nil
	}
	return "", fmt.Errorf("unsupported migration driver %q", driver)
}

func newProvider(db *sql.DB, driver string) (*goose.Provider, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	dialect, err := gooseDialect(driver)
	if err != nil {
		return nil, err
	}
	fsys, err := migrationsFS()
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}
	return goose.NewProvider(dialect, db, fsys)
}

// Migrate applies every pending embedded migration
func (s *Store) Migrate(ctx context.Context) error {
	provider, err := newProvider(s.db.DB, s.db.DriverName())
	if err != nil {
		return err
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("goose up: %w", err)
	}

	for _, res := range results {
		util.GetLogger().Info("Migration applied",
			zap.String("source", res.Source.Path),
			zap.Duration("duration", res.Duration))
	}
	return nil
}

// MigrateDown rolls back the most recent migration
func (s *Store) MigrateDown(ctx context.Context) error {
	provider, err := newProvider(s.db.DB, s.db.DriverName())
	if err != nil {
		return err
	}
	if _, err := provider.Down(ctx); err != nil {
		return fmt.Errorf("goose down: %w", err)
	}
	return nil
}

// MigrationVersion reports the current schema version
func (s *Store) MigrationVersion(ctx context.Context) (int64, error) {
	provider, err := newProvider(s.db.DB, s.db.DriverName())
	if err != nil {
		return 0, err
	}
	return provider.GetDBVersion(ctx)
}
