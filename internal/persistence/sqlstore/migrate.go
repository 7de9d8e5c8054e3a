package sqlstore

import (
	"context"
	"embed"
	"io/fs"
	"path"

	"github.com/readingattendance/readingd/internal/persistence/sqlstore/migration"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationFiles embed.FS

// Migrations returns the embedded migration files for a driver.
func Migrations(driver string) (fs.FS, error) {
	return fs.Sub(migrationFiles, path.Join("migrations", driver))
}

// Migrate applies every pending schema migration and returns how many ran.
func (s *Store) Migrate(ctx context.Context) (int, error) {
	files, err := Migrations(s.driver)
	if err != nil {
		return 0, err
	}
	manager := migration.NewManager(
		migration.NewScanner(files, "."),
		migration.NewSQLExecutor(s.db),
		s.logger,
	)
	return manager.RunMigrations(ctx)
}
