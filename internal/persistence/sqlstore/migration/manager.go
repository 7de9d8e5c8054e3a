package migration

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"
)

// Manager applies pending migrations in version order.
type Manager struct {
	scanner  Scanner
	executor Executor
	logger   *slog.Logger
}

// NewManager constructs a Manager. A nil logger falls back to slog.Default.
func NewManager(scanner Scanner, executor Executor, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{scanner: scanner, executor: executor, logger: logger.With("component", "migration")}
}

// RunMigrations applies every pending migration and returns how many ran.
// A migration whose file changed after it was applied aborts the run.
func (m *Manager) RunMigrations(ctx context.Context) (int, error) {
	start := time.Now()

	if err := m.executor.InitializeVersionTable(ctx); err != nil {
		return 0, fmt.Errorf("initialize version table: %w", err)
	}

	status, err := m.Status(ctx)
	if err != nil {
		return 0, err
	}

	m.logger.InfoContext(ctx, "migration status",
		"current_version", status.CurrentVersion,
		"pending", len(status.Pending),
	)

	for i, migration := range status.Pending {
		migrationStart := time.Now()
		logger := m.logger.With(
			"version", migration.Version,
			"description", migration.Description,
			"position", fmt.Sprintf("%d/%d", i+1, len(status.Pending)),
		)

		if err := m.executor.ExecuteMigration(ctx, migration); err != nil {
			logger.ErrorContext(ctx, "migration failed", "error", err)
			return i, fmt.Errorf("migration %s failed: %w", migration.Version, err)
		}

		elapsed := time.Since(migrationStart)
		if err := m.executor.RecordMigration(ctx, migration, elapsed); err != nil {
			logger.ErrorContext(ctx, "failed to record migration", "error", err)
			return i, fmt.Errorf("record migration %s: %w", migration.Version, err)
		}

		logger.InfoContext(ctx, "migration applied", "duration", elapsed)
	}

	if len(status.Pending) > 0 {
		m.logger.InfoContext(ctx, "migrations complete", "applied", len(status.Pending), "duration", time.Since(start))
	}
	return len(status.Pending), nil
}

// Status compares the migration files with the schema_migrations table.
func (m *Manager) Status(ctx context.Context) (Status, error) {
	migrations, err := m.scanner.ScanMigrations()
	if err != nil {
		return Status{}, fmt.Errorf("scan migrations: %w", err)
	}

	applied, err := m.executor.GetAppliedVersions(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("get applied versions: %w", err)
	}

	byVersion := make(map[int]AppliedMigration, len(applied))
	status := Status{Applied: applied}
	current := -1
	for _, record := range applied {
		number, err := strconv.Atoi(record.Version)
		if err != nil {
			return Status{}, NewMigrationError(record.Version, "", "parse applied version", err)
		}
		byVersion[number] = record
		if number > current {
			current = number
			status.CurrentVersion = record.Version
		}
	}

	for _, migration := range migrations {
		number, _ := strconv.Atoi(migration.Version)
		record, ok := byVersion[number]
		if !ok {
			status.Pending = append(status.Pending, migration)
			continue
		}
		if record.Checksum != "" && record.Checksum != migration.Checksum {
			return Status{}, NewMigrationError(migration.Version, migration.FilePath, "verify checksum", ErrChecksumMismatch)
		}
	}

	return status, nil
}
