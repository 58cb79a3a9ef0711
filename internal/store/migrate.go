package store

import (
	"context"
	"embed"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationFiles embed.FS

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// migrator applies the embedded migrations for the store's dialect
type migrator struct {
	s   *Store
	dir string
}

func newMigrator(s *Store) *migrator {
	dir := "migrations/sqlite"
	if s.driver == DriverPostgres {
		dir = "migrations/postgres"
	}
	return &migrator{s: s, dir: dir}
}

// Migrate runs all pending migrations
func (m *migrator) Migrate(ctx context.Context) error {
	if err := m.ensureMigrationsTable(ctx); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	available, err := m.loadMigrations()
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	pending := findPendingMigrations(available, applied)
	if len(pending) == 0 {
		m.s.logger.Debug().Msg("no pending migrations")
		return nil
	}

	for _, migration := range pending {
		if err := m.apply(ctx, migration); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", migration.Version, err)
		}
	}
	m.s.logger.Info().Int("applied", len(pending)).Str("driver", m.s.driver).Msg("database migrated")
	return nil
}

func (m *migrator) ensureMigrationsTable(ctx context.Context) error {
	_, err := m.s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL
		)`)
	return err
}

func (m *migrator) appliedVersions(ctx context.Context) (map[int]bool, error) {
	rows, err := m.s.query(ctx, m.s.sb.Select("version").From("schema_migrations"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	versions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		versions[version] = true
	}
	return versions, rows.Err()
}

// loadMigrations reads "NNN_description.sql" files in version order
func (m *migrator) loadMigrations() ([]Migration, error) {
	entries, err := migrationFiles.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var migrations []Migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		parts := strings.SplitN(entry.Name(), "_", 2)
		if len(parts) < 2 {
			m.s.logger.Warn().Str("file", entry.Name()).Msg("skipping migration file with invalid name")
			continue
		}
		version, err := strconv.Atoi(parts[0])
		if err != nil {
			m.s.logger.Warn().Str("file", entry.Name()).Msg("skipping migration file with invalid version")
			continue
		}

		content, err := migrationFiles.ReadFile(m.dir + "/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read migration file %s: %w", entry.Name(), err)
		}

		migrations = append(migrations, Migration{
			Version:     version,
			Description: strings.ReplaceAll(strings.TrimSuffix(parts[1], ".sql"), "_", " "),
			SQL:         string(content),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

func findPendingMigrations(available []Migration, applied map[int]bool) []Migration {
	var pending []Migration
	for _, migration := range available {
		if !applied[migration.Version] {
			pending = append(pending, migration)
		}
	}
	return pending
}

// apply runs one migration and records it in a single transaction
func (m *migrator) apply(ctx context.Context, migration Migration) error {
	m.s.logger.Info().Int("version", migration.Version).Str("description", migration.Description).Msg("applying migration")

	tx, err := m.s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	record := m.s.sb.Insert("schema_migrations").
		Columns("version", "description").
		Values(migration.Version, migration.Description)
	if _, err := m.s.exec(ctx, tx, record); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}
	return tx.Commit()
}
