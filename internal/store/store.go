// Package store is the local SQL backend: saved items, digest reports and
// the persistent page cache, on SQLite or PostgreSQL.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"           // Postgres driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/rs/zerolog"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Calendar days are stored as text so range filters compare the same way on
// both drivers.
const dayLayout = "2006-01-02"

// Options configures Open.
type Options struct {
	Driver   string
	DSN      string
	Location *time.Location // Calendar days of item capture times are taken in this zone
	Logger   *zerolog.Logger
}

// Store implements persistence.ItemStore and persistence.ReportStore over
// database/sql. Queries are built with squirrel so one code path serves both
// placeholder styles.
type Store struct {
	db     *sql.DB
	driver string
	sb     sq.StatementBuilderType
	loc    *time.Location
	now    func() time.Time
	logger zerolog.Logger
}

// Open connects to the database and applies pending migrations.
func Open(ctx context.Context, opts Options) (*Store, error) {
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}

	placeholder, err := placeholderFor(opts.Driver)
	if err != nil {
		return nil, err
	}
	if opts.Driver == DriverSQLite {
		if dir := filepath.Dir(opts.DSN); opts.DSN != ":memory:" && dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
		}
	}

	db, err := sql.Open(opts.Driver, opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if opts.Driver == DriverPostgres {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	} else {
		// SQLite allows a single writer.
		db.SetMaxOpenConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{
		db:     db,
		driver: opts.Driver,
		sb:     sq.StatementBuilder.PlaceholderFormat(placeholder),
		loc:    loc,
		now:    time.Now,
		logger: logger,
	}

	if err := newMigrator(s).Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// placeholderFor returns the bind variable style of driver.
func placeholderFor(driver string) (sq.PlaceholderFormat, error) {
	switch driver {
	case DriverSQLite:
		return sq.Question, nil
	case DriverPostgres:
		return sq.Dollar, nil
	}
	return nil, fmt.Errorf("unsupported SQL driver %q", driver)
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Driver returns the database driver name.
func (s *Store) Driver() string {
	return s.driver
}

// WithClock replaces the time source, for tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) exec(ctx context.Context, db execer, b sq.Sqlizer) (sql.Result, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}
	return db.ExecContext(ctx, query, args...)
}

func (s *Store) query(ctx context.Context, b sq.Sqlizer) (*sql.Rows, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}
	return s.db.QueryContext(ctx, query, args...)
}

func (s *Store) queryRow(ctx context.Context, b sq.Sqlizer) (*sql.Row, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}
	return s.db.QueryRowContext(ctx, query, args...), nil
}

func (s *Store) day(t time.Time) string {
	return t.In(s.loc).Format(dayLayout)
}
