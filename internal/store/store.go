package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/quarry/internal/querysql"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking (SQLite user_version):
// 0 - Initial schema (pre-migration)
// 1 - Added UNIQUE index on quarry_models.table_name
const currentSchemaVersion = 1

var validate = validator.New()

// Config configures a Store.
type Config struct {
	// DSN is a SQLite path (or ":memory:") or a postgres:// URL.
	DSN string `validate:"required"`

	// MaxOpenConns bounds the Postgres pool; 0 means unlimited.
	// SQLite always uses one connection.
	MaxOpenConns int `validate:"gte=0"`

	// BusyTimeoutMillis is the SQLite busy timeout.
	BusyTimeoutMillis int `validate:"gte=0"`
}

// IDGenerator produces text primary keys for records created without one.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 keys.
// It is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithIDGenerator sets the generator for missing text primary keys.
func WithIDGenerator(ids IDGenerator) Option {
	return func(s *Store) { s.ids = ids }
}

// Store provides model storage over database/sql.
// Safe for concurrent use.
type Store struct {
	db      *sql.DB
	dialect querysql.Dialect
	logger  *slog.Logger
	ids     IDGenerator
}

// Open opens the database named by dsn with default settings.
func Open(dsn string, opts ...Option) (*Store, error) {
	return OpenConfig(Config{DSN: dsn, BusyTimeoutMillis: 5000}, opts...)
}

// OpenConfig creates or opens a database and applies the metadata schema.
//
// DSNs beginning with postgres:// or postgresql:// use the pgx driver; any
// other DSN is a SQLite path. This function is idempotent - safe to call
// multiple times on the same database.
func OpenConfig(cfg Config, opts ...Option) (*Store, error) {
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid store config: %w", err)
	}

	s := &Store{logger: slog.Default(), ids: UUIDv7Generator{}}
	for _, opt := range opts {
		opt(s)
	}

	driver := "sqlite3"
	if isPostgres(cfg.DSN) {
		driver = "pgx"
		s.dialect = querysql.Postgres
	}

	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if s.dialect == querysql.SQLite {
		// SQLite only supports one writer at a time, and a :memory:
		// database lives exactly as long as its connection.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)

		if err := applyPragmas(db, cfg.BusyTimeoutMillis); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply pragmas: %w", err)
		}
	} else if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	s.db = db
	if err := s.applySchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	s.logger.Debug("store opened", "driver", driver, "dialect", s.dialect.String())
	return s, nil
}

func isPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect returns the SQL dialect of the database.
func (s *Store) Dialect() querysql.Dialect {
	return s.dialect
}

// Query executes a query and returns the resulting rows.
// Callers are responsible for closing the returned rows.
func (s *Store) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, query, args...)
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB, busyTimeout int) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout),
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates the metadata tables if they don't exist and runs
// migrations. This function is idempotent.
func (s *Store) applySchema() error {
	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := s.runMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations. SQLite tracks the
// applied version in user_version; Postgres databases are always brought to
// the current version, since every migration is idempotent.
func (s *Store) runMigrations() error {
	version := 0
	if s.dialect == querysql.SQLite {
		if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
			return fmt.Errorf("get user_version: %w", err)
		}
	}

	if version < 1 {
		if err := migrateToV1(s.db); err != nil {
			return err
		}
	}

	if s.dialect == querysql.SQLite {
		if _, err := s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}

	return nil
}

// migrateToV1 adds a UNIQUE index on quarry_models.table_name so that two
// models can never share a table.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_quarry_models_table_unique
		ON quarry_models(table_name)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
