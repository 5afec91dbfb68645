package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/quarry/internal/querysql"
	"github.com/roach88/quarry/internal/schema"
)

// ModelConflictError reports a model registered earlier with a different
// descriptor.
type ModelConflictError struct {
	Model    string
	Existing string // Fingerprint on record
	Incoming string // Fingerprint of the new descriptor
}

func (e *ModelConflictError) Error() string {
	return fmt.Sprintf("model %s is registered with descriptor %.12s, not %.12s", e.Model, e.Existing, e.Incoming)
}

// Register creates the model's table if it does not exist and records the
// descriptor fingerprint. Registering the same descriptor again is a no-op;
// registering a changed descriptor returns a *ModelConflictError.
func (s *Store) Register(ctx context.Context, d *schema.Descriptor) error {
	fp := d.Fingerprint()

	var existing string
	err := s.db.QueryRowContext(ctx, s.dialect.Rebind(
		`SELECT fingerprint FROM quarry_models WHERE model = ?`, 1), d.Model()).Scan(&existing)
	switch {
	case err == nil && existing == fp:
		return nil
	case err == nil:
		return &ModelConflictError{Model: d.Model(), Existing: existing, Incoming: fp}
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("register %s: %w", d.Model(), err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("register %s: begin tx: %w", d.Model(), err)
	}
	defer tx.Rollback() // No-op if committed

	if _, err := tx.ExecContext(ctx, CreateTableSQL(d, s.dialect)); err != nil {
		return fmt.Errorf("register %s: create table: %w", d.Model(), err)
	}
	if _, err := tx.ExecContext(ctx, s.dialect.Rebind(
		`INSERT INTO quarry_models (model, table_name, fingerprint) VALUES (?, ?, ?)`, 1),
		d.Model(), d.Table(), fp); err != nil {
		return fmt.Errorf("register %s: %w", d.Model(), err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("register %s: commit: %w", d.Model(), err)
	}

	s.logger.Debug("model registered", "model", d.Model(), "table", d.Table(), "fingerprint", fp)
	return nil
}

// CreateTableSQL returns the DDL for the descriptor's table.
func CreateTableSQL(d *schema.Descriptor, dialect querysql.Dialect) string {
	pk := d.PrimaryKey()
	cols := make([]string, 0, len(d.Fields()))
	for _, f := range d.Fields() {
		def := dialect.Quote(f.Column) + " " + columnType(f.Type, dialect)
		if f.Name == pk.Name {
			def = dialect.Quote(f.Column) + " " + primaryKeyType(f.Type, dialect)
		}
		cols = append(cols, def)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n    %s\n)",
		dialect.Quote(d.Table()), strings.Join(cols, ",\n    "))
}

func columnType(t schema.FieldType, dialect querysql.Dialect) string {
	postgres := dialect == querysql.Postgres
	switch t {
	case schema.Integer:
		if postgres {
			return "BIGINT"
		}
		return "INTEGER"
	case schema.Real:
		if postgres {
			return "DOUBLE PRECISION"
		}
		return "REAL"
	case schema.Boolean:
		return "BOOLEAN"
	case schema.DateTime:
		if postgres {
			return "TIMESTAMPTZ"
		}
		return "TEXT"
	default:
		return "TEXT"
	}
}

// primaryKeyType returns the key column type. Integer keys are assigned by
// the database when a record omits them.
func primaryKeyType(t schema.FieldType, dialect querysql.Dialect) string {
	if t != schema.Integer {
		return columnType(t, dialect) + " PRIMARY KEY"
	}
	if dialect == querysql.Postgres {
		return "BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY"
	}
	return "INTEGER PRIMARY KEY"
}
