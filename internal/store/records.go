package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/quarry/internal/ir"
	"github.com/roach88/quarry/internal/queryir"
	"github.com/roach88/quarry/internal/querysql"
	"github.com/roach88/quarry/internal/schema"
)

// NotFoundError reports a primary key with no stored record.
type NotFoundError struct {
	Model string
	Key   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Model, e.Key)
}

// IsNotFound reports whether err is or wraps a *NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// Insert stores rec and returns the stored record, including defaults the
// database assigned. rec must already be coerced to the descriptor's types.
func (s *Store) Insert(ctx context.Context, d *schema.Descriptor, rec ir.Record) (ir.Record, error) {
	pk := d.PrimaryKey()
	values := make(ir.Record, len(rec)+1)
	for k, v := range rec {
		values[k] = v
	}
	if ir.IsNull(values[pk.Name]) {
		delete(values, pk.Name)
		if pk.Type == schema.Text {
			values[pk.Name] = ir.Text(s.ids.Generate())
		}
	}

	cols, args, err := s.bindRecord(d, values)
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", d.Model(), err)
	}

	table := s.dialect.Quote(d.Table())
	returning := " RETURNING " + s.dialect.Quote(pk.Column)
	var query string
	if len(cols) == 0 {
		query = "INSERT INTO " + table + " DEFAULT VALUES" + returning
	} else {
		markers := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
		query = "INSERT INTO " + table + " (" + strings.Join(cols, ", ") + ") VALUES (" + markers + ")" + returning
	}

	var raw any
	if err := s.db.QueryRowContext(ctx, s.dialect.Rebind(query, 1), args...).Scan(&raw); err != nil {
		return nil, fmt.Errorf("insert %s: %w", d.Model(), err)
	}
	key, err := scanValue(pk.Type, raw)
	if err != nil {
		return nil, fmt.Errorf("insert %s: returned key: %w", d.Model(), err)
	}

	s.logger.Debug("record inserted", "model", d.Model(), "key", ir.Format(key))
	return s.Get(ctx, d, key)
}

// Get returns the record with the given primary key, or a *NotFoundError.
func (s *Store) Get(ctx context.Context, d *schema.Descriptor, key ir.Value) (ir.Record, error) {
	pk := d.PrimaryKey()
	arg, err := s.dialect.Bind(key)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", d.Model(), err)
	}

	b := querysql.NewSelectBuilder(s.dialect).From(s.dialect.Quote(d.Table()))
	cols := make([]querysql.Column, 0, len(d.Fields()))
	for _, f := range d.Fields() {
		alias := f.Name
		if alias == f.Column {
			alias = ""
		}
		b.Column(s.dialect.Quote(f.Column), alias)
		cols = append(cols, querysql.Column{Name: f.Name, Field: f.Name, Type: f.Type})
	}
	b.Where(s.dialect.Quote(pk.Column)+" = ?", arg)
	query, args := b.Build()

	rows, err := s.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", d.Model(), err)
	}
	records, err := Scan(rows, cols)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", d.Model(), err)
	}
	if len(records) == 0 {
		return nil, &NotFoundError{Model: d.Model(), Key: ir.Format(key)}
	}
	return records[0], nil
}

// Update applies the fields present in rec to the record with the given key
// and returns the updated record. The primary key itself cannot change.
func (s *Store) Update(ctx context.Context, d *schema.Descriptor, key ir.Value, rec ir.Record) (ir.Record, error) {
	pk := d.PrimaryKey()
	values := make(ir.Record, len(rec))
	for k, v := range rec {
		if k == pk.Name {
			if !ir.Equal(v, key) {
				return nil, fmt.Errorf("update %s: %w", d.Model(),
					queryir.Reject(queryir.InvalidSyntax, pk.Name, "primary key %s cannot be changed", pk.Name))
			}
			continue
		}
		values[k] = v
	}
	if len(values) == 0 {
		return s.Get(ctx, d, key)
	}

	cols, args, err := s.bindRecord(d, values)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", d.Model(), err)
	}
	keyArg, err := s.dialect.Bind(key)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", d.Model(), err)
	}

	sets := make([]string, len(cols))
	for i, col := range cols {
		sets[i] = col + " = ?"
	}
	query := "UPDATE " + s.dialect.Quote(d.Table()) + " SET " + strings.Join(sets, ", ") +
		" WHERE " + s.dialect.Quote(pk.Column) + " = ?"

	res, err := s.db.ExecContext(ctx, s.dialect.Rebind(query, 1), append(args, keyArg)...)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", d.Model(), err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, &NotFoundError{Model: d.Model(), Key: ir.Format(key)}
	}

	s.logger.Debug("record updated", "model", d.Model(), "key", ir.Format(key), "fields", len(cols))
	return s.Get(ctx, d, key)
}

// Delete removes the record with the given key and returns it as it was.
func (s *Store) Delete(ctx context.Context, d *schema.Descriptor, key ir.Value) (ir.Record, error) {
	rec, err := s.Get(ctx, d, key)
	if err != nil {
		return nil, err
	}
	keyArg, err := s.dialect.Bind(key)
	if err != nil {
		return nil, fmt.Errorf("delete %s: %w", d.Model(), err)
	}

	query := "DELETE FROM " + s.dialect.Quote(d.Table()) + " WHERE " + s.dialect.Quote(d.PrimaryKey().Column) + " = ?"
	if _, err := s.db.ExecContext(ctx, s.dialect.Rebind(query, 1), keyArg); err != nil {
		return nil, fmt.Errorf("delete %s: %w", d.Model(), err)
	}

	s.logger.Debug("record deleted", "model", d.Model(), "key", ir.Format(key))
	return rec, nil
}

// bindRecord returns quoted columns and bound arguments for the fields of
// rec, in descriptor order.
func (s *Store) bindRecord(d *schema.Descriptor, rec ir.Record) ([]string, []any, error) {
	for name := range rec {
		if !d.Has(name) {
			return nil, nil, queryir.Reject(queryir.UnknownField, name, "unknown field %q on %s", name, d.Model())
		}
	}

	cols := make([]string, 0, len(rec))
	args := make([]any, 0, len(rec))
	for _, f := range d.Fields() {
		v, ok := rec[f.Name]
		if !ok {
			continue
		}
		arg, err := s.dialect.Bind(v)
		if err != nil {
			return nil, nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		cols = append(cols, s.dialect.Quote(f.Column))
		args = append(args, arg)
	}
	return cols, args, nil
}

// Scan reads every row into records keyed by column name, converting each
// value to the column's type. It closes rows.
func Scan(rows *sql.Rows, cols []querysql.Column) ([]ir.Record, error) {
	defer rows.Close()

	var records []ir.Record
	raw := make([]any, len(cols))
	dest := make([]any, len(cols))
	for i := range raw {
		dest[i] = &raw[i]
	}

	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		rec := make(ir.Record, len(cols))
		for i, col := range cols {
			v, err := scanValue(col.Type, raw[i])
			if err != nil {
				return nil, fmt.Errorf("scan column %s: %w", col.Name, err)
			}
			rec[col.Name] = v
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return records, nil
}
