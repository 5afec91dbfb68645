package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/quarry/internal/ir"
	"github.com/roach88/quarry/internal/metrics"
	"github.com/roach88/quarry/internal/queryir"
	"github.com/roach88/quarry/internal/querysql"
	"github.com/roach88/quarry/internal/schema"
	"github.com/roach88/quarry/internal/store"
)

// SQL executes plans on a store.
type SQL struct {
	store  *store.Store
	logger *slog.Logger
}

// Option configures a backend.
type Option func(*options)

type options struct {
	logger *slog.Logger
	ids    store.IDGenerator
}

// WithLogger sets the backend logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithIDGenerator sets the generator for missing text primary keys
// (memory backend; the SQL backend uses the store's generator).
func WithIDGenerator(ids store.IDGenerator) Option {
	return func(o *options) { o.ids = ids }
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.Default(), ids: store.UUIDv7Generator{}}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewSQL creates a SQL backend over s.
func NewSQL(s *store.Store, opts ...Option) *SQL {
	o := buildOptions(opts)
	return &SQL{store: s, logger: o.logger}
}

// List compiles and runs plan. Hidden sort-key columns are removed from the
// returned rows after the next cursor is built.
func (e *SQL) List(ctx context.Context, d *schema.Descriptor, plan *queryir.Plan) (*Page, error) {
	start := time.Now()

	q, err := querysql.NewCompiler(d, e.store.Dialect()).Compile(lookahead(plan))
	if err != nil {
		return nil, err
	}

	rows, err := e.store.Query(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", d.Model(), err)
	}
	records, err := store.Scan(rows, q.Columns)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", d.Model(), err)
	}

	page, err := newPage(d, plan, records, func(i int, field string) (ir.Value, bool) {
		last := records[i]
		for _, col := range q.Columns {
			if col.Func == "" && col.Field == field {
				v, ok := last[col.Name]
				return v, ok
			}
		}
		return nil, false
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", d.Model(), err)
	}

	for _, col := range q.Columns {
		if !col.Hidden {
			continue
		}
		for _, rec := range page.Rows {
			delete(rec, col.Name)
		}
	}

	elapsed := time.Since(start)
	metrics.ObserveQuery(metrics.BackendSQL, elapsed)
	e.logger.Debug("query executed",
		"model", d.Model(),
		"sql", q.SQL,
		"rows", len(page.Rows),
		"duration_ms", elapsed.Milliseconds(),
	)
	return page, nil
}

// Get returns one record by primary key.
func (e *SQL) Get(ctx context.Context, d *schema.Descriptor, key ir.Value) (ir.Record, error) {
	return e.store.Get(ctx, d, key)
}

// Create inserts a record.
func (e *SQL) Create(ctx context.Context, d *schema.Descriptor, rec ir.Record) (ir.Record, error) {
	return e.store.Insert(ctx, d, rec)
}

// Update applies a partial update.
func (e *SQL) Update(ctx context.Context, d *schema.Descriptor, key ir.Value, rec ir.Record) (ir.Record, error) {
	return e.store.Update(ctx, d, key, rec)
}

// Delete removes a record and returns it.
func (e *SQL) Delete(ctx context.Context, d *schema.Descriptor, key ir.Value) (ir.Record, error) {
	return e.store.Delete(ctx, d, key)
}
