package executor

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/roach88/quarry/internal/cursor"
	"github.com/roach88/quarry/internal/ir"
	"github.com/roach88/quarry/internal/metrics"
	"github.com/roach88/quarry/internal/queryir"
	"github.com/roach88/quarry/internal/querysql"
	"github.com/roach88/quarry/internal/rowfilter"
	"github.com/roach88/quarry/internal/schema"
	"github.com/roach88/quarry/internal/store"
)

// Memory executes plans over rows held in memory.
// Safe for concurrent use.
type Memory struct {
	mu     sync.RWMutex
	tables map[string]*table
	ids    store.IDGenerator
	logger *slog.Logger
}

type table struct {
	rows   []ir.Record
	lastID int64 // Highest integer key seen
}

// NewMemory creates an empty memory backend.
func NewMemory(opts ...Option) *Memory {
	o := buildOptions(opts)
	return &Memory{tables: make(map[string]*table), ids: o.ids, logger: o.logger}
}

// Load inserts rows into the model's table.
func (m *Memory) Load(d *schema.Descriptor, rows []ir.Record) error {
	for i, row := range rows {
		if _, err := m.Create(context.Background(), d, row); err != nil {
			return fmt.Errorf("load row %d: %w", i, err)
		}
	}
	return nil
}

// table returns the model's table, creating it. Callers hold m.mu.
func (m *Memory) table(model string) *table {
	t, ok := m.tables[model]
	if !ok {
		t = &table{}
		m.tables[model] = t
	}
	return t
}

// snapshot returns the model's rows. The records themselves are never
// mutated after insertion, so sharing them is safe.
func (m *Memory) snapshot(model string) []ir.Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if t, ok := m.tables[model]; ok {
		return slices.Clone(t.rows)
	}
	return nil
}

// group is the rows sharing one combination of group-field values.
type group struct {
	keys ir.Record // Group field -> value
	rows []ir.Record
}

// List evaluates plan over the model's rows.
func (m *Memory) List(ctx context.Context, d *schema.Descriptor, plan *queryir.Plan) (*Page, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := queryir.Validate(plan, d); err != nil {
		return nil, fmt.Errorf("list %s: %w", d.Model(), err)
	}

	rows, err := m.filter(d, plan)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", d.Model(), err)
	}

	// Sort sources: full rows, or one key record per group.
	var sources []ir.Record
	var groups map[string]*group
	if plan.Grouped() {
		groups, sources, err = groupRows(rows, plan.Group)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", d.Model(), err)
		}
	} else {
		sources = rows
	}

	order := querysql.TotalOrder(plan, d.PrimaryKey().Name)
	slices.SortStableFunc(sources, func(a, b ir.Record) int {
		return compareRecords(order, a, b)
	})
	sources = paginate(lookahead(plan), sources)

	out := make([]ir.Record, len(sources))
	for i, src := range sources {
		var members []ir.Record
		if groups != nil {
			members = groups[mustGroupKey(src, plan.Group)].rows
		}
		if out[i], err = project(d, plan.Select, src, members); err != nil {
			return nil, fmt.Errorf("list %s: %w", d.Model(), err)
		}
	}

	page, err := newPage(d, plan, out, func(i int, field string) (ir.Value, bool) {
		v, ok := sources[i][field]
		return v, ok
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", d.Model(), err)
	}

	elapsed := time.Since(start)
	metrics.ObserveQuery(metrics.BackendMemory, elapsed)
	m.logger.Debug("query evaluated",
		"model", d.Model(),
		"rows", len(page.Rows),
		"duration_ms", elapsed.Milliseconds(),
	)
	return page, nil
}

// filter returns the rows matching the plan filter and cursor position.
func (m *Memory) filter(d *schema.Descriptor, plan *queryir.Plan) ([]ir.Record, error) {
	pred := plan.Filter
	if page, ok := plan.CursorPage(); ok && page.After != nil {
		after := cursor.After(page.After, cursor.EffectiveOrder(plan.Order, d.PrimaryKey().Name))
		if pred == nil {
			pred = after
		} else {
			pred = queryir.And{Predicates: []queryir.Predicate{pred, after}}
		}
	}

	prog, err := rowfilter.Compile(d, pred)
	if err != nil {
		return nil, err
	}
	return prog.Filter(m.snapshot(d.Model()))
}

func groupRows(rows []ir.Record, fields []string) (map[string]*group, []ir.Record, error) {
	groups := make(map[string]*group)
	var keys []ir.Record
	for _, row := range rows {
		k := make(ir.Record, len(fields))
		for _, f := range fields {
			k[f] = valueOrNull(row[f])
		}
		id, err := groupKey(k, fields)
		if err != nil {
			return nil, nil, err
		}
		g, ok := groups[id]
		if !ok {
			g = &group{keys: k}
			groups[id] = g
			keys = append(keys, k)
		}
		g.rows = append(g.rows, row)
	}
	return groups, keys, nil
}

func groupKey(keys ir.Record, fields []string) (string, error) {
	values := make([]ir.Value, len(fields))
	for i, f := range fields {
		values[i] = keys[f]
	}
	b, err := ir.MarshalCanonical(values)
	if err != nil {
		return "", fmt.Errorf("group key: %w", err)
	}
	return string(b), nil
}

// mustGroupKey recomputes the key of a record built by groupRows.
func mustGroupKey(keys ir.Record, fields []string) string {
	id, err := groupKey(keys, fields)
	if err != nil {
		panic(err)
	}
	return id
}

// compareRecords orders by each item in turn. Nulls sort first ascending
// and last descending.
func compareRecords(order []queryir.OrderItem, a, b ir.Record) int {
	for _, o := range order {
		c, err := ir.Compare(a[o.Field], b[o.Field])
		if err != nil {
			continue
		}
		if o.Desc {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return 0
}

func paginate(plan *queryir.Plan, rows []ir.Record) []ir.Record {
	var offset, limit int64
	switch pg := plan.Page.(type) {
	case queryir.OffsetPage:
		offset, limit = pg.Offset, pg.Limit
	case *queryir.OffsetPage:
		offset, limit = pg.Offset, pg.Limit
	case queryir.CursorPage:
		limit = pg.Limit
	case *queryir.CursorPage:
		limit = pg.Limit
	}

	n := int64(len(rows))
	offset = min(offset, n)
	end := min(offset+limit, n)
	return rows[offset:end]
}

// project builds an output row. For grouped plans src holds the group
// fields and members the rows of the group.
func project(d *schema.Descriptor, items []queryir.SelectItem, src ir.Record, members []ir.Record) (ir.Record, error) {
	out := make(ir.Record, len(items))
	for _, item := range items {
		switch it := item.(type) {
		case queryir.FieldRef:
			out[it.OutputName()] = valueOrNull(src[it.Field])
		case *queryir.FieldRef:
			out[it.OutputName()] = valueOrNull(src[it.Field])
		case queryir.Aggregate:
			v, err := aggregate(d, it, members)
			if err != nil {
				return nil, err
			}
			out[it.OutputName()] = v
		case *queryir.Aggregate:
			v, err := aggregate(d, *it, members)
			if err != nil {
				return nil, err
			}
			out[it.OutputName()] = v
		default:
			return nil, fmt.Errorf("unsupported select item type: %T", item)
		}
	}
	return out, nil
}

func valueOrNull(v ir.Value) ir.Value {
	if v == nil {
		return ir.Null{}
	}
	return v
}

// Get returns one record by primary key.
func (m *Memory) Get(ctx context.Context, d *schema.Descriptor, key ir.Value) (ir.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tables[d.Model()]
	if !ok {
		return nil, notFound(d, key)
	}
	i := indexOf(t.rows, d.PrimaryKey().Name, key)
	if i < 0 {
		return nil, notFound(d, key)
	}
	return maps.Clone(t.rows[i]), nil
}

// Create inserts a record. A missing integer key is one more than the
// highest key seen; a missing text key is generated.
func (m *Memory) Create(ctx context.Context, d *schema.Descriptor, rec ir.Record) (ir.Record, error) {
	if err := checkFields(d, rec); err != nil {
		return nil, fmt.Errorf("create %s: %w", d.Model(), err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.table(d.Model())
	pk := d.PrimaryKey()

	row := make(ir.Record, len(d.Fields()))
	for _, f := range d.Fields() {
		row[f.Name] = valueOrNull(rec[f.Name])
	}

	if ir.IsNull(row[pk.Name]) {
		if pk.Type == schema.Integer {
			row[pk.Name] = ir.Int(t.lastID + 1)
		} else {
			row[pk.Name] = ir.Text(m.ids.Generate())
		}
	}
	if indexOf(t.rows, pk.Name, row[pk.Name]) >= 0 {
		return nil, fmt.Errorf("create %s: duplicate primary key %s", d.Model(), ir.Format(row[pk.Name]))
	}
	if id, ok := row[pk.Name].(ir.Int); ok && int64(id) > t.lastID {
		t.lastID = int64(id)
	}

	t.rows = append(t.rows, row)
	return maps.Clone(row), nil
}

// Update applies the fields present in rec. The primary key cannot change.
func (m *Memory) Update(ctx context.Context, d *schema.Descriptor, key ir.Value, rec ir.Record) (ir.Record, error) {
	if err := checkFields(d, rec); err != nil {
		return nil, fmt.Errorf("update %s: %w", d.Model(), err)
	}
	pk := d.PrimaryKey()
	if v, ok := rec[pk.Name]; ok && !ir.Equal(v, key) {
		return nil, fmt.Errorf("update %s: %w", d.Model(),
			queryir.Reject(queryir.InvalidSyntax, pk.Name, "primary key %s cannot be changed", pk.Name))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.table(d.Model())
	i := indexOf(t.rows, pk.Name, key)
	if i < 0 {
		return nil, notFound(d, key)
	}

	row := maps.Clone(t.rows[i])
	for k, v := range rec {
		row[k] = valueOrNull(v)
	}
	t.rows[i] = row
	return maps.Clone(row), nil
}

// Delete removes a record and returns it.
func (m *Memory) Delete(ctx context.Context, d *schema.Descriptor, key ir.Value) (ir.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.table(d.Model())
	i := indexOf(t.rows, d.PrimaryKey().Name, key)
	if i < 0 {
		return nil, notFound(d, key)
	}

	row := t.rows[i]
	t.rows = slices.Delete(t.rows, i, i+1)
	return maps.Clone(row), nil
}

func indexOf(rows []ir.Record, pk string, key ir.Value) int {
	return slices.IndexFunc(rows, func(r ir.Record) bool {
		return ir.Equal(r[pk], key)
	})
}

func checkFields(d *schema.Descriptor, rec ir.Record) error {
	for _, name := range rec.SortedKeys() {
		if !d.Has(name) {
			return queryir.Reject(queryir.UnknownField, name, "unknown field %q on %s", name, d.Model())
		}
	}
	return nil
}

func notFound(d *schema.Descriptor, key ir.Value) error {
	return &store.NotFoundError{Model: d.Model(), Key: ir.Format(key)}
}
