package querysql

import (
	"fmt"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/quarry/internal/cursor"
	"github.com/roach88/quarry/internal/ir"
	"github.com/roach88/quarry/internal/planner"
	"github.com/roach88/quarry/internal/queryir"
	"github.com/roach88/quarry/internal/schema"
	"github.com/roach88/quarry/internal/testutil"
)

func plan(t *testing.T, query string) *queryir.Plan {
	t.Helper()
	params, err := planner.ParseQuery(query)
	require.NoError(t, err)
	p, err := planner.Build(testutil.ProductDescriptor(), params, planner.DefaultOptions())
	require.NoError(t, err)
	return p
}

func compile(t *testing.T, dialect Dialect, p *queryir.Plan) *Query {
	t.Helper()
	q, err := NewCompiler(testutil.ProductDescriptor(), dialect).Compile(p)
	require.NoError(t, err)
	return q
}

func render(q *Query) []byte {
	return []byte(fmt.Sprintf("%s\n-- args: %v\n", q.SQL, q.Args))
}

func TestCompileDefaultPlan(t *testing.T) {
	q := compile(t, SQLite, plan(t, ""))

	assert.Equal(t,
		`SELECT "id", "name", "category", "price", "stock", "active", "created_at" FROM "products" ORDER BY "id" ASC LIMIT ? OFFSET ?`,
		q.SQL)
	assert.Equal(t, []any{int64(100), int64(0)}, q.Args)
	require.Len(t, q.Columns, 7)
	assert.Equal(t, Column{Name: "price", Field: "price", Type: schema.Real}, q.Columns[3])
}

func TestCompileGolden(t *testing.T) {
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)

	cases := []struct {
		name    string
		dialect Dialect
		query   string
	}{
		{"filter_order_sqlite", SQLite, "category=Electronics,Furniture&price=25&select=name,price;cost&orderBy=price:desc,name&limit=10&offset=5"},
		{"filter_order_postgres", Postgres, "category=Electronics,Furniture&price=25&select=name,price;cost&orderBy=price:desc,name&limit=10&offset=5"},
		{"aggregate_sqlite", SQLite, "select=category,sum(price);total,count(*)&groupBy=category&orderBy=category:desc"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q := compile(t, tc.dialect, plan(t, tc.query))
			g.Assert(t, tc.name, render(q))
		})
	}
}

func TestCompileAggregateColumns(t *testing.T) {
	q := compile(t, SQLite, plan(t, "select=category,sum(price),avg(stock),count(*),min(created_at),max(name);last&groupBy=category"))

	assert.Equal(t, []Column{
		{Name: "category", Field: "category", Type: schema.Text},
		{Name: "sum_price", Field: "price", Type: schema.Real, Func: queryir.Sum},
		{Name: "avg_stock", Field: "stock", Type: schema.Real, Func: queryir.Avg},
		{Name: "count", Field: "*", Type: schema.Integer, Func: queryir.Count},
		{Name: "min_created_at", Field: "created_at", Type: schema.DateTime, Func: queryir.Min},
		{Name: "last", Field: "name", Type: schema.Text, Func: queryir.Max},
	}, q.Columns)
	assert.Contains(t, q.SQL, `GROUP BY "category" ORDER BY "category" COLLATE BINARY ASC`)
}

func TestCompileGroupedOrderEndsWithGroupFields(t *testing.T) {
	q := compile(t, SQLite, plan(t, "groupBy=category,active&orderBy=active:desc"))
	assert.Contains(t, q.SQL, `GROUP BY "category", "active" ORDER BY "active" DESC, "category" COLLATE BINARY ASC LIMIT`)
	assert.NotContains(t, q.SQL, `"id"`, "grouped queries never order by the primary key")
}

func TestCompileInjectionImmunity(t *testing.T) {
	benign := compile(t, SQLite, plan(t, "name=Desk&select=name"))
	hostile := compile(t, SQLite, plan(t, "name=x'%20OR%20'1'='1'%3B%20DROP%20TABLE%20products%3B%20--&select=name"))

	assert.Equal(t, benign.SQL, hostile.SQL, "SQL text does not depend on literal content")
	assert.Equal(t, []any{"x' OR '1'='1'; DROP TABLE products; --", int64(100), int64(0)}, hostile.Args)
	assert.NotContains(t, hostile.SQL, "DROP")
}

func TestCompileCursorPage(t *testing.T) {
	d := testutil.ProductDescriptor()
	token, err := cursor.Encode(d, []queryir.OrderItem{{Field: "price", Desc: true}}, testutil.ProductRows()[5])
	require.NoError(t, err)

	q := compile(t, SQLite, plan(t, "select=name&orderBy=price:desc&limit=2&after="+token))

	assert.Equal(t,
		`SELECT "name", "price" AS "_cursor_price", "id" AS "_cursor_id" FROM "products" `+
			`WHERE ("price" < ? OR "price" IS NULL) OR ("price" = ? AND "id" > ?) `+
			`ORDER BY "price" DESC, "id" ASC LIMIT ?`,
		q.SQL)
	assert.Equal(t, []any{float64(200), float64(200), int64(6), int64(2)}, q.Args)
	assert.Equal(t, []Column{
		{Name: "name", Field: "name", Type: schema.Text},
		{Name: "_cursor_price", Field: "price", Type: schema.Real, Hidden: true},
		{Name: "_cursor_id", Field: "id", Type: schema.Integer, Hidden: true},
	}, q.Columns)
}

func TestCompileCursorWithFilterAndSelectedKeys(t *testing.T) {
	p, err := planner.Assemble(testutil.ProductDescriptor(), planner.Clauses{
		Filter: queryir.In{Field: "active", Values: []ir.Value{ir.Bool(true)}},
		Select: []queryir.SelectItem{queryir.FieldRef{Field: "id"}, queryir.FieldRef{Field: "name", Alias: "_cursor_id"}},
		Page:   planner.PageRequest{Cursor: true, After: mustCursor(t, nil, ir.Record{"id": ir.Int(2)})},
	}, planner.DefaultOptions())
	require.NoError(t, err)

	q := compile(t, Postgres, p)
	assert.Equal(t,
		`SELECT "id", "name" AS "_cursor_id" FROM "products" WHERE ("active" = $1) AND ("id" > $2) ORDER BY "id" ASC NULLS FIRST LIMIT $3`,
		q.SQL)
	assert.Equal(t, []any{true, int64(2), int64(100)}, q.Args)
	assert.Len(t, q.Columns, 2, "id is already selected")
}

func TestCompileHiddenColumnNamesAvoidAliases(t *testing.T) {
	p, err := planner.Assemble(testutil.ProductDescriptor(), planner.Clauses{
		Select: []queryir.SelectItem{queryir.FieldRef{Field: "name", Alias: "_cursor_id"}},
		Page:   planner.PageRequest{Cursor: true},
	}, planner.DefaultOptions())
	require.NoError(t, err)

	q := compile(t, SQLite, p)
	assert.Equal(t, `SELECT "name" AS "_cursor_id", "id" AS "__cursor_id" FROM "products" ORDER BY "id" ASC LIMIT ?`, q.SQL)
}

func mustCursor(t *testing.T, order []queryir.OrderItem, row ir.Record) string {
	t.Helper()
	token, err := cursor.Encode(testutil.ProductDescriptor(), order, row)
	require.NoError(t, err)
	return token
}

func TestCompilePredicates(t *testing.T) {
	when := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		pred queryir.Predicate
		sql  string
		args []any
	}{
		{
			name: "empty in matches nothing",
			pred: queryir.In{Field: "name"},
			sql:  "1 = 0",
		},
		{
			name: "is null",
			pred: queryir.Compare{Field: "category", Op: queryir.OpEq, Value: ir.Null{}},
			sql:  `"category" IS NULL`,
		},
		{
			name: "is not null",
			pred: &queryir.Compare{Field: "category", Op: queryir.OpNot, Value: ir.Null{}},
			sql:  `"category" IS NOT NULL`,
		},
		{
			name: "not equal",
			pred: queryir.Compare{Field: "stock", Op: queryir.OpNot, Value: ir.Int(3)},
			sql:  `"stock" <> ?`,
			args: []any{int64(3)},
		},
		{
			name: "text ordering is bytewise",
			pred: queryir.Compare{Field: "name", Op: queryir.OpGte, Value: ir.Text("M")},
			sql:  `"name" COLLATE BINARY >= ?`,
			args: []any{"M"},
		},
		{
			name: "datetime binds fixed-width text",
			pred: queryir.Compare{Field: "created_at", Op: queryir.OpLt, Value: ir.NewTime(when)},
			sql:  `"created_at" < ?`,
			args: []any{"2024-01-03T00:00:00.000000000Z"},
		},
		{
			name: "negation",
			pred: queryir.Not{Predicate: queryir.Or{Predicates: []queryir.Predicate{
				queryir.Compare{Field: "price", Op: queryir.OpGt, Value: ir.Real(100)},
				queryir.In{Field: "active", Values: []ir.Value{ir.Bool(false)}},
			}}},
			sql:  `NOT ("price" > ? OR "active" = ?)`,
			args: []any{float64(100), false},
		},
		{
			name: "nested junctions are parenthesized",
			pred: queryir.And{Predicates: []queryir.Predicate{
				queryir.Or{Predicates: []queryir.Predicate{
					queryir.Compare{Field: "stock", Op: queryir.OpLt, Value: ir.Int(20)},
					queryir.Compare{Field: "stock", Op: queryir.OpGt, Value: ir.Int(50)},
				}},
				queryir.Compare{Field: "active", Op: queryir.OpEq, Value: ir.Bool(true)},
			}},
			sql:  `("stock" < ? OR "stock" > ?) AND "active" = ?`,
			args: []any{int64(20), int64(50), true},
		},
		{
			name: "single-child wrapper keeps inner parentheses",
			pred: queryir.And{Predicates: []queryir.Predicate{
				queryir.And{Predicates: []queryir.Predicate{
					queryir.Or{Predicates: []queryir.Predicate{
						queryir.Compare{Field: "price", Op: queryir.OpLt, Value: ir.Real(30)},
						queryir.Compare{Field: "price", Op: queryir.OpGt, Value: ir.Real(900)},
					}},
				}},
				queryir.In{Field: "category", Values: []ir.Value{ir.Text("Furniture")}},
			}},
			sql:  `("price" < ? OR "price" > ?) AND "category" = ?`,
			args: []any{float64(30), float64(900), "Furniture"},
		},
		{
			name: "single-child wrapper at the top is unwrapped",
			pred: &queryir.Or{Predicates: []queryir.Predicate{
				queryir.And{Predicates: []queryir.Predicate{
					queryir.In{Field: "category", Values: []ir.Value{ir.Text("Desk")}},
					queryir.Compare{Field: "active", Op: queryir.OpEq, Value: ir.Bool(true)},
				}},
			}},
			sql:  `"category" = ? AND "active" = ?`,
			args: []any{"Desk", true},
		},
		{
			name: "empty and is true",
			pred: queryir.And{},
			sql:  "1 = 1",
		},
		{
			name: "empty or is false",
			pred: &queryir.Or{},
			sql:  "1 = 0",
		},
	}

	c := NewCompiler(testutil.ProductDescriptor(), SQLite)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := c.compilePredicate(tt.pred)
			require.NoError(t, err)
			assert.Equal(t, tt.sql, sql)
			assert.Equal(t, tt.args, args)
		})
	}
}

func TestCompilePostgresBindsTime(t *testing.T) {
	when := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
	c := NewCompiler(testutil.ProductDescriptor(), Postgres)

	_, args, err := c.compilePredicate(queryir.Compare{Field: "created_at", Op: queryir.OpGte, Value: ir.NewTime(when)})
	require.NoError(t, err)
	assert.Equal(t, []any{when}, args)
}

func TestCompileRejectsForeignPlans(t *testing.T) {
	c := NewCompiler(testutil.ProductDescriptor(), SQLite)

	_, err := c.Compile(&queryir.Plan{
		Model:  "products",
		Select: []queryir.SelectItem{queryir.FieldRef{Field: "password"}},
		Page:   queryir.OffsetPage{Limit: 1},
	})
	assert.True(t, queryir.IsRejection(err, queryir.UnknownField))

	_, _, err = c.compilePredicate(queryir.Compare{Field: "price", Op: queryir.OpLt, Value: ir.Null{}})
	assert.ErrorContains(t, err, "does not accept null")
}

func TestCompileUsesStoredColumns(t *testing.T) {
	d := schema.MustNew("items", []schema.Field{
		{Name: "id", Type: schema.Text, Column: "item_id"},
		{Name: "label", Type: schema.Text, Column: "item_label"},
	}, schema.WithTable("catalog"))

	p, err := planner.Build(d, planner.Params{"label": {"a"}, "orderBy": {"label"}}, planner.DefaultOptions())
	require.NoError(t, err)

	q, err := NewCompiler(d, SQLite).Compile(p)
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT "item_id" AS "id", "item_label" AS "label" FROM "catalog" WHERE "item_label" = ? `+
			`ORDER BY "item_label" COLLATE BINARY ASC, "item_id" COLLATE BINARY ASC LIMIT ? OFFSET ?`,
		q.SQL)
}

func TestCompileLimitZero(t *testing.T) {
	q := compile(t, SQLite, plan(t, "limit=0"))
	assert.Equal(t, []any{int64(0), int64(0)}, q.Args)
}
