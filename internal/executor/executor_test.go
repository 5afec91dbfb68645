package executor

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/quarry/internal/graphquery"
	"github.com/roach88/quarry/internal/ir"
	"github.com/roach88/quarry/internal/planner"
	"github.com/roach88/quarry/internal/queryir"
	"github.com/roach88/quarry/internal/schema"
	"github.com/roach88/quarry/internal/store"
	"github.com/roach88/quarry/internal/testutil"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mystery has a null category and price, so null ordering and null groups
// are exercised.
func mystery() ir.Record {
	return ir.Record{
		"name":       ir.Text("Mystery"),
		"category":   ir.Null{},
		"price":      ir.Null{},
		"stock":      ir.Int(1),
		"active":     ir.Bool(true),
		"created_at": ir.NewTime(testutil.ProductStart),
	}
}

func fixtureRows() []ir.Record {
	return append(testutil.ProductRows(), mystery())
}

// backends returns a seeded SQLite backend and a seeded memory backend.
func backends(t *testing.T) (*schema.Descriptor, map[string]Backend) {
	t.Helper()
	ctx := context.Background()
	d := testutil.ProductDescriptor()

	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"), store.WithLogger(discardLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Register(ctx, d))

	sqlBackend := NewSQL(s, WithLogger(discardLogger()))
	memBackend := NewMemory(WithLogger(discardLogger()))

	for _, b := range []Backend{sqlBackend, memBackend} {
		for _, row := range fixtureRows() {
			_, err := b.Create(ctx, d, row)
			require.NoError(t, err)
		}
	}
	return d, map[string]Backend{"sql": sqlBackend, "memory": memBackend}
}

func resourcePlan(t *testing.T, d *schema.Descriptor, query string) *queryir.Plan {
	t.Helper()
	params, err := planner.ParseQuery(query)
	require.NoError(t, err)
	p, err := planner.Build(d, params, planner.DefaultOptions())
	require.NoError(t, err)
	return p
}

func TestListBackendsAgree(t *testing.T) {
	d, all := backends(t)
	ctx := context.Background()

	tests := []struct {
		query string
		names []string // Expected name column, when selected
		count int
	}{
		{query: "", names: []string{"Laptop", "Mouse", "Keyboard", "Desk", "Chair", "Monitor", "Mystery"}},
		{query: "orderBy=price:desc", names: []string{"Laptop", "Desk", "Monitor", "Chair", "Keyboard", "Mouse", "Mystery"}},
		{query: "orderBy=price", names: []string{"Mystery", "Mouse", "Keyboard", "Chair", "Monitor", "Desk", "Laptop"}},
		{query: "orderBy=category,name:desc&select=name", names: []string{"Mystery", "Mouse", "Monitor", "Laptop", "Keyboard", "Desk", "Chair"}},
		{query: "category=Electronics&orderBy=price&limit=2&offset=1", names: []string{"Keyboard", "Monitor"}},
		{query: "price=25,75,1000&select=name", names: []string{"Laptop", "Mouse", "Keyboard"}},
		{query: "active=false", names: []string{"Chair"}},
		{query: "limit=0", names: []string{}},
		{query: "offset=10", names: []string{}},
		{query: "select=category,count(*),sum(stock),avg(price);mean,min(created_at),max(name)&groupBy=category", count: 3},
		{query: "groupBy=active&select=active,count(*)&orderBy=active:desc", count: 2},
		{query: "groupBy=category,active", count: 4},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			plan := resourcePlan(t, d, tt.query)

			sqlPage, err := all["sql"].List(ctx, d, plan)
			require.NoError(t, err)
			memPage, err := all["memory"].List(ctx, d, plan)
			require.NoError(t, err)

			assert.Equal(t, sqlPage, memPage)
			if tt.names != nil {
				assert.Equal(t, tt.names, testutil.ProductNames(sqlPage.Rows))
			} else {
				assert.Len(t, sqlPage.Rows, tt.count)
			}
		})
	}
}

func TestListAggregates(t *testing.T) {
	d, all := backends(t)
	plan := resourcePlan(t, d, "select=category,count(*),sum(stock),avg(price);mean,min(created_at),max(name)&groupBy=category")

	for name, b := range all {
		t.Run(name, func(t *testing.T) {
			page, err := b.List(context.Background(), d, plan)
			require.NoError(t, err)

			first := testutil.ProductRows()[0]["created_at"]
			assert.Equal(t, []ir.Record{
				{
					"category":       ir.Null{},
					"count":          ir.Int(1),
					"sum_stock":      ir.Int(1),
					"mean":           ir.Null{},
					"min_created_at": first,
					"max_name":       ir.Text("Mystery"),
				},
				{
					"category":       ir.Text("Electronics"),
					"count":          ir.Int(4),
					"sum_stock":      ir.Int(175),
					"mean":           ir.Real(325),
					"min_created_at": first,
					"max_name":       ir.Text("Mouse"),
				},
				{
					"category":       ir.Text("Furniture"),
					"count":          ir.Int(2),
					"sum_stock":      ir.Int(50),
					"mean":           ir.Real(225),
					"min_created_at": testutil.ProductRows()[3]["created_at"],
					"max_name":       ir.Text("Desk"),
				},
			}, page.Rows)
			assert.False(t, page.HasMore)
			assert.Empty(t, page.NextCursor)
		})
	}
}

func TestListOffsetHasMore(t *testing.T) {
	d, all := backends(t)

	for name, b := range all {
		t.Run(name, func(t *testing.T) {
			page, err := b.List(context.Background(), d, resourcePlan(t, d, "limit=3&select=name"))
			require.NoError(t, err)
			assert.Len(t, page.Rows, 3)
			assert.True(t, page.HasMore)
			assert.Empty(t, page.NextCursor, "offset pages carry no cursor")

			page, err = b.List(context.Background(), d, resourcePlan(t, d, "limit=3&offset=4&select=name"))
			require.NoError(t, err)
			assert.Len(t, page.Rows, 3)
			assert.False(t, page.HasMore, "the last rows exactly fill the page")
		})
	}
}

// walk follows next cursors until the last page and returns every name.
func walk(t *testing.T, d *schema.Descriptor, b Backend, orderBy string, limit int64) ([]string, []string) {
	t.Helper()
	var names, tokens []string
	req := graphquery.Request{OrderBy: []string{orderBy}, Select: []string{"name"}, First: &limit, Cursor: true}

	for i := 0; i < 20; i++ {
		plan, err := graphquery.Normalize(d, req, planner.DefaultOptions())
		require.NoError(t, err)
		page, err := b.List(context.Background(), d, plan)
		require.NoError(t, err)

		for _, row := range page.Rows {
			assert.Equal(t, []string{"name"}, row.SortedKeys(), "hidden sort keys are stripped")
		}
		names = append(names, testutil.ProductNames(page.Rows)...)
		if !page.HasMore {
			assert.Empty(t, page.NextCursor)
			return names, tokens
		}
		require.NotEmpty(t, page.NextCursor)
		tokens = append(tokens, page.NextCursor)
		req.After = page.NextCursor
	}
	t.Fatal("cursor walk did not terminate")
	return nil, nil
}

func TestCursorWalk(t *testing.T) {
	d, all := backends(t)

	tests := []struct {
		orderBy string
		limit   int64
		want    []string
	}{
		{"price:desc", 2, []string{"Laptop", "Desk", "Monitor", "Chair", "Keyboard", "Mouse", "Mystery"}},
		{"price", 2, []string{"Mystery", "Mouse", "Keyboard", "Chair", "Monitor", "Desk", "Laptop"}},
		{"category:desc", 3, []string{"Desk", "Chair", "Laptop", "Mouse", "Keyboard", "Monitor", "Mystery"}},
		{"active", 7, []string{"Chair", "Laptop", "Mouse", "Keyboard", "Desk", "Monitor", "Mystery"}},
	}

	for _, tt := range tests {
		t.Run(tt.orderBy, func(t *testing.T) {
			sqlNames, sqlTokens := walk(t, d, all["sql"], tt.orderBy, tt.limit)
			memNames, memTokens := walk(t, d, all["memory"], tt.orderBy, tt.limit)

			assert.Equal(t, tt.want, sqlNames)
			assert.Equal(t, tt.want, memNames)
			// No empty trailing page, even when the rows divide evenly.
			assert.Len(t, sqlTokens, (len(tt.want)-1)/int(tt.limit))
			assert.Equal(t, sqlTokens, memTokens, "both backends encode the same cursors")
		})
	}
}

func TestCRUD(t *testing.T) {
	d, all := backends(t)
	ctx := context.Background()

	for name, b := range all {
		t.Run(name, func(t *testing.T) {
			created, err := b.Create(ctx, d, ir.Record{"name": ir.Text("Lamp"), "price": ir.Real(40)})
			require.NoError(t, err)
			assert.Equal(t, ir.Int(8), created["id"])
			assert.Equal(t, ir.Null{}, created["category"])

			got, err := b.Get(ctx, d, ir.Int(8))
			require.NoError(t, err)
			assert.Equal(t, created, got)

			updated, err := b.Update(ctx, d, ir.Int(8), ir.Record{"stock": ir.Int(3)})
			require.NoError(t, err)
			assert.Equal(t, ir.Int(3), updated["stock"])
			assert.Equal(t, ir.Text("Lamp"), updated["name"])

			deleted, err := b.Delete(ctx, d, ir.Int(8))
			require.NoError(t, err)
			assert.Equal(t, updated, deleted)

			_, err = b.Get(ctx, d, ir.Int(8))
			assert.True(t, store.IsNotFound(err))
			_, err = b.Update(ctx, d, ir.Int(8), ir.Record{"stock": ir.Int(1)})
			assert.True(t, store.IsNotFound(err))
			_, err = b.Delete(ctx, d, ir.Int(8))
			assert.True(t, store.IsNotFound(err))

			_, err = b.Create(ctx, d, ir.Record{"colour": ir.Text("red")})
			assert.True(t, queryir.IsRejection(err, queryir.UnknownField))
			_, err = b.Update(ctx, d, ir.Int(1), ir.Record{"id": ir.Int(2)})
			assert.ErrorContains(t, err, "cannot be changed")
			assert.True(t, queryir.IsRejection(err, queryir.InvalidSyntax))
		})
	}
}

func TestMemoryTextKeys(t *testing.T) {
	ctx := context.Background()
	d := schema.MustNew("tag", []schema.Field{
		{Name: "slug", Type: schema.Text},
		{Name: "weight", Type: schema.Real},
	}, schema.WithPrimaryKey("slug"))

	m := NewMemory(WithLogger(discardLogger()), WithIDGenerator(testutil.NewSequenceIDGenerator("tag")))
	require.NoError(t, m.Load(d, []ir.Record{
		{"weight": ir.Real(2)},
		{"slug": ir.Text("go"), "weight": ir.Real(1)},
	}))

	_, err := m.Create(ctx, d, ir.Record{"slug": ir.Text("go")})
	assert.ErrorContains(t, err, "duplicate primary key go")

	plan := &queryir.Plan{
		Model:  "tag",
		Select: []queryir.SelectItem{queryir.FieldRef{Field: "slug"}},
		Page:   queryir.OffsetPage{Limit: 10},
	}
	page, err := m.List(ctx, d, plan)
	require.NoError(t, err)
	assert.Equal(t, []ir.Record{{"slug": ir.Text("go")}, {"slug": ir.Text("tag-000001")}}, page.Rows)
}

func TestListRejectsForeignPlan(t *testing.T) {
	d, all := backends(t)
	plan := &queryir.Plan{
		Model:  "orders",
		Select: []queryir.SelectItem{queryir.FieldRef{Field: "id"}},
		Page:   queryir.OffsetPage{Limit: 1},
	}
	for name, b := range all {
		t.Run(name, func(t *testing.T) {
			_, err := b.List(context.Background(), d, plan)
			assert.Error(t, err)
		})
	}
}
