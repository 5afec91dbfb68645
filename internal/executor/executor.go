package executor

import (
	"context"
	"fmt"

	"github.com/roach88/quarry/internal/cursor"
	"github.com/roach88/quarry/internal/ir"
	"github.com/roach88/quarry/internal/queryir"
	"github.com/roach88/quarry/internal/schema"
)

// Page is one page of query results.
type Page struct {
	Rows       []ir.Record
	NextCursor string // Set only for full cursor pages
	HasMore    bool
}

// Backend executes plans and record operations for any model.
// Records passed in must already be coerced to the descriptor's types.
type Backend interface {
	List(ctx context.Context, d *schema.Descriptor, plan *queryir.Plan) (*Page, error)
	Get(ctx context.Context, d *schema.Descriptor, key ir.Value) (ir.Record, error)
	Create(ctx context.Context, d *schema.Descriptor, rec ir.Record) (ir.Record, error)
	Update(ctx context.Context, d *schema.Descriptor, key ir.Value, rec ir.Record) (ir.Record, error)
	Delete(ctx context.Context, d *schema.Descriptor, key ir.Value) (ir.Record, error)
}

// Compile-time interface checks.
var (
	_ Backend = (*SQL)(nil)
	_ Backend = (*Memory)(nil)
)

// lookahead returns plan with its page limit raised by one, so a backend
// can tell a full last page from one with rows after it. A zero limit is
// kept as is.
func lookahead(plan *queryir.Plan) *queryir.Plan {
	out := *plan
	switch pg := plan.Page.(type) {
	case queryir.OffsetPage:
		if pg.Limit > 0 {
			pg.Limit++
		}
		out.Page = pg
	case *queryir.OffsetPage:
		cp := *pg
		if cp.Limit > 0 {
			cp.Limit++
		}
		out.Page = cp
	case queryir.CursorPage:
		if pg.Limit > 0 {
			pg.Limit++
		}
		out.Page = pg
	case *queryir.CursorPage:
		cp := *pg
		if cp.Limit > 0 {
			cp.Limit++
		}
		out.Page = cp
	}
	return &out
}

// newPage trims rows fetched with lookahead(plan) to the page limit and sets
// HasMore and NextCursor. lastKey returns the value of a sort field for the
// row at index i.
func newPage(d *schema.Descriptor, plan *queryir.Plan, rows []ir.Record, lastKey func(i int, field string) (ir.Value, bool)) (*Page, error) {
	if rows == nil {
		rows = []ir.Record{}
	}
	limit := plan.Limit()
	page := &Page{Rows: rows}
	if int64(len(rows)) > limit {
		page.Rows = rows[:limit]
		page.HasMore = true
	}

	if _, isCursor := plan.CursorPage(); !isCursor || !page.HasMore {
		return page, nil
	}

	keys := make(ir.Record)
	for _, o := range cursor.EffectiveOrder(plan.Order, d.PrimaryKey().Name) {
		v, ok := lastKey(len(page.Rows)-1, o.Field)
		if !ok {
			return nil, fmt.Errorf("next cursor: sort key %s not in result", o.Field)
		}
		keys[o.Field] = v
	}

	token, err := cursor.Encode(d, plan.Order, keys)
	if err != nil {
		return nil, err
	}
	page.NextCursor = token
	return page, nil
}
