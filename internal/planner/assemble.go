// Package planner assembles validated clause fragments into a query plan.
//
// Assemble enforces the cross-clause rules (aggregation, grouping,
// pagination, cursors) that no single clause parser can see. Build is the
// resource-style entry point: it splits a raw parameter set into clauses,
// parses them and assembles the result.
package planner

import (
	"github.com/roach88/quarry/internal/cursor"
	"github.com/roach88/quarry/internal/queryir"
	"github.com/roach88/quarry/internal/schema"
)

// PageRequest is the unvalidated pagination part of a request.
type PageRequest struct {
	Offset *int64 // nil = not given
	Limit  *int64 // nil = not given
	After  string // Opaque cursor; empty = not given
	Cursor bool   // Request cursor pagination even without After
}

// Clauses are the parsed, individually validated parts of a request.
type Clauses struct {
	Filter queryir.Predicate
	Select []queryir.SelectItem
	Order  []queryir.OrderItem
	Group  []string
	Page   PageRequest
}

// Assemble cross-validates clauses and produces an immutable plan.
//
// Rules, in order:
//  1. Aggregates require a group, and every plain field must be grouped.
//  2. A group without a select selects the group fields.
//  3. With a group, every plain field and every order field must be grouped.
//  4. Limit defaults to DefaultLimit and is clamped to MaxLimit; offset
//     defaults to 0; negative values are rejected.
//  5. Cursor pagination excludes offsets, groups and aggregates, and the
//     cursor must match the requested order.
//  6. Without select or group, every declared field is selected.
//
// The first violated rule is returned as a *queryir.Rejection.
func Assemble(d *schema.Descriptor, c Clauses, opts Options) (*queryir.Plan, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	plan := &queryir.Plan{
		Model:          d.Model(),
		Filter:         c.Filter,
		Select:         append([]queryir.SelectItem(nil), c.Select...),
		ExplicitSelect: len(c.Select) > 0,
		Order:          append([]queryir.OrderItem(nil), c.Order...),
		Group:          append([]string(nil), c.Group...),
	}

	grouped := make(map[string]bool, len(plan.Group))
	for _, g := range plan.Group {
		grouped[g] = true
	}

	// Rule 1
	if plan.HasAggregates() {
		if len(plan.Group) == 0 {
			return nil, queryir.Reject(queryir.InvalidAggregation, firstAggregate(plan.Select),
				"aggregates require groupBy")
		}
	}

	// Rule 2
	if len(plan.Group) > 0 && len(plan.Select) == 0 {
		for _, g := range plan.Group {
			plan.Select = append(plan.Select, queryir.FieldRef{Field: g})
		}
	}

	// Rules 1 and 3
	if len(plan.Group) > 0 {
		for _, item := range plan.Select {
			field, ok := fieldRef(item)
			if ok && !grouped[field] {
				return nil, queryir.Reject(queryir.InvalidAggregation, field,
					"field %s must appear in groupBy or inside an aggregate", field)
			}
		}
		for _, o := range plan.Order {
			if !grouped[o.Field] {
				return nil, queryir.Reject(queryir.InvalidAggregation, o.Field,
					"cannot order grouped rows by %s: it is not in groupBy", o.Field)
			}
		}
	}

	// Rule 4
	limit, err := resolveLimit(c.Page.Limit, opts)
	if err != nil {
		return nil, err
	}
	var offset int64
	if c.Page.Offset != nil {
		offset = *c.Page.Offset
		if offset < 0 {
			return nil, queryir.Reject(queryir.InvalidPagination, formatInt(offset),
				"offset must be non-negative")
		}
	}

	// Rule 5
	if c.Page.After != "" || c.Page.Cursor {
		page, err := cursorPage(d, plan, c.Page, limit)
		if err != nil {
			return nil, err
		}
		plan.Page = page
	} else {
		plan.Page = queryir.OffsetPage{Offset: offset, Limit: limit}
	}

	// Rule 6
	if len(plan.Select) == 0 {
		for _, name := range d.Names() {
			plan.Select = append(plan.Select, queryir.FieldRef{Field: name})
		}
	}

	return plan, nil
}

func resolveLimit(requested *int64, opts Options) (int64, error) {
	if requested == nil {
		return min(opts.DefaultLimit, opts.MaxLimit), nil
	}
	limit := *requested
	if limit < 0 {
		return 0, queryir.Reject(queryir.InvalidPagination, formatInt(limit), "limit must be non-negative")
	}
	return min(limit, opts.MaxLimit), nil
}

func cursorPage(d *schema.Descriptor, plan *queryir.Plan, req PageRequest, limit int64) (queryir.CursorPage, error) {
	token := req.After
	if req.Offset != nil {
		return queryir.CursorPage{}, queryir.Reject(queryir.InvalidPagination, token,
			"a cursor cannot be combined with an offset")
	}
	if len(plan.Group) > 0 || plan.HasAggregates() {
		return queryir.CursorPage{}, queryir.Reject(queryir.InvalidPagination, token,
			"grouped or aggregated results cannot be paged by cursor")
	}

	page := queryir.CursorPage{Limit: limit}
	if req.After != "" {
		c, err := cursor.Decode(d, plan.Order, req.After)
		if err != nil {
			return queryir.CursorPage{}, err
		}
		page.After = c
	}
	return page, nil
}

func fieldRef(item queryir.SelectItem) (string, bool) {
	switch it := item.(type) {
	case queryir.FieldRef:
		return it.Field, true
	case *queryir.FieldRef:
		return it.Field, true
	default:
		return "", false
	}
}

func firstAggregate(items []queryir.SelectItem) string {
	for _, item := range items {
		if _, isField := fieldRef(item); !isField {
			return item.OutputName()
		}
	}
	return ""
}
