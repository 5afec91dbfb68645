package queryir

import (
	"fmt"

	"github.com/roach88/quarry/internal/ir"
)

// Predicate represents a filter condition in a Plan.
//
// This is a sealed interface - only types in this package implement it.
// The marker method pattern prevents external implementations and enables
// exhaustive type switches in backend compilers. Switches accept both the
// value and the pointer form of each node.
//
// Predicate types:
//   - In: field is one of a literal set (the resource style only produces this)
//   - Compare: field <op> literal, with op eq, not, lt, lte, gt, gte
//   - And: all predicates must be true (empty = always true)
//   - Or: at least one predicate must be true (empty = always false)
//   - Not: negation
type Predicate interface {
	predicateNode() // Marker method - seals interface to this package
}

// In represents set membership of a field.
//
// Semantics:
//
//	<field> IN (<values>)
//
// Values are already coerced to the field's declared type and never contain
// duplicates. An empty set matches nothing.
//
// Example:
//
//	In{Field: "status", Values: []ir.Value{ir.Text("active"), ir.Text("pending")}}
//
// Translates to SQL:
//
//	"status" IN (?, ?)
type In struct {
	Field  string     // Public field name
	Values []ir.Value // Literal set, typed by the field
}

func (In) predicateNode() {}

// Op is a comparison operator.
type Op string

const (
	OpEq  Op = "eq"
	OpNot Op = "not"
	OpLt  Op = "lt"
	OpLte Op = "lte"
	OpGt  Op = "gt"
	OpGte Op = "gte"
)

// Ops lists every comparison operator.
var Ops = []Op{OpEq, OpNot, OpLt, OpLte, OpGt, OpGte}

// ParseOp resolves an operator name. Names are exact and lower case.
func ParseOp(name string) (Op, bool) {
	for _, op := range Ops {
		if string(op) == name {
			return op, true
		}
	}
	return "", false
}

// Ordering reports whether op compares by order rather than equality.
func (op Op) Ordering() bool {
	return op == OpLt || op == OpLte || op == OpGt || op == OpGte
}

// Compare represents a single comparison between a field and a literal.
//
// Semantics:
//
//	<field> <op> <value>
//
// A null Value is only meaningful for OpEq (IS NULL) and OpNot (IS NOT NULL).
// OpNot against a non-null literal is SQL "<>", which does not match null
// fields.
type Compare struct {
	Field string
	Op    Op
	Value ir.Value
}

func (Compare) predicateNode() {}

// And represents a conjunction of predicates.
//
// Semantics:
//
//	<predicate1> AND <predicate2> AND ... AND <predicateN>
//
// Empty Predicates means "always true".
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Or represents a disjunction of predicates.
//
// Semantics:
//
//	<predicate1> OR <predicate2> OR ... OR <predicateN>
//
// Empty Predicates means "always false".
type Or struct {
	Predicates []Predicate
}

func (Or) predicateNode() {}

// Not negates a predicate.
type Not struct {
	Predicate Predicate
}

func (Not) predicateNode() {}

// SelectItem is one entry of a Plan's select list.
//
// This is a sealed interface - only FieldRef and Aggregate implement it.
type SelectItem interface {
	selectItem() // Marker method - seals interface to this package

	// OutputName is the name the item's value is returned under.
	OutputName() string
}

// FieldRef selects a declared field, optionally under an alias.
type FieldRef struct {
	Field string
	Alias string // Empty = output under the field name
}

func (FieldRef) selectItem() {}

// OutputName returns the alias, or the field name when there is none.
func (f FieldRef) OutputName() string {
	if f.Alias != "" {
		return f.Alias
	}
	return f.Field
}

// AggFunc is a whitelisted aggregate function.
type AggFunc string

const (
	Count AggFunc = "count"
	Sum   AggFunc = "sum"
	Avg   AggFunc = "avg"
	Min   AggFunc = "min"
	Max   AggFunc = "max"
)

// AggFuncs lists the aggregate whitelist.
var AggFuncs = []AggFunc{Count, Sum, Avg, Min, Max}

// ParseAggFunc resolves a lower-case aggregate name against the whitelist.
func ParseAggFunc(name string) (AggFunc, bool) {
	for _, fn := range AggFuncs {
		if string(fn) == name {
			return fn, true
		}
	}
	return "", false
}

// Star is the Aggregate field of a whole-row count(*).
const Star = "*"

// Aggregate applies a whitelisted function to a field.
//
// Semantics:
//
//	<func>(<field>) AS <alias>
//
// Field is Star only for Count.
type Aggregate struct {
	Func  AggFunc
	Field string
	Alias string // Empty = output under the default name
}

func (Aggregate) selectItem() {}

// OutputName returns the alias, or the default name: "count" for count(*),
// otherwise func_field (e.g. "sum_price").
func (a Aggregate) OutputName() string {
	if a.Alias != "" {
		return a.Alias
	}
	if a.Field == Star {
		return string(a.Func)
	}
	return string(a.Func) + "_" + a.Field
}

// OrderItem is one sort key.
type OrderItem struct {
	Field    string
	Desc     bool
	Position int // Zero-based rank in the request
}

// Direction returns "asc" or "desc".
func (o OrderItem) Direction() string {
	if o.Desc {
		return "desc"
	}
	return "asc"
}

// Page is the pagination strategy of a Plan.
//
// This is a sealed interface - only OffsetPage and CursorPage implement it.
type Page interface {
	pageNode() // Marker method - seals interface to this package
}

// OffsetPage skips Offset rows and returns at most Limit rows.
type OffsetPage struct {
	Offset int64
	Limit  int64
}

func (OffsetPage) pageNode() {}

// CursorPage returns at most Limit rows strictly after the After cursor.
// A nil After requests the first page.
type CursorPage struct {
	After *Cursor
	Limit int64
}

func (CursorPage) pageNode() {}

// Cursor is a decoded keyset position: the sort-key values of the last row
// of the previous page, in effective order (request order plus primary key).
type Cursor struct {
	Keys []CursorKey
}

// CursorKey is one sort-key value of a Cursor.
type CursorKey struct {
	Field string
	Value ir.Value
}

// Plan is the validated, backend-neutral description of one retrieval.
//
// Semantics:
//
//	SELECT <select> FROM <model> WHERE <filter>
//	GROUP BY <group> ORDER BY <order> <page>
//
// A Plan is produced once per request by the planner and consumed by one
// executor call. It is immutable by convention: nothing in this module
// mutates a Plan after assembly, and slices handed in are copies.
type Plan struct {
	Model          string       // Model name from the descriptor
	Filter         Predicate    // WHERE conditions (nil = no filter)
	Select         []SelectItem // Never empty after assembly
	ExplicitSelect bool         // False when Select was defaulted
	Order          []OrderItem  // Request order, without the primary-key tie break
	Group          []string     // GROUP BY fields in request order
	Page           Page         // OffsetPage or CursorPage
}

// HasAggregates reports whether any select item is an Aggregate.
func (p *Plan) HasAggregates() bool {
	for _, item := range p.Select {
		switch item.(type) {
		case Aggregate, *Aggregate:
			return true
		}
	}
	return false
}

// Grouped reports whether the plan groups rows.
func (p *Plan) Grouped() bool {
	return len(p.Group) > 0
}

// Limit returns the page size.
func (p *Plan) Limit() int64 {
	switch page := p.Page.(type) {
	case OffsetPage:
		return page.Limit
	case *OffsetPage:
		return page.Limit
	case CursorPage:
		return page.Limit
	case *CursorPage:
		return page.Limit
	default:
		return 0
	}
}

// CursorPage returns the cursor page, if the plan uses cursor pagination.
func (p *Plan) CursorPage() (CursorPage, bool) {
	switch page := p.Page.(type) {
	case CursorPage:
		return page, true
	case *CursorPage:
		return *page, true
	default:
		return CursorPage{}, false
	}
}

// Canonical returns the plan as a canonical-JSON-ready tree.
// Two structurally equal plans produce identical trees.
func (p *Plan) Canonical() (map[string]any, error) {
	filter, err := canonicalPredicate(p.Filter)
	if err != nil {
		return nil, err
	}

	sel := make([]any, len(p.Select))
	for i, item := range p.Select {
		switch it := item.(type) {
		case FieldRef:
			sel[i] = map[string]any{"field": it.Field, "alias": it.Alias}
		case *FieldRef:
			sel[i] = map[string]any{"field": it.Field, "alias": it.Alias}
		case Aggregate:
			sel[i] = map[string]any{"func": string(it.Func), "field": it.Field, "alias": it.Alias}
		case *Aggregate:
			sel[i] = map[string]any{"func": string(it.Func), "field": it.Field, "alias": it.Alias}
		default:
			return nil, fmt.Errorf("unknown select item type: %T", item)
		}
	}

	order := make([]any, len(p.Order))
	for i, o := range p.Order {
		order[i] = map[string]any{"field": o.Field, "desc": o.Desc, "position": o.Position}
	}

	group := make([]string, len(p.Group))
	copy(group, p.Group)

	page, err := canonicalPage(p.Page)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"model":           p.Model,
		"filter":          filter,
		"select":          sel,
		"explicit_select": p.ExplicitSelect,
		"order":           order,
		"group":           group,
		"page":            page,
	}, nil
}

// Fingerprint returns a domain-separated SHA-256 over the canonical form.
func (p *Plan) Fingerprint() (string, error) {
	c, err := p.Canonical()
	if err != nil {
		return "", err
	}
	return ir.Fingerprint(ir.DomainPlan, c)
}

func canonicalPredicate(pred Predicate) (any, error) {
	if pred == nil {
		return nil, nil
	}

	switch pr := pred.(type) {
	case In:
		return map[string]any{"op": "in", "field": pr.Field, "values": pr.Values}, nil
	case *In:
		return canonicalPredicate(*pr)
	case Compare:
		value := pr.Value
		if value == nil {
			value = ir.Null{}
		}
		return map[string]any{"op": string(pr.Op), "field": pr.Field, "value": value}, nil
	case *Compare:
		return canonicalPredicate(*pr)
	case And:
		return canonicalGroup("and", pr.Predicates)
	case *And:
		return canonicalGroup("and", pr.Predicates)
	case Or:
		return canonicalGroup("or", pr.Predicates)
	case *Or:
		return canonicalGroup("or", pr.Predicates)
	case Not:
		inner, err := canonicalPredicate(pr.Predicate)
		if err != nil {
			return nil, err
		}
		return map[string]any{"op": "negate", "arg": inner}, nil
	case *Not:
		return canonicalPredicate(*pr)
	default:
		return nil, fmt.Errorf("unknown predicate type: %T", pred)
	}
}

func canonicalGroup(op string, preds []Predicate) (any, error) {
	args := make([]any, len(preds))
	for i, sub := range preds {
		c, err := canonicalPredicate(sub)
		if err != nil {
			return nil, err
		}
		args[i] = c
	}
	return map[string]any{"op": op, "args": args}, nil
}

func canonicalPage(page Page) (any, error) {
	switch pg := page.(type) {
	case nil:
		return nil, nil
	case OffsetPage:
		return map[string]any{"kind": "offset", "offset": pg.Offset, "limit": pg.Limit}, nil
	case *OffsetPage:
		return canonicalPage(*pg)
	case CursorPage:
		var after any
		if pg.After != nil {
			keys := make([]any, len(pg.After.Keys))
			for i, k := range pg.After.Keys {
				value := k.Value
				if value == nil {
					value = ir.Null{}
				}
				keys[i] = map[string]any{"field": k.Field, "value": value}
			}
			after = keys
		}
		return map[string]any{"kind": "cursor", "after": after, "limit": pg.Limit}, nil
	case *CursorPage:
		return canonicalPage(*pg)
	default:
		return nil, fmt.Errorf("unknown page type: %T", page)
	}
}
