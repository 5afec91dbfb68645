// Package querysql compiles query plans to parameterized SQL.
//
// CRITICAL: Every literal is a bound argument, never interpolated.
// CRITICAL: Every identifier comes from the schema descriptor, quoted.
// CRITICAL: Every query has a total ORDER BY: the primary key ends every
// non-grouped query and the group fields end every grouped one.
package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/quarry/internal/cursor"
	"github.com/roach88/quarry/internal/ir"
	"github.com/roach88/quarry/internal/queryir"
	"github.com/roach88/quarry/internal/schema"
)

// Column describes one result column of a compiled query.
type Column struct {
	Name   string           // Output name (alias or default name)
	Field  string           // Source field; "*" for count(*)
	Type   schema.FieldType // Type of the produced value
	Func   queryir.AggFunc  // Empty for plain fields
	Hidden bool             // Sort key carried only for cursor building
}

// Query is a compiled statement.
type Query struct {
	SQL     string
	Args    []any
	Columns []Column
}

// Compiler compiles plans for one descriptor and dialect.
type Compiler struct {
	d       *schema.Descriptor
	dialect Dialect
}

// NewCompiler creates a Compiler.
func NewCompiler(d *schema.Descriptor, dialect Dialect) *Compiler {
	return &Compiler{d: d, dialect: dialect}
}

// Compile converts a plan to SQL and arguments.
func (c *Compiler) Compile(plan *queryir.Plan) (*Query, error) {
	b := NewSelectBuilder(c.dialect)
	cols, err := c.Apply(plan, b)
	if err != nil {
		return nil, err
	}
	sql, args := b.Build()
	return &Query{SQL: sql, Args: args, Columns: cols}, nil
}

// Apply drives b with the plan and returns the result columns in order.
// The plan is validated against the descriptor first.
func (c *Compiler) Apply(plan *queryir.Plan, b Builder) ([]Column, error) {
	if err := queryir.Validate(plan, c.d); err != nil {
		return nil, fmt.Errorf("compile %s: %w", c.d.Model(), err)
	}

	b.From(c.dialect.Quote(c.d.Table()))

	cols, err := c.columns(plan, b)
	if err != nil {
		return nil, err
	}

	if plan.Filter != nil {
		sql, args, err := c.compilePredicate(plan.Filter)
		if err != nil {
			return nil, fmt.Errorf("compile filter: %w", err)
		}
		b.Where(sql, args...)
	}

	page, isCursor := plan.CursorPage()
	if isCursor && page.After != nil {
		eff := cursor.EffectiveOrder(plan.Order, c.d.PrimaryKey().Name)
		sql, args, err := c.compilePredicate(cursor.After(page.After, eff))
		if err != nil {
			return nil, fmt.Errorf("compile cursor: %w", err)
		}
		b.Where(sql, args...)
	}

	if plan.Grouped() {
		exprs := make([]string, len(plan.Group))
		for i, g := range plan.Group {
			exprs[i] = c.column(g)
		}
		b.GroupBy(exprs...)
	}

	for _, o := range TotalOrder(plan, c.d.PrimaryKey().Name) {
		b.OrderBy(c.orderExpr(o.Field), o.Desc)
	}

	switch pg := plan.Page.(type) {
	case queryir.OffsetPage:
		b.Limit(pg.Limit).Offset(pg.Offset)
	case *queryir.OffsetPage:
		b.Limit(pg.Limit).Offset(pg.Offset)
	case queryir.CursorPage:
		b.Limit(pg.Limit)
	case *queryir.CursorPage:
		b.Limit(pg.Limit)
	}

	return cols, nil
}

// TotalOrder returns the plan's order completed into a total order: the
// primary key pk ends a non-grouped order and the remaining group fields end
// a grouped one.
func TotalOrder(plan *queryir.Plan, pk string) []queryir.OrderItem {
	if !plan.Grouped() {
		return cursor.EffectiveOrder(plan.Order, pk)
	}

	order := append([]queryir.OrderItem(nil), plan.Order...)
	ordered := make(map[string]bool, len(order))
	for _, o := range order {
		ordered[o.Field] = true
	}
	for _, g := range plan.Group {
		if !ordered[g] {
			order = append(order, queryir.OrderItem{Field: g, Position: len(order)})
		}
	}
	return order
}

func (c *Compiler) columns(plan *queryir.Plan, b Builder) ([]Column, error) {
	cols := make([]Column, 0, len(plan.Select))
	names := make(map[string]bool, len(plan.Select))

	for _, item := range plan.Select {
		col, expr, err := c.selectColumn(item)
		if err != nil {
			return nil, err
		}
		alias := col.Name
		if !isAggregate(item) && alias == c.mustField(col.Field).Column {
			alias = ""
		}
		b.Column(expr, alias)
		cols = append(cols, col)
		names[col.Name] = true
	}

	if _, isCursor := plan.CursorPage(); !isCursor {
		return cols, nil
	}

	// Cursor pages need every sort key in the result.
	for _, o := range cursor.EffectiveOrder(plan.Order, c.d.PrimaryKey().Name) {
		if selectsField(cols, o.Field) {
			continue
		}
		name := "_cursor_" + o.Field
		for names[name] {
			name = "_" + name
		}
		f := c.mustField(o.Field)
		b.Column(c.column(o.Field), name)
		cols = append(cols, Column{Name: name, Field: f.Name, Type: f.Type, Hidden: true})
		names[name] = true
	}
	return cols, nil
}

func (c *Compiler) selectColumn(item queryir.SelectItem) (Column, string, error) {
	switch it := item.(type) {
	case queryir.FieldRef:
		f := c.mustField(it.Field)
		return Column{Name: it.OutputName(), Field: f.Name, Type: f.Type}, c.column(f.Name), nil
	case *queryir.FieldRef:
		return c.selectColumn(*it)
	case queryir.Aggregate:
		return c.aggregateColumn(it)
	case *queryir.Aggregate:
		return c.aggregateColumn(*it)
	default:
		return Column{}, "", fmt.Errorf("unsupported select item type: %T", item)
	}
}

func (c *Compiler) aggregateColumn(a queryir.Aggregate) (Column, string, error) {
	col := Column{Name: a.OutputName(), Field: a.Field, Func: a.Func}
	if a.Field == queryir.Star {
		col.Type = schema.Integer
		return col, "COUNT(*)", nil
	}

	f := c.mustField(a.Field)
	arg := c.column(f.Name)
	switch a.Func {
	case queryir.Count:
		col.Type = schema.Integer
	case queryir.Avg:
		col.Type = schema.Real
	case queryir.Sum, queryir.Min, queryir.Max:
		col.Type = f.Type
	default:
		return Column{}, "", fmt.Errorf("unsupported aggregate function: %s", a.Func)
	}
	return col, strings.ToUpper(string(a.Func)) + "(" + arg + ")", nil
}

// compilePredicate compiles a predicate to a WHERE fragment with ? markers.
// CRITICAL: Values NEVER interpolated - always bound.
func (c *Compiler) compilePredicate(p queryir.Predicate) (string, []any, error) {
	if p == nil {
		return "1 = 1", nil, nil // Always true
	}

	switch pred := single(p).(type) {
	case queryir.In:
		return c.compileIn(pred)
	case *queryir.In:
		return c.compileIn(*pred)
	case queryir.Compare:
		return c.compileCompare(pred)
	case *queryir.Compare:
		return c.compileCompare(*pred)
	case queryir.And:
		return c.compileJunction(pred.Predicates, " AND ", "1 = 1")
	case *queryir.And:
		return c.compileJunction(pred.Predicates, " AND ", "1 = 1")
	case queryir.Or:
		return c.compileJunction(pred.Predicates, " OR ", "1 = 0")
	case *queryir.Or:
		return c.compileJunction(pred.Predicates, " OR ", "1 = 0")
	case queryir.Not:
		sql, args, err := c.compilePredicate(pred.Predicate)
		if err != nil {
			return "", nil, err
		}
		return "NOT (" + sql + ")", args, nil
	case *queryir.Not:
		return c.compilePredicate(*pred)
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

// compileIn compiles membership; an empty set matches nothing.
func (c *Compiler) compileIn(in queryir.In) (string, []any, error) {
	if len(in.Values) == 0 {
		return "1 = 0", nil, nil
	}

	args := make([]any, len(in.Values))
	for i, v := range in.Values {
		arg, err := c.param(v)
		if err != nil {
			return "", nil, fmt.Errorf("field %s: %w", in.Field, err)
		}
		args[i] = arg
	}

	col := c.column(in.Field)
	if len(args) == 1 {
		return col + " = ?", args, nil
	}
	markers := strings.TrimSuffix(strings.Repeat("?, ", len(args)), ", ")
	return col + " IN (" + markers + ")", args, nil
}

var compareOps = map[queryir.Op]string{
	queryir.OpEq:  "=",
	queryir.OpNot: "<>",
	queryir.OpLt:  "<",
	queryir.OpLte: "<=",
	queryir.OpGt:  ">",
	queryir.OpGte: ">=",
}

func (c *Compiler) compileCompare(cmp queryir.Compare) (string, []any, error) {
	col := c.column(cmp.Field)

	if ir.IsNull(cmp.Value) {
		switch cmp.Op {
		case queryir.OpEq:
			return col + " IS NULL", nil, nil
		case queryir.OpNot:
			return col + " IS NOT NULL", nil, nil
		default:
			return "", nil, fmt.Errorf("field %s: operator %s does not accept null", cmp.Field, cmp.Op)
		}
	}

	sqlOp, ok := compareOps[cmp.Op]
	if !ok {
		return "", nil, fmt.Errorf("unsupported operator: %s", cmp.Op)
	}
	arg, err := c.param(cmp.Value)
	if err != nil {
		return "", nil, fmt.Errorf("field %s: %w", cmp.Field, err)
	}
	if cmp.Op.Ordering() {
		col = c.orderExpr(cmp.Field)
	}
	return col + " " + sqlOp + " ?", []any{arg}, nil
}

// compileJunction joins children with sep; composite children are
// parenthesized.
func (c *Compiler) compileJunction(preds []queryir.Predicate, sep, empty string) (string, []any, error) {
	if len(preds) == 0 {
		return empty, nil, nil
	}

	parts := make([]string, 0, len(preds))
	var args []any
	for _, p := range preds {
		sql, pargs, err := c.compilePredicate(p)
		if err != nil {
			return "", nil, err
		}
		if isJunction(single(p)) && len(preds) > 1 {
			sql = "(" + sql + ")"
		}
		parts = append(parts, sql)
		args = append(args, pargs...)
	}
	return strings.Join(parts, sep), args, nil
}

// single strips And/Or wrappers holding exactly one child, so a wrapped
// junction is judged by its own arity when deciding on parentheses.
func single(p queryir.Predicate) queryir.Predicate {
	for {
		var children []queryir.Predicate
		switch pred := p.(type) {
		case queryir.And:
			children = pred.Predicates
		case *queryir.And:
			children = pred.Predicates
		case queryir.Or:
			children = pred.Predicates
		case *queryir.Or:
			children = pred.Predicates
		default:
			return p
		}
		if len(children) != 1 {
			return p
		}
		p = children[0]
	}
}

func isJunction(p queryir.Predicate) bool {
	switch pred := p.(type) {
	case queryir.And:
		return len(pred.Predicates) > 1
	case *queryir.And:
		return len(pred.Predicates) > 1
	case queryir.Or:
		return len(pred.Predicates) > 1
	case *queryir.Or:
		return len(pred.Predicates) > 1
	default:
		return false
	}
}

// param converts a non-null literal to a driver argument.
func (c *Compiler) param(v ir.Value) (any, error) {
	if ir.IsNull(v) {
		return nil, fmt.Errorf("null is not a comparable literal")
	}
	return c.dialect.Bind(v)
}

// column returns the quoted stored column of a field.
func (c *Compiler) column(field string) string {
	return c.dialect.Quote(c.mustField(field).Column)
}

// orderExpr returns the column with bytewise collation for text fields.
func (c *Compiler) orderExpr(field string) string {
	f := c.mustField(field)
	col := c.dialect.Quote(f.Column)
	if f.Type == schema.Text {
		return c.dialect.Collate(col)
	}
	return col
}

// mustField looks up a field of a validated plan.
func (c *Compiler) mustField(name string) schema.Field {
	f, ok := c.d.Lookup(name)
	if !ok {
		panic(fmt.Sprintf("querysql: field %s not in %s descriptor", name, c.d.Model()))
	}
	return f
}

func isAggregate(item queryir.SelectItem) bool {
	switch item.(type) {
	case queryir.Aggregate, *queryir.Aggregate:
		return true
	default:
		return false
	}
}

func selectsField(cols []Column, field string) bool {
	for _, col := range cols {
		if col.Func == "" && col.Field == field {
			return true
		}
	}
	return false
}
