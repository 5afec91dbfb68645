// Package rowfilter evaluates plan predicates against in-memory rows.
//
// Predicates are compiled to expr-lang programs. Negation is pushed down to
// the comparisons before compiling, and every comparison against a non-null
// value first requires the row value to be non-null. With negation gone,
// treating SQL's unknown as false at each comparison yields exactly the rows
// a WHERE clause keeps.
package rowfilter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/roach88/quarry/internal/ir"
	"github.com/roach88/quarry/internal/queryir"
	"github.com/roach88/quarry/internal/schema"
)

// Program is a compiled row predicate.
type Program struct {
	source  string
	args    []any
	program *vm.Program
}

// node is a predicate in negation normal form.
type node interface {
	source(c *compiler) (string, error)
}

// member is a membership test, possibly negated.
type member struct {
	field  string
	values []ir.Value
	negate bool
}

// comparison is a single field comparison.
type comparison struct {
	queryir.Compare
}

// junction is an AND (or an OR when or is set) of nodes.
type junction struct {
	or    bool
	nodes []node
}

// Compile compiles p for rows of the descriptor's model. A nil predicate
// matches every row.
func Compile(d *schema.Descriptor, p queryir.Predicate) (*Program, error) {
	c := &compiler{d: d}

	var src string
	if p == nil {
		src = "true"
	} else {
		nnf, err := pushNot(p, false)
		if err != nil {
			return nil, err
		}
		if src, err = nnf.source(c); err != nil {
			return nil, err
		}
	}

	env := map[string]any{"row": map[string]any{}, "args": []any{}}
	program, err := expr.Compile(src, expr.Env(env), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile row filter %q: %w", src, err)
	}
	return &Program{source: src, args: c.args, program: program}, nil
}

// Source returns the expr-lang source of the program.
func (p *Program) Source() string {
	return p.source
}

// Match reports whether row satisfies the predicate. Rows are keyed by field
// name; a missing field reads as null.
func (p *Program) Match(row ir.Record) (bool, error) {
	native := make(map[string]any, len(row))
	for k, v := range row {
		native[k] = operand(v)
	}
	out, err := expr.Run(p.program, map[string]any{"row": native, "args": p.args})
	if err != nil {
		return false, fmt.Errorf("evaluate row filter: %w", err)
	}
	return out.(bool), nil
}

// Filter returns the rows that match, in their original order.
func (p *Program) Filter(rows []ir.Record) ([]ir.Record, error) {
	out := make([]ir.Record, 0, len(rows))
	for _, row := range rows {
		ok, err := p.Match(row)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, row)
		}
	}
	return out, nil
}

// operand converts a value to the representation the program compares.
// Booleans become 0 and 1 so that false sorts first. Times become
// fixed-width UTC text so that text order is chronological.
func operand(v ir.Value) any {
	switch val := v.(type) {
	case ir.Bool:
		if val {
			return int64(1)
		}
		return int64(0)
	case ir.Time:
		return ir.Format(val)
	default:
		return ir.Native(v)
	}
}

// pushNot rewrites p into negation normal form, negated when neg is set.
func pushNot(p queryir.Predicate, neg bool) (node, error) {
	switch pred := p.(type) {
	case queryir.In:
		if neg && len(pred.Values) == 0 {
			return junction{}, nil // NOT (1 = 0)
		}
		return member{field: pred.Field, values: pred.Values, negate: neg}, nil
	case *queryir.In:
		return pushNot(*pred, neg)
	case queryir.Compare:
		if !neg {
			return comparison{pred}, nil
		}
		op, ok := negatedOps[pred.Op]
		if !ok {
			return nil, fmt.Errorf("unsupported operator: %s", pred.Op)
		}
		return comparison{queryir.Compare{Field: pred.Field, Op: op, Value: pred.Value}}, nil
	case *queryir.Compare:
		return pushNot(*pred, neg)
	case queryir.And:
		return pushJunction(pred.Predicates, neg, false)
	case *queryir.And:
		return pushJunction(pred.Predicates, neg, false)
	case queryir.Or:
		return pushJunction(pred.Predicates, neg, true)
	case *queryir.Or:
		return pushJunction(pred.Predicates, neg, true)
	case queryir.Not:
		return pushNot(pred.Predicate, !neg)
	case *queryir.Not:
		return pushNot(pred.Predicate, !neg)
	default:
		return nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

var negatedOps = map[queryir.Op]queryir.Op{
	queryir.OpEq:  queryir.OpNot,
	queryir.OpNot: queryir.OpEq,
	queryir.OpLt:  queryir.OpGte,
	queryir.OpGte: queryir.OpLt,
	queryir.OpLte: queryir.OpGt,
	queryir.OpGt:  queryir.OpLte,
}

// pushJunction applies De Morgan when neg is set.
func pushJunction(preds []queryir.Predicate, neg, or bool) (node, error) {
	nodes := make([]node, len(preds))
	for i, p := range preds {
		n, err := pushNot(p, neg)
		if err != nil {
			return nil, err
		}
		nodes[i] = n
	}
	return junction{or: or != neg, nodes: nodes}, nil
}

type compiler struct {
	d    *schema.Descriptor
	args []any
}

func (m member) source(c *compiler) (string, error) {
	if len(m.values) == 0 {
		return "false", nil
	}
	ref, err := c.ref(m.field)
	if err != nil {
		return "", err
	}
	test := ref + " in " + c.list(m.values)
	if m.negate {
		test = "!(" + test + ")"
	}
	return "(" + ref + " != nil && " + test + ")", nil
}

func (j junction) source(c *compiler) (string, error) {
	sep, empty := " && ", "true"
	if j.or {
		sep, empty = " || ", "false"
	}
	if len(j.nodes) == 0 {
		return empty, nil
	}
	parts := make([]string, len(j.nodes))
	for i, n := range j.nodes {
		s, err := n.source(c)
		if err != nil {
			return "", err
		}
		parts[i] = s
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return "(" + strings.Join(parts, sep) + ")", nil
}

var exprOps = map[queryir.Op]string{
	queryir.OpEq:  "==",
	queryir.OpNot: "!=",
	queryir.OpLt:  "<",
	queryir.OpLte: "<=",
	queryir.OpGt:  ">",
	queryir.OpGte: ">=",
}

func (cmp comparison) source(c *compiler) (string, error) {
	ref, err := c.ref(cmp.Field)
	if err != nil {
		return "", err
	}

	if ir.IsNull(cmp.Value) {
		switch cmp.Op {
		case queryir.OpEq:
			return ref + " == nil", nil
		case queryir.OpNot:
			return ref + " != nil", nil
		default:
			return "", fmt.Errorf("field %s: operator %s does not accept null", cmp.Field, cmp.Op)
		}
	}

	op, ok := exprOps[cmp.Op]
	if !ok {
		return "", fmt.Errorf("unsupported operator: %s", cmp.Op)
	}
	return fmt.Sprintf("(%s != nil && %s %s %s)", ref, ref, op, c.arg(operand(cmp.Value))), nil
}

func (c *compiler) ref(field string) (string, error) {
	if !c.d.Has(field) {
		return "", queryir.Reject(queryir.UnknownField, field, "unknown field %q on %s", field, c.d.Model())
	}
	return "row[" + strconv.Quote(field) + "]", nil
}

func (c *compiler) list(values []ir.Value) string {
	list := make([]any, len(values))
	for i, v := range values {
		list[i] = operand(v)
	}
	return c.arg(list)
}

func (c *compiler) arg(v any) string {
	c.args = append(c.args, v)
	return "args[" + strconv.Itoa(len(c.args)-1) + "]"
}
