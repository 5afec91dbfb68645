// Package graphquery normalizes graph-style requests (nested where trees,
// list clauses) into the same plan the resource style produces.
//
// Where keys:
//
//	field               equality (a list value means membership)
//	field_eq            equality
//	field_in            membership, value is a list
//	field_not           inequality
//	field_lt, _lte      ordering
//	field_gt, _gte      ordering
//	field: {op: value}  operator object with the same operator names
//	AND: [where...]     conjunction
//	OR: [where...]      disjunction
//	NOT: where          negation
//
// An exact field name always wins over suffix parsing, so a field called
// "price_lt" is compared for equality.
package graphquery

import (
	"bytes"
	"encoding/json"
	"errors"
	"sort"
	"strings"

	"github.com/roach88/quarry/internal/ir"
	"github.com/roach88/quarry/internal/metrics"
	"github.com/roach88/quarry/internal/parser"
	"github.com/roach88/quarry/internal/planner"
	"github.com/roach88/quarry/internal/queryir"
	"github.com/roach88/quarry/internal/schema"
)

// Logical where keys.
const (
	KeyAnd = "AND"
	KeyOr  = "OR"
	KeyNot = "NOT"
)

// OpIn is the membership operator name; the others are queryir.Ops.
const OpIn = "in"

// Request is a graph-style retrieval request.
type Request struct {
	Where   map[string]any `json:"where,omitempty"`
	OrderBy []string       `json:"orderBy,omitempty"`
	Select  []string       `json:"select,omitempty"`
	GroupBy []string       `json:"groupBy,omitempty"`
	Skip    *int64         `json:"skip,omitempty"`
	Limit   *int64         `json:"limit,omitempty"`
	First   *int64         `json:"first,omitempty"` // alias of Limit
	After   string         `json:"after,omitempty"`
	Cursor  bool           `json:"cursor,omitempty"` // cursor pagination without After
}

// DecodeRequest decodes a JSON request. Numbers inside where are kept exact.
// Unknown top-level keys are InvalidSyntax.
func DecodeRequest(data []byte) (Request, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	dec.DisallowUnknownFields()

	var req Request
	if err := dec.Decode(&req); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			switch typeErr.Field {
			case "skip", "limit", "first":
				return Request{}, queryir.Reject(queryir.InvalidPagination, typeErr.Value,
					"%s must be an integer", typeErr.Field)
			}
		}
		return Request{}, queryir.Reject(queryir.InvalidSyntax, "", "malformed request: %v", err)
	}
	return req, nil
}

// Normalize turns a graph-style request into a plan.
func Normalize(d *schema.Descriptor, req Request, opts planner.Options) (*queryir.Plan, error) {
	plan, err := normalize(d, req, opts)
	if err != nil {
		if r, ok := queryir.AsRejection(err); ok {
			metrics.Rejected(string(r.Kind))
		}
		return nil, err
	}
	metrics.PlanBuilt(metrics.StyleGraph)
	return plan, nil
}

func normalize(d *schema.Descriptor, req Request, opts planner.Options) (*queryir.Plan, error) {
	var c planner.Clauses
	var err error

	if c.Filter, err = NormalizeWhere(d, req.Where); err != nil {
		return nil, err
	}
	if len(req.Select) > 0 {
		if c.Select, err = parser.ParseSelectItems(d, req.Select); err != nil {
			return nil, err
		}
	}
	if len(req.OrderBy) > 0 {
		if c.Order, err = parser.ParseOrderItems(d, req.OrderBy); err != nil {
			return nil, err
		}
	}
	if len(req.GroupBy) > 0 {
		if c.Group, err = parser.ParseGroupItems(d, req.GroupBy); err != nil {
			return nil, err
		}
	}

	limit := req.Limit
	if req.First != nil {
		if req.Limit != nil {
			return nil, queryir.Reject(queryir.InvalidPagination, "first",
				"first is an alias of limit; give only one")
		}
		limit = req.First
	}
	c.Page = planner.PageRequest{
		Offset: req.Skip,
		Limit:  limit,
		After:  req.After,
		Cursor: req.Cursor,
	}

	return planner.Assemble(d, c, opts)
}

// NormalizeWhere converts a where tree into a predicate. Keys are combined
// with AND in sorted order; an empty tree is nil.
func NormalizeWhere(d *schema.Descriptor, where map[string]any) (queryir.Predicate, error) {
	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	preds := make([]queryir.Predicate, 0, len(keys))
	for _, k := range keys {
		p, err := normalizeKey(d, k, where[k])
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}

	switch len(preds) {
	case 0:
		return nil, nil
	case 1:
		return preds[0], nil
	default:
		return queryir.And{Predicates: preds}, nil
	}
}

func normalizeKey(d *schema.Descriptor, key string, value any) (queryir.Predicate, error) {
	switch key {
	case KeyAnd, KeyOr:
		list, ok := value.([]any)
		if !ok {
			return nil, queryir.Reject(queryir.InvalidSyntax, key, "%s expects a list of where objects", key)
		}
		preds := make([]queryir.Predicate, 0, len(list))
		for _, elem := range list {
			sub, ok := elem.(map[string]any)
			if !ok {
				return nil, queryir.Reject(queryir.InvalidSyntax, key, "%s expects a list of where objects", key)
			}
			p, err := NormalizeWhere(d, sub)
			if err != nil {
				return nil, err
			}
			if p == nil {
				p = queryir.And{}
			}
			preds = append(preds, p)
		}
		if key == KeyAnd {
			return queryir.And{Predicates: preds}, nil
		}
		return queryir.Or{Predicates: preds}, nil

	case KeyNot:
		sub, ok := value.(map[string]any)
		if !ok {
			return nil, queryir.Reject(queryir.InvalidSyntax, key, "NOT expects a where object")
		}
		p, err := NormalizeWhere(d, sub)
		if err != nil {
			return nil, err
		}
		if p == nil {
			p = queryir.And{}
		}
		return queryir.Not{Predicate: p}, nil
	}

	if f, ok := d.Lookup(key); ok {
		switch v := value.(type) {
		case map[string]any:
			return operatorObject(f, v)
		case []any:
			return operator(f, OpIn, v)
		default:
			return operator(f, string(queryir.OpEq), v)
		}
	}

	field, op, ok := splitSuffix(key)
	if !ok {
		return nil, queryir.Reject(queryir.UnknownField, key, "unknown field %s on %s", key, d.Model())
	}
	f, err := parser.Lookup(d, field)
	if err != nil {
		return nil, err
	}
	return operator(f, op, value)
}

// splitSuffix splits "field_op" for a known operator.
func splitSuffix(key string) (field, op string, ok bool) {
	i := strings.LastIndexByte(key, '_')
	if i <= 0 || i == len(key)-1 {
		return "", "", false
	}
	field, op = key[:i], key[i+1:]
	if !isOperator(op) {
		return "", "", false
	}
	return field, op, true
}

func isOperator(op string) bool {
	if op == OpIn {
		return true
	}
	_, ok := queryir.ParseOp(op)
	return ok
}

func operatorObject(f schema.Field, ops map[string]any) (queryir.Predicate, error) {
	names := make([]string, 0, len(ops))
	for name := range ops {
		names = append(names, name)
	}
	sort.Strings(names)

	preds := make([]queryir.Predicate, 0, len(names))
	for _, name := range names {
		if !isOperator(name) {
			return nil, queryir.Reject(queryir.InvalidSyntax, name, "unknown operator %s on %s", name, f.Name)
		}
		p, err := operator(f, name, ops[name])
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}

	if len(preds) == 1 {
		return preds[0], nil
	}
	return queryir.And{Predicates: preds}, nil
}

func operator(f schema.Field, name string, value any) (queryir.Predicate, error) {
	if name == OpIn {
		list, ok := value.([]any)
		if !ok {
			return nil, queryir.Reject(queryir.InvalidSyntax, f.Name, "in expects a list")
		}
		values := make([]ir.Value, 0, len(list))
		for _, elem := range list {
			v, err := scalar(f, elem)
			if err != nil {
				return nil, err
			}
			if ir.IsNull(v) {
				return nil, queryir.Reject(queryir.TypeMismatch, f.Name, "in does not accept null")
			}
			if !contains(values, v) {
				values = append(values, v)
			}
		}
		return queryir.In{Field: f.Name, Values: values}, nil
	}

	op, _ := queryir.ParseOp(name)
	v, err := scalar(f, value)
	if err != nil {
		return nil, err
	}
	if ir.IsNull(v) && op.Ordering() {
		return nil, queryir.Reject(queryir.TypeMismatch, f.Name, "%s does not accept null", op)
	}
	return queryir.Compare{Field: f.Name, Op: op, Value: v}, nil
}

func scalar(f schema.Field, value any) (ir.Value, error) {
	switch value.(type) {
	case map[string]any, []any:
		return nil, queryir.Reject(queryir.InvalidSyntax, f.Name, "expected a scalar value for %s", f.Name)
	}
	return parser.CoerceField(f, value)
}

func contains(values []ir.Value, v ir.Value) bool {
	for _, existing := range values {
		if ir.Equal(existing, v) {
			return true
		}
	}
	return false
}
