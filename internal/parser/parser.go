package parser

import (
	"errors"
	"sort"
	"strings"

	"github.com/roach88/quarry/internal/grammar"
	"github.com/roach88/quarry/internal/ir"
	"github.com/roach88/quarry/internal/queryir"
	"github.com/roach88/quarry/internal/schema"
)

// ParseFilter parses every raw value given for one filter key into a
// membership predicate.
//
// Each raw value is a comma-separated literal list. Repeated keys union their
// values; duplicate literals collapse, keeping first-seen order.
func ParseFilter(d *schema.Descriptor, field string, raw []string) (queryir.In, error) {
	if !grammar.IsIdentifier(field) {
		return queryir.In{}, queryir.Reject(queryir.InvalidSyntax, field, "filter key %q is not an identifier", field)
	}
	f, err := Lookup(d, field)
	if err != nil {
		return queryir.In{}, err
	}

	var values []ir.Value
	for _, r := range raw {
		literals, err := grammar.SplitLiterals(r)
		if err != nil {
			return queryir.In{}, rejectSyntax(err)
		}
		for _, lit := range literals {
			v, err := f.Type.ParseLiteral(lit)
			if err != nil {
				return queryir.In{}, rejectCoercion(lit, err)
			}
			if !containsValue(values, v) {
				values = append(values, v)
			}
		}
	}
	if len(values) == 0 {
		return queryir.In{}, queryir.Reject(queryir.InvalidSyntax, field, "filter %s has no value", field)
	}

	return queryir.In{Field: f.Name, Values: values}, nil
}

// ParseFilters parses a set of filter keys. Keys are processed in sorted
// order so the first rejection and the resulting predicate are deterministic.
// Returns nil when params is empty, the single In for one key, and an And of
// them otherwise.
func ParseFilters(d *schema.Descriptor, params map[string][]string) (queryir.Predicate, error) {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	preds := make([]queryir.Predicate, 0, len(keys))
	for _, k := range keys {
		in, err := ParseFilter(d, k, params[k])
		if err != nil {
			return nil, err
		}
		preds = append(preds, in)
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

// ParseSelect parses a comma-separated select clause.
func ParseSelect(d *schema.Descriptor, raw string) ([]queryir.SelectItem, error) {
	items, err := grammar.SplitList(raw)
	if err != nil {
		return nil, rejectSyntax(err)
	}
	return ParseSelectItems(d, items)
}

// ParseSelectItems parses select items that are already split.
//
// Each item is either a field or a whitelisted aggregate call, optionally
// aliased. Output names must be unique across the list.
func ParseSelectItems(d *schema.Descriptor, items []string) ([]queryir.SelectItem, error) {
	out := make([]queryir.SelectItem, 0, len(items))
	names := make(map[string]bool, len(items))

	for _, raw := range items {
		parsed, err := grammar.ParseSelectItem(raw)
		if err != nil {
			return nil, rejectSyntax(err)
		}

		var item queryir.SelectItem
		if parsed.IsCall() {
			item, err = parseAggregate(d, parsed)
		} else {
			var f schema.Field
			f, err = Lookup(d, parsed.Name)
			item = queryir.FieldRef{Field: f.Name, Alias: parsed.Alias}
		}
		if err != nil {
			return nil, err
		}

		name := item.OutputName()
		if names[name] {
			return nil, queryir.Reject(queryir.DuplicateAlias, name, "output name %s is used more than once", name)
		}
		names[name] = true
		out = append(out, item)
	}

	return out, nil
}

func parseAggregate(d *schema.Descriptor, parsed *grammar.SelectItem) (queryir.SelectItem, error) {
	fn, ok := queryir.ParseAggFunc(strings.ToLower(parsed.Name))
	if !ok {
		return nil, queryir.Reject(queryir.DisallowedFunction, parsed.Name, "function %s is not allowed", parsed.Name)
	}

	arg := parsed.Call.Arg
	if arg == queryir.Star {
		if fn != queryir.Count {
			return nil, queryir.Reject(queryir.InvalidAggregation, parsed.Name+"(*)", "only count accepts *")
		}
		return queryir.Aggregate{Func: fn, Field: queryir.Star, Alias: parsed.Alias}, nil
	}

	f, err := Lookup(d, arg)
	if err != nil {
		return nil, err
	}
	if (fn == queryir.Sum || fn == queryir.Avg) && !f.Type.Numeric() {
		return nil, queryir.Reject(queryir.InvalidAggregation, f.Name, "%s needs a numeric field, %s is %s", fn, f.Name, f.Type)
	}

	return queryir.Aggregate{Func: fn, Field: f.Name, Alias: parsed.Alias}, nil
}

// ParseOrder parses a comma-separated order clause.
func ParseOrder(d *schema.Descriptor, raw string) ([]queryir.OrderItem, error) {
	items, err := grammar.SplitList(raw)
	if err != nil {
		return nil, rejectSyntax(err)
	}
	return ParseOrderItems(d, items)
}

// ParseOrderItems parses order items that are already split. Position records
// each item's rank in the request.
func ParseOrderItems(d *schema.Descriptor, items []string) ([]queryir.OrderItem, error) {
	out := make([]queryir.OrderItem, 0, len(items))
	seen := make(map[string]bool, len(items))

	for i, raw := range items {
		parsed, err := grammar.ParseOrderItem(raw)
		if err != nil {
			return nil, rejectSyntax(err)
		}
		f, err := Lookup(d, parsed.Field)
		if err != nil {
			return nil, err
		}
		if seen[f.Name] {
			return nil, queryir.Reject(queryir.InvalidSyntax, raw, "field %s is ordered more than once", f.Name)
		}
		seen[f.Name] = true

		out = append(out, queryir.OrderItem{
			Field:    f.Name,
			Desc:     parsed.Direction == "desc",
			Position: i,
		})
	}

	return out, nil
}

// ParseGroup parses a comma-separated group clause.
func ParseGroup(d *schema.Descriptor, raw string) ([]string, error) {
	items, err := grammar.SplitList(raw)
	if err != nil {
		return nil, rejectSyntax(err)
	}
	return ParseGroupItems(d, items)
}

// ParseGroupItems validates group fields. Duplicates collapse, keeping the
// first position.
func ParseGroupItems(d *schema.Descriptor, items []string) ([]string, error) {
	out := make([]string, 0, len(items))
	seen := make(map[string]bool, len(items))

	for _, raw := range items {
		if !grammar.IsIdentifier(raw) {
			return nil, queryir.Reject(queryir.InvalidSyntax, raw, "group item %q is not an identifier", raw)
		}
		f, err := Lookup(d, raw)
		if err != nil {
			return nil, err
		}
		if seen[f.Name] {
			continue
		}
		seen[f.Name] = true
		out = append(out, f.Name)
	}

	return out, nil
}

// CoerceField converts a structured value (JSON, GraphQL, YAML) for field f.
// Coercion failures are TypeMismatch rejections.
func CoerceField(f schema.Field, x any) (ir.Value, error) {
	v, err := f.Type.Coerce(x)
	if err != nil {
		return nil, rejectCoercion(f.Name, err)
	}
	return v, nil
}

// ParseRecord converts structured input into a typed record for create and
// update. Unknown keys are UnknownField; values that do not fit their field
// are TypeMismatch. nil values become ir.Null.
func ParseRecord(d *schema.Descriptor, input map[string]any) (ir.Record, error) {
	keys := make([]string, 0, len(input))
	for k := range input {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rec := make(ir.Record, len(input))
	for _, k := range keys {
		f, err := Lookup(d, k)
		if err != nil {
			return nil, err
		}
		v, err := CoerceField(f, input[k])
		if err != nil {
			return nil, err
		}
		rec[f.Name] = v
	}
	return rec, nil
}

// Lookup resolves a field name, rejecting undeclared names as UnknownField.
func Lookup(d *schema.Descriptor, name string) (schema.Field, error) {
	f, ok := d.Lookup(name)
	if !ok {
		return schema.Field{}, queryir.Reject(queryir.UnknownField, name, "unknown field %s on %s", name, d.Model())
	}
	return f, nil
}

func containsValue(values []ir.Value, v ir.Value) bool {
	for _, existing := range values {
		if ir.Equal(existing, v) {
			return true
		}
	}
	return false
}

// rejectSyntax converts a grammar failure into an InvalidSyntax rejection.
func rejectSyntax(err error) error {
	var syn *grammar.SyntaxError
	if errors.As(err, &syn) {
		return queryir.Reject(queryir.InvalidSyntax, syn.Token, "%s", syn.Message)
	}
	return queryir.Reject(queryir.InvalidSyntax, "", "%v", err)
}

// rejectCoercion converts a coercion failure into a TypeMismatch rejection.
func rejectCoercion(token string, err error) error {
	var ce *schema.CoercionError
	if errors.As(err, &ce) {
		return queryir.Reject(queryir.TypeMismatch, token, "%s", ce.Error())
	}
	return queryir.Reject(queryir.TypeMismatch, token, "%v", err)
}
