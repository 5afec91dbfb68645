package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/roach88/quarry/internal/ir"
)

// FieldType is the declared type of a model field.
type FieldType string

const (
	Integer  FieldType = "integer"
	Text     FieldType = "text"
	Real     FieldType = "real"
	Boolean  FieldType = "boolean"
	DateTime FieldType = "datetime"
)

// FieldTypes lists every supported field type in declaration order.
var FieldTypes = []FieldType{Integer, Text, Real, Boolean, DateTime}

var typeAliases = map[string]FieldType{
	"integer":   Integer,
	"int":       Integer,
	"text":      Text,
	"string":    Text,
	"real":      Real,
	"float":     Real,
	"number":    Real,
	"boolean":   Boolean,
	"bool":      Boolean,
	"datetime":  DateTime,
	"timestamp": DateTime,
}

// ParseFieldType resolves a type name (or a common alias) to a FieldType.
func ParseFieldType(name string) (FieldType, error) {
	if t, ok := typeAliases[strings.ToLower(strings.TrimSpace(name))]; ok {
		return t, nil
	}
	return "", fmt.Errorf("unknown field type %q", name)
}

// Numeric reports whether sum and avg are meaningful for the type.
func (t FieldType) Numeric() bool {
	return t == Integer || t == Real
}

// CoercionError reports a literal that cannot become a value of the declared type.
type CoercionError struct {
	Type   FieldType
	Input  string
	Reason string
}

func (e *CoercionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("cannot use %q as %s: %s", e.Input, e.Type, e.Reason)
	}
	return fmt.Sprintf("cannot use %q as %s", e.Input, e.Type)
}

var (
	integerPattern = regexp.MustCompile(`^[+-]?[0-9]+$`)
	realPattern    = regexp.MustCompile(`^[+-]?([0-9]+(\.[0-9]*)?|\.[0-9]+)([eE][+-]?[0-9]+)?$`)
)

// dateLayouts are tried in order for datetime literals. Layouts without a
// zone are read as UTC.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseLiteral converts raw query text into a value of type t.
// The text is used verbatim: no trimming, no case folding except for booleans.
func (t FieldType) ParseLiteral(raw string) (ir.Value, error) {
	switch t {
	case Integer:
		if !integerPattern.MatchString(raw) {
			return nil, &CoercionError{Type: t, Input: raw}
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, &CoercionError{Type: t, Input: raw, Reason: "out of range"}
		}
		return ir.Int(n), nil

	case Real:
		if !realPattern.MatchString(raw) {
			return nil, &CoercionError{Type: t, Input: raw}
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsInf(f, 0) {
			return nil, &CoercionError{Type: t, Input: raw, Reason: "out of range"}
		}
		return ir.Real(f), nil

	case Boolean:
		switch {
		case strings.EqualFold(raw, "true"):
			return ir.Bool(true), nil
		case strings.EqualFold(raw, "false"):
			return ir.Bool(false), nil
		}
		return nil, &CoercionError{Type: t, Input: raw, Reason: "expected true or false"}

	case DateTime:
		for _, layout := range dateLayouts {
			if ts, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
				return ir.NewTime(ts), nil
			}
		}
		return nil, &CoercionError{Type: t, Input: raw, Reason: "expected RFC 3339 timestamp or YYYY-MM-DD"}

	case Text:
		return ir.Text(raw), nil

	default:
		return nil, fmt.Errorf("unsupported field type %q", t)
	}
}

// Coerce converts a structured value (decoded JSON, GraphQL arguments, YAML)
// into a value of type t. nil becomes ir.Null; callers decide whether null
// is acceptable.
func (t FieldType) Coerce(x any) (ir.Value, error) {
	if x == nil {
		return ir.Null{}, nil
	}
	if s, ok := x.(string); ok {
		return t.ParseLiteral(s)
	}
	if v, ok := x.(ir.Value); ok {
		return t.coerceValue(v)
	}

	input := fmt.Sprint(x)
	switch t {
	case Integer:
		switch n := x.(type) {
		case bool:
			return nil, &CoercionError{Type: t, Input: input}
		case float64:
			if err := integralFloat(t, input, n); err != nil {
				return nil, err
			}
		case float32:
			if err := integralFloat(t, input, float64(n)); err != nil {
				return nil, err
			}
		case uint64:
			if n > math.MaxInt64 {
				return nil, &CoercionError{Type: t, Input: input, Reason: "out of range"}
			}
		case uint:
			if uint64(n) > math.MaxInt64 {
				return nil, &CoercionError{Type: t, Input: input, Reason: "out of range"}
			}
		case json.Number:
			return t.ParseLiteral(n.String())
		}
		i, err := cast.ToInt64E(x)
		if err != nil {
			return nil, &CoercionError{Type: t, Input: input}
		}
		return ir.Int(i), nil

	case Real:
		if _, isBool := x.(bool); isBool {
			return nil, &CoercionError{Type: t, Input: input}
		}
		if n, ok := x.(json.Number); ok {
			return t.ParseLiteral(n.String())
		}
		f, err := cast.ToFloat64E(x)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, &CoercionError{Type: t, Input: input}
		}
		return ir.Real(f), nil

	case Boolean:
		if b, ok := x.(bool); ok {
			return ir.Bool(b), nil
		}
		return nil, &CoercionError{Type: t, Input: input, Reason: "expected true or false"}

	case DateTime:
		switch ts := x.(type) {
		case time.Time:
			return ir.NewTime(ts), nil
		case *time.Time:
			if ts == nil {
				return ir.Null{}, nil
			}
			return ir.NewTime(*ts), nil
		}
		return nil, &CoercionError{Type: t, Input: input, Reason: "expected RFC 3339 timestamp or YYYY-MM-DD"}

	case Text:
		s, err := cast.ToStringE(x)
		if err != nil {
			return nil, &CoercionError{Type: t, Input: input}
		}
		return ir.Text(s), nil

	default:
		return nil, fmt.Errorf("unsupported field type %q", t)
	}
}

// integralFloat checks that f is a whole number representable as int64.
// float64(math.MaxInt64) rounds up to 2^63, so the upper bound is exclusive.
func integralFloat(t FieldType, input string, f float64) error {
	if math.IsInf(f, 0) || math.IsNaN(f) || f != math.Trunc(f) {
		return &CoercionError{Type: t, Input: input, Reason: "not an integral number"}
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return &CoercionError{Type: t, Input: input, Reason: "out of range"}
	}
	return nil
}

// coerceValue accepts an already typed value when it fits t.
func (t FieldType) coerceValue(v ir.Value) (ir.Value, error) {
	switch val := v.(type) {
	case ir.Null:
		return val, nil
	case ir.Int:
		switch t {
		case Integer:
			return val, nil
		case Real:
			return ir.Real(val), nil
		}
	case ir.Real:
		if t == Real {
			return val, nil
		}
	case ir.Text:
		return t.ParseLiteral(string(val))
	case ir.Bool:
		if t == Boolean {
			return val, nil
		}
	case ir.Time:
		if t == DateTime {
			return val, nil
		}
	}
	return nil, &CoercionError{Type: t, Input: ir.Format(v), Reason: "got " + ir.TypeName(v)}
}
