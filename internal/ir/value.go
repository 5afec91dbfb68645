package ir

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"
)

// TimeLayout is the fixed-width UTC layout used wherever a Time is rendered
// as text. Fixed width keeps lexical order equal to chronological order.
const TimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Value is a sealed interface representing a typed scalar literal.
// Only Null, Text, Int, Real, Bool and Time implement it.
type Value interface {
	irValue() // Sealed - only these types implement it
}

// Null represents an absent value (SQL NULL).
type Null struct{}

func (Null) irValue() {}

// Text represents a string value.
type Text string

func (Text) irValue() {}

// Int represents a 64-bit integer value.
type Int int64

func (Int) irValue() {}

// Real represents a finite 64-bit floating point value.
type Real float64

func (Real) irValue() {}

// Bool represents a boolean value.
type Bool bool

func (Bool) irValue() {}

// Time represents an instant, always normalized to UTC.
type Time struct {
	time.Time
}

func (Time) irValue() {}

// NewTime creates a Time normalized to UTC.
func NewTime(t time.Time) Time {
	return Time{Time: t.UTC()}
}

// Record is one row keyed by field or output name.
type Record map[string]Value

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
func (r Record) SortedKeys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// Native returns a plain map suitable for JSON encoders and template engines.
func (r Record) Native() map[string]any {
	out := make(map[string]any, len(r))
	for k, v := range r {
		out[k] = Native(v)
	}
	return out
}

// IsNull reports whether v is nil or Null.
func IsNull(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(Null)
	return ok
}

// Native converts a Value to the Go type a database driver binds directly.
func Native(v Value) any {
	switch val := v.(type) {
	case nil, Null:
		return nil
	case Text:
		return string(val)
	case Int:
		return int64(val)
	case Real:
		return float64(val)
	case Bool:
		return bool(val)
	case Time:
		return val.Time
	default:
		return nil
	}
}

// FromNative converts a Go value produced by Native (or a driver) back into a Value.
func FromNative(x any) (Value, error) {
	switch val := x.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case string:
		return Text(val), nil
	case int:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return nil, fmt.Errorf("non-finite real: %v", val)
		}
		return Real(val), nil
	case bool:
		return Bool(val), nil
	case time.Time:
		return NewTime(val), nil
	default:
		return nil, fmt.Errorf("unsupported native type: %T", x)
	}
}

// Format renders a non-null Value in its literal text form. The output parses
// back to an equal Value with the matching field type.
func Format(v Value) string {
	switch val := v.(type) {
	case Text:
		return string(val)
	case Int:
		return strconv.FormatInt(int64(val), 10)
	case Real:
		return strconv.FormatFloat(float64(val), 'g', -1, 64)
	case Bool:
		return strconv.FormatBool(bool(val))
	case Time:
		return val.UTC().Format(TimeLayout)
	default:
		return ""
	}
}

// TypeName returns a short name for v's dynamic type.
func TypeName(v Value) string {
	switch v.(type) {
	case nil, Null:
		return "null"
	case Text:
		return "text"
	case Int:
		return "integer"
	case Real:
		return "real"
	case Bool:
		return "boolean"
	case Time:
		return "datetime"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// Equal reports whether two values are the same literal.
// Int and Real compare numerically; Null equals only Null.
func Equal(a, b Value) bool {
	if IsNull(a) || IsNull(b) {
		return IsNull(a) && IsNull(b)
	}
	c, err := Compare(a, b)
	return err == nil && c == 0
}

// Compare orders two values. Null sorts before every other value.
// Int and Real are mutually comparable; any other mix of types is an error.
func Compare(a, b Value) (int, error) {
	aNull, bNull := IsNull(a), IsNull(b)
	switch {
	case aNull && bNull:
		return 0, nil
	case aNull:
		return -1, nil
	case bNull:
		return 1, nil
	}

	switch x := a.(type) {
	case Text:
		if y, ok := b.(Text); ok {
			return strings.Compare(string(x), string(y)), nil
		}
	case Int:
		switch y := b.(type) {
		case Int:
			return cmp.Compare(x, y), nil
		case Real:
			return cmp.Compare(float64(x), float64(y)), nil
		}
	case Real:
		switch y := b.(type) {
		case Real:
			return cmp.Compare(x, y), nil
		case Int:
			return cmp.Compare(float64(x), float64(y)), nil
		}
	case Bool:
		if y, ok := b.(Bool); ok {
			return cmp.Compare(boolRank(bool(x)), boolRank(bool(y))), nil
		}
	case Time:
		if y, ok := b.(Time); ok {
			return x.Time.Compare(y.Time), nil
		}
	}
	return 0, fmt.Errorf("cannot compare %s with %s", TypeName(a), TypeName(b))
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}

// compareKeysRFC8785 compares strings using UTF-16 code unit ordering
// as required by RFC 8785 (Canonical JSON).
// Go's default string comparison uses UTF-8 which produces a different order.
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	minLen := min(len(a16), len(b16))
	for i := 0; i < minLen; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}

	return cmp.Compare(len(a16), len(b16))
}
