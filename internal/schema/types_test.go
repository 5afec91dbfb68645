package schema

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/quarry/internal/ir"
)

func TestParseFieldType(t *testing.T) {
	tests := []struct {
		name string
		want FieldType
	}{
		{"integer", Integer},
		{"int", Integer},
		{"INT", Integer},
		{"string", Text},
		{"text", Text},
		{"float", Real},
		{"number", Real},
		{"bool", Boolean},
		{"timestamp", DateTime},
		{" datetime ", DateTime},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFieldType(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseFieldType("blob")
	assert.ErrorContains(t, err, `unknown field type "blob"`)
}

func TestFieldTypeNumeric(t *testing.T) {
	assert.True(t, Integer.Numeric())
	assert.True(t, Real.Numeric())
	assert.False(t, Text.Numeric())
	assert.False(t, Boolean.Numeric())
	assert.False(t, DateTime.Numeric())
}

func TestParseLiteral(t *testing.T) {
	tests := []struct {
		name string
		typ  FieldType
		raw  string
		want ir.Value
	}{
		{"integer", Integer, "42", ir.Int(42)},
		{"negative integer", Integer, "-7", ir.Int(-7)},
		{"signed integer", Integer, "+3", ir.Int(3)},
		{"leading zeros stay decimal", Integer, "010", ir.Int(10)},
		{"real", Real, "1.5", ir.Real(1.5)},
		{"integral real", Real, "2", ir.Real(2)},
		{"exponent real", Real, "1e3", ir.Real(1000)},
		{"fraction only", Real, ".5", ir.Real(0.5)},
		{"true", Boolean, "true", ir.Bool(true)},
		{"upper FALSE", Boolean, "FALSE", ir.Bool(false)},
		{"date only", DateTime, "2024-01-02", ir.NewTime(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))},
		{"rfc3339", DateTime, "2024-01-02T03:04:05Z", ir.NewTime(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))},
		{"offset normalized", DateTime, "2024-01-02T03:04:05+02:00", ir.NewTime(time.Date(2024, 1, 2, 1, 4, 5, 0, time.UTC))},
		{"no zone", DateTime, "2024-01-02T03:04:05", ir.NewTime(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))},
		{"text verbatim", Text, " Hello, World ", ir.Text(" Hello, World ")},
		{"text with quotes", Text, "'; DROP TABLE x; --", ir.Text("'; DROP TABLE x; --")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.typ.ParseLiteral(tt.raw)
			require.NoError(t, err)
			assert.True(t, ir.Equal(tt.want, got), "want %v, got %v", tt.want, got)
			assert.Equal(t, ir.TypeName(tt.want), ir.TypeName(got))
		})
	}
}

func TestParseLiteralMismatch(t *testing.T) {
	tests := []struct {
		name string
		typ  FieldType
		raw  string
	}{
		{"integer with fraction", Integer, "4.0"},
		{"integer word", Integer, "four"},
		{"integer padded", Integer, " 4"},
		{"integer hex", Integer, "0x10"},
		{"integer overflow", Integer, "99999999999999999999"},
		{"real word", Real, "abc"},
		{"real nan", Real, "NaN"},
		{"real inf", Real, "Inf"},
		{"real overflow", Real, "1e999"},
		{"boolean number", Boolean, "1"},
		{"boolean yes", Boolean, "yes"},
		{"datetime word", DateTime, "yesterday"},
		{"datetime partial", DateTime, "2024-13-01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.typ.ParseLiteral(tt.raw)
			var ce *CoercionError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.typ, ce.Type)
			assert.Equal(t, tt.raw, ce.Input)
		})
	}
}

func TestCoerce(t *testing.T) {
	berlin := time.FixedZone("CEST", 2*60*60)

	tests := []struct {
		name string
		typ  FieldType
		in   any
		want ir.Value
	}{
		{"nil is null", Integer, nil, ir.Null{}},
		{"json float integral", Integer, float64(3), ir.Int(3)},
		{"go int", Integer, 5, ir.Int(5)},
		{"float at int64 minimum", Integer, float64(math.MinInt64), ir.Int(math.MinInt64)},
		{"uint64 at int64 maximum", Integer, uint64(math.MaxInt64), ir.Int(math.MaxInt64)},
		{"json number", Integer, json.Number("12"), ir.Int(12)},
		{"string literal", Integer, "7", ir.Int(7)},
		{"ir int", Integer, ir.Int(9), ir.Int(9)},
		{"int to real", Real, 2, ir.Real(2)},
		{"json number real", Real, json.Number("1.5"), ir.Real(1.5)},
		{"ir int widened", Real, ir.Int(3), ir.Real(3)},
		{"bool", Boolean, true, ir.Bool(true)},
		{"bool from text", Boolean, "false", ir.Bool(false)},
		{"time normalized", DateTime, time.Date(2024, 6, 1, 12, 0, 0, 0, berlin), ir.NewTime(time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC))},
		{"time from text", DateTime, "2024-06-01", ir.NewTime(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))},
		{"number to text", Text, 5, ir.Text("5")},
		{"text", Text, "abc", ir.Text("abc")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.typ.Coerce(tt.in)
			require.NoError(t, err)
			assert.True(t, ir.Equal(tt.want, got), "want %v, got %v", tt.want, got)
			assert.Equal(t, ir.TypeName(tt.want), ir.TypeName(got))
		})
	}
}

func TestCoerceMismatch(t *testing.T) {
	tests := []struct {
		name string
		typ  FieldType
		in   any
	}{
		{"fractional integer", Integer, 3.5},
		{"bool as integer", Integer, true},
		{"bool as real", Real, false},
		{"number as boolean", Boolean, 1},
		{"number as datetime", DateTime, 1700000000},
		{"ir bool as integer", Integer, ir.Bool(true)},
		{"ir real as integer", Integer, ir.Real(1.5)},
		{"json number fraction as integer", Integer, json.Number("1.5")},
		{"float above int64", Integer, 1e20},
		{"float below int64", Integer, -1e20},
		{"float at 2^63", Integer, float64(math.MaxInt64)},
		{"float32 above int64", Integer, float32(1e20)},
		{"uint64 above int64", Integer, uint64(math.MaxInt64) + 1},
		{"infinity as integer", Integer, math.Inf(1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.typ.Coerce(tt.in)
			var ce *CoercionError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.typ, ce.Type)
		})
	}
}

func TestCoercionErrorMessage(t *testing.T) {
	err := &CoercionError{Type: Integer, Input: "abc"}
	assert.Equal(t, `cannot use "abc" as integer`, err.Error())

	err = &CoercionError{Type: Boolean, Input: "1", Reason: "expected true or false"}
	assert.Equal(t, `cannot use "1" as boolean: expected true or false`, err.Error())
}
