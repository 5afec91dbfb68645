package store

import (
	"github.com/spf13/cast"

	"github.com/roach88/quarry/internal/ir"
	"github.com/roach88/quarry/internal/schema"
)

// scanValue converts a driver value to a value of type t.
//
// Drivers disagree on representations: SQLite returns 0/1 for booleans read
// through aggregates and text for datetimes, while Postgres returns numeric
// aggregates (SUM, AVG) as decimal strings.
func scanValue(t schema.FieldType, x any) (ir.Value, error) {
	if b, ok := x.([]byte); ok {
		x = string(b)
	}
	if x == nil {
		return ir.Null{}, nil
	}

	switch t {
	case schema.Boolean:
		b, err := cast.ToBoolE(x)
		if err != nil {
			return nil, &schema.CoercionError{Type: t, Input: cast.ToString(x)}
		}
		return ir.Bool(b), nil
	case schema.Text:
		s, err := cast.ToStringE(x)
		if err != nil {
			return nil, &schema.CoercionError{Type: t, Input: cast.ToString(x)}
		}
		return ir.Text(s), nil
	default:
		return t.Coerce(x)
	}
}
