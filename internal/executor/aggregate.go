package executor

import (
	"fmt"

	"github.com/roach88/quarry/internal/ir"
	"github.com/roach88/quarry/internal/queryir"
	"github.com/roach88/quarry/internal/schema"
)

// aggregate computes a over the rows of one group with SQL semantics:
// nulls are skipped, and sum, avg, min and max of no values are null.
func aggregate(d *schema.Descriptor, a queryir.Aggregate, rows []ir.Record) (ir.Value, error) {
	if a.Field == queryir.Star {
		return ir.Int(len(rows)), nil
	}
	f, ok := d.Lookup(a.Field)
	if !ok {
		return nil, fmt.Errorf("aggregate over unknown field %s", a.Field)
	}

	values := make([]ir.Value, 0, len(rows))
	for _, row := range rows {
		if v := row[a.Field]; !ir.IsNull(v) {
			values = append(values, v)
		}
	}

	switch a.Func {
	case queryir.Count:
		return ir.Int(len(values)), nil
	case queryir.Sum:
		if len(values) == 0 {
			return ir.Null{}, nil
		}
		if f.Type == schema.Integer {
			var sum int64
			for _, v := range values {
				n, ok := v.(ir.Int)
				if !ok {
					return nil, fmt.Errorf("sum(%s): %s value in integer field", a.Field, ir.TypeName(v))
				}
				sum += int64(n)
			}
			return ir.Int(sum), nil
		}
		sum, err := sumReal(a, values)
		if err != nil {
			return nil, err
		}
		return ir.Real(sum), nil
	case queryir.Avg:
		if len(values) == 0 {
			return ir.Null{}, nil
		}
		sum, err := sumReal(a, values)
		if err != nil {
			return nil, err
		}
		return ir.Real(sum / float64(len(values))), nil
	case queryir.Min, queryir.Max:
		if len(values) == 0 {
			return ir.Null{}, nil
		}
		best := values[0]
		for _, v := range values[1:] {
			c, err := ir.Compare(v, best)
			if err != nil {
				return nil, fmt.Errorf("%s(%s): %w", a.Func, a.Field, err)
			}
			if (a.Func == queryir.Min && c < 0) || (a.Func == queryir.Max && c > 0) {
				best = v
			}
		}
		return best, nil
	default:
		return nil, fmt.Errorf("unsupported aggregate function: %s", a.Func)
	}
}

func sumReal(a queryir.Aggregate, values []ir.Value) (float64, error) {
	var sum float64
	for _, v := range values {
		switch n := v.(type) {
		case ir.Int:
			sum += float64(n)
		case ir.Real:
			sum += float64(n)
		default:
			return 0, fmt.Errorf("%s(%s): %s value is not numeric", a.Func, a.Field, ir.TypeName(v))
		}
	}
	return sum, nil
}
