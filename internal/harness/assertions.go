package harness

import (
	"fmt"
	"strings"
	"time"

	"github.com/roach88/quarry/internal/ir"
	"github.com/roach88/quarry/internal/schema"
)

// AssertionError is returned when an expectation fails on a backend.
type AssertionError struct {
	Backend  string
	Type     string // rows, count, has_more, reject, agreement
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "%s: %s mismatch\n", e.Backend, e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// checkOutcome returns every failed expectation.
func checkOutcome(e Expect, o Outcome) []error {
	if e.Reject != nil {
		if err := checkRejection(*e.Reject, o); err != nil {
			return []error{err}
		}
		return nil
	}
	if o.Rejection != nil {
		return []error{&AssertionError{
			Backend:  o.Backend,
			Type:     "reject",
			Expected: "no rejection",
			Actual:   o.Rejection.Error(),
		}}
	}

	var errs []error
	if e.Count != nil && len(o.Rows) != *e.Count {
		errs = append(errs, &AssertionError{
			Backend:  o.Backend,
			Type:     "count",
			Expected: fmt.Sprintf("%d rows", *e.Count),
			Actual:   fmt.Sprintf("%d rows", len(o.Rows)),
		})
	}
	if e.HasMore != nil && o.HasMore != *e.HasMore {
		errs = append(errs, &AssertionError{
			Backend:  o.Backend,
			Type:     "has_more",
			Expected: fmt.Sprint(*e.HasMore),
			Actual:   fmt.Sprint(o.HasMore),
		})
	}
	if e.Rows != nil {
		if err := checkRows(e.Rows, o); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func checkRejection(e RejectExpect, o Outcome) error {
	if o.Rejection == nil {
		return &AssertionError{
			Backend:  o.Backend,
			Type:     "reject",
			Expected: e.Kind,
			Actual:   fmt.Sprintf("accepted with %d rows", len(o.Rows)),
		}
	}
	if string(o.Rejection.Kind) != e.Kind {
		return &AssertionError{
			Backend:  o.Backend,
			Type:     "reject",
			Expected: e.Kind,
			Actual:   o.Rejection.Error(),
		}
	}
	if e.Token != nil && o.Rejection.Token != *e.Token {
		return &AssertionError{
			Backend:  o.Backend,
			Type:     "reject",
			Expected: fmt.Sprintf("%s with token %q", e.Kind, *e.Token),
			Actual:   fmt.Sprintf("token %q", o.Rejection.Token),
		}
	}
	return nil
}

// checkRows matches rows in order. Each expected row is a subset match:
// columns it does not mention are ignored.
func checkRows(expected []map[string]interface{}, o Outcome) error {
	if len(expected) != len(o.Rows) {
		return &AssertionError{
			Backend:  o.Backend,
			Type:     "rows",
			Expected: fmt.Sprintf("%d rows %v", len(expected), expected),
			Actual:   fmt.Sprintf("%d rows %v", len(o.Rows), formatRows(o.Rows)),
		}
	}
	for i, want := range expected {
		got := o.Rows[i]
		for key, wantVal := range want {
			gotVal, exists := got[key]
			if !exists {
				return &AssertionError{
					Backend:  o.Backend,
					Type:     "rows",
					Expected: fmt.Sprintf("row %d has column %s", i, key),
					Actual:   fmt.Sprintf("columns %v", got.SortedKeys()),
				}
			}
			if !valueMatches(wantVal, gotVal) {
				return &AssertionError{
					Backend:  o.Backend,
					Type:     "rows",
					Expected: fmt.Sprintf("row %d %s = %v", i, key, wantVal),
					Actual:   fmt.Sprintf("%s = %s", key, formatValue(gotVal)),
				}
			}
		}
	}
	return nil
}

// checkAgreement requires two backends to produce the same rows.
func checkAgreement(a, b Outcome) error {
	mismatch := func(expected, actual string) error {
		return &AssertionError{
			Backend:  a.Backend + "/" + b.Backend,
			Type:     "agreement",
			Expected: expected,
			Actual:   actual,
		}
	}

	if (a.Rejection == nil) != (b.Rejection == nil) {
		return mismatch(describe(a), describe(b))
	}
	if a.Rejection != nil {
		if a.Rejection.Kind != b.Rejection.Kind || a.Rejection.Token != b.Rejection.Token {
			return mismatch(a.Rejection.Error(), b.Rejection.Error())
		}
		return nil
	}
	if len(a.Rows) != len(b.Rows) || a.HasMore != b.HasMore {
		return mismatch(describe(a), describe(b))
	}
	for i := range a.Rows {
		if !recordsEqual(a.Rows[i], b.Rows[i]) {
			return mismatch(
				fmt.Sprintf("row %d %s", i, formatRecord(a.Rows[i])),
				fmt.Sprintf("row %d %s", i, formatRecord(b.Rows[i])),
			)
		}
	}
	return nil
}

func describe(o Outcome) string {
	if o.Rejection != nil {
		return o.Rejection.Error()
	}
	return fmt.Sprintf("%d rows (has_more=%v)", len(o.Rows), o.HasMore)
}

func recordsEqual(a, b ir.Record) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || !ir.Equal(av, bv) {
			return false
		}
	}
	return true
}

// valueMatches compares a decoded YAML value with a result value.
// Numbers compare numerically; datetimes may be written as text.
func valueMatches(expected interface{}, actual ir.Value) bool {
	if expected == nil {
		return ir.IsNull(actual)
	}
	if _, isTime := actual.(ir.Time); isTime {
		switch exp := expected.(type) {
		case string:
			v, err := schema.DateTime.ParseLiteral(exp)
			return err == nil && ir.Equal(v, actual)
		case time.Time:
			return ir.Equal(ir.NewTime(exp), actual)
		}
		return false
	}
	v, err := ir.FromNative(expected)
	if err != nil {
		return false
	}
	return ir.Equal(v, actual)
}

func formatValue(v ir.Value) string {
	if ir.IsNull(v) {
		return "null"
	}
	return ir.Format(v)
}

func formatRecord(r ir.Record) string {
	parts := make([]string, 0, len(r))
	for _, k := range r.SortedKeys() {
		parts = append(parts, k+"="+formatValue(r[k]))
	}
	return "{" + strings.Join(parts, " ") + "}"
}

func formatRows(rows []ir.Record) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = formatRecord(r)
	}
	return out
}
