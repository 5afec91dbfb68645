package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/quarry/internal/graphquery"
	"github.com/roach88/quarry/internal/planner"
	"github.com/roach88/quarry/internal/queryir"
	"github.com/roach88/quarry/internal/schema"
)

// Validation error codes (E100-E199)
const (
	ErrNoModels       = "E100" // nothing to validate
	ErrReservedField  = "E101" // field name is a reserved query parameter
	ErrShadowedSuffix = "E102" // field name hides an operator key of another field
	ErrSharedTable    = "E103" // two models store into one table
	ErrDuplicateModel = "E104" // model declared twice
)

// ValidationError represents a model validation error.
type ValidationError struct {
	Model   string `json:"model,omitempty"`
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("[%s] %s.%s: %s", e.Code, e.Model, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks rules that span fields or models and that the descriptor
// constructor cannot see. Returns all errors found (does not fail-fast).
func Validate(models []*schema.Descriptor) []ValidationError {
	if len(models) == 0 {
		return []ValidationError{{
			Field:   "model",
			Message: "at least one model is required",
			Code:    ErrNoModels,
		}}
	}

	var errs []ValidationError
	tables := make(map[string]string, len(models))
	seen := make(map[string]bool, len(models))

	for _, d := range models {
		// E104
		if seen[d.Model()] {
			errs = append(errs, ValidationError{
				Model:   d.Model(),
				Field:   "model",
				Message: fmt.Sprintf("model %s is declared more than once", d.Model()),
				Code:    ErrDuplicateModel,
			})
			continue
		}
		seen[d.Model()] = true

		// E103
		if other, dup := tables[d.Table()]; dup {
			errs = append(errs, ValidationError{
				Model:   d.Model(),
				Field:   "table",
				Message: fmt.Sprintf("table %s is already used by model %s", d.Table(), other),
				Code:    ErrSharedTable,
			})
		}
		tables[d.Table()] = d.Model()

		errs = append(errs, validateFields(d)...)
	}
	return errs
}

func validateFields(d *schema.Descriptor) []ValidationError {
	var errs []ValidationError
	for _, f := range d.Fields() {
		// E101
		if planner.IsReserved(f.Name) {
			errs = append(errs, ValidationError{
				Model:   d.Model(),
				Field:   f.Name,
				Message: fmt.Sprintf("%s is a reserved query parameter and cannot be filtered on", f.Name),
				Code:    ErrReservedField,
			})
		}

		// E102
		if base, op, ok := splitOperator(f.Name); ok && d.Has(base) {
			errs = append(errs, ValidationError{
				Model:   d.Model(),
				Field:   f.Name,
				Message: fmt.Sprintf("%s hides the %s operator of field %s in where filters", f.Name, op, base),
				Code:    ErrShadowedSuffix,
			})
		}
	}
	return errs
}

func splitOperator(name string) (base, op string, ok bool) {
	i := strings.LastIndexByte(name, '_')
	if i <= 0 || i == len(name)-1 {
		return "", "", false
	}
	base, op = name[:i], name[i+1:]
	if op == graphquery.OpIn {
		return base, op, true
	}
	if _, known := queryir.ParseOp(op); known {
		return base, op, true
	}
	return "", "", false
}
