// Package compiler turns CUE model specs into schema descriptors.
//
// A model declaration looks like:
//
//	model: products: {
//		table: "products" // optional, defaults to the model name
//		key:   "id"       // optional, defaults to "id"
//		fields: {
//			id:         int
//			name:       string
//			price:      float
//			active:     bool
//			created_at: "datetime"
//			sku:        {type: "text", column: "stock_keeping_unit"}
//		}
//	}
//
// A field is a CUE kind, a type name string, or a struct with a type and an
// optional stored column. Fields keep their declaration order.
package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/quarry/internal/schema"
)

// CompileModel parses a CUE value into a Descriptor.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the model struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`model: products: { fields: { id: int } }`)
//	d, err := CompileModel(v.LookupPath(cue.ParsePath("model.products")))
func CompileModel(v cue.Value) (*schema.Descriptor, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	var name string
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		name = labels[len(labels)-1].String()
	}

	var opts []schema.Option
	table, err := optionalString(v, "table")
	if err != nil {
		return nil, err
	}
	if table != "" {
		opts = append(opts, schema.WithTable(table))
	}
	key, err := optionalString(v, "key")
	if err != nil {
		return nil, err
	}
	if key != "" {
		opts = append(opts, schema.WithPrimaryKey(key))
	}

	fields, err := parseFields(v)
	if err != nil {
		return nil, err
	}

	d, err := schema.New(name, fields, opts...)
	if err != nil {
		return nil, &CompileError{
			Field:   "model." + name,
			Message: err.Error(),
			Pos:     v.Pos(),
		}
	}
	return d, nil
}

// CompileModels compiles every entry under the top-level "model" struct,
// in declaration order. It stops at the first error.
func CompileModels(v cue.Value) ([]*schema.Descriptor, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	modelsVal := v.LookupPath(cue.ParsePath("model"))
	if !modelsVal.Exists() {
		return nil, &CompileError{
			Field:   "model",
			Message: "no models declared",
			Pos:     v.Pos(),
		}
	}

	iter, err := modelsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var models []*schema.Descriptor
	for iter.Next() {
		d, err := CompileModel(iter.Value())
		if err != nil {
			return nil, err
		}
		models = append(models, d)
	}
	return models, nil
}

// CompileSource compiles model specs from CUE source text. filename is used
// in error positions only.
func CompileSource(filename, src string) ([]*schema.Descriptor, error) {
	v := cuecontext.New().CompileString(src, cue.Filename(filename))
	return CompileModels(v)
}

func optionalString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", &CompileError{
			Field:   field,
			Message: fmt.Sprintf("%s must be a string", field),
			Pos:     fv.Pos(),
		}
	}
	return s, nil
}

// parseFields extracts field declarations in order.
func parseFields(v cue.Value) ([]schema.Field, error) {
	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if !fieldsVal.Exists() {
		return nil, &CompileError{
			Field:   "fields",
			Message: "fields are required",
			Pos:     v.Pos(),
		}
	}

	iter, err := fieldsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var fields []schema.Field
	for iter.Next() {
		f, err := parseField(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return fields, nil
}

func parseField(name string, v cue.Value) (schema.Field, error) {
	f := schema.Field{Name: name}
	path := "fields." + name

	if v.IncompleteKind() == cue.StructKind {
		typeVal := v.LookupPath(cue.ParsePath("type"))
		if !typeVal.Exists() {
			return f, &CompileError{
				Field:   path + ".type",
				Message: "type is required",
				Pos:     v.Pos(),
			}
		}
		t, err := extractType(typeVal, path+".type")
		if err != nil {
			return f, err
		}
		f.Type = t

		column, err := optionalString(v, "column")
		if err != nil {
			return f, err
		}
		f.Column = column
		return f, nil
	}

	t, err := extractType(v, path)
	if err != nil {
		return f, err
	}
	f.Type = t
	return f, nil
}

// extractType converts a CUE kind or a type name string to a FieldType.
func extractType(v cue.Value, path string) (schema.FieldType, error) {
	if v.IsConcrete() && v.Kind() == cue.StringKind {
		s, err := v.String()
		if err != nil {
			return "", formatCUEError(err)
		}
		t, err := schema.ParseFieldType(s)
		if err != nil {
			return "", &CompileError{Field: path, Message: err.Error(), Pos: v.Pos()}
		}
		return t, nil
	}

	switch v.IncompleteKind() {
	case cue.StringKind:
		return schema.Text, nil
	case cue.IntKind:
		return schema.Integer, nil
	case cue.FloatKind, cue.NumberKind:
		return schema.Real, nil
	case cue.BoolKind:
		return schema.Boolean, nil
	default:
		return "", &CompileError{
			Field:   path,
			Message: fmt.Sprintf("unsupported type kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
