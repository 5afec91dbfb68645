package schema

import (
	"fmt"

	"github.com/roach88/quarry/internal/grammar"
	"github.com/roach88/quarry/internal/ir"
)

// DefaultPrimaryKey is the primary-key field used when none is configured.
const DefaultPrimaryKey = "id"

// Field is one declared field of a model.
type Field struct {
	Name   string    // Public name used in queries
	Column string    // Stored column name; defaults to Name
	Type   FieldType // Declared type
}

// Descriptor is the immutable field table of one model.
//
// A Descriptor is built once with New and never mutated afterwards, so it is
// safe to share between goroutines. Every identifier that reaches generated
// SQL comes from a Descriptor, never from request text.
type Descriptor struct {
	model  string
	table  string
	key    string
	fields []Field
	index  map[string]int
}

// Option configures a Descriptor under construction.
type Option func(*Descriptor)

// WithTable sets the stored table name. Defaults to the model name.
func WithTable(table string) Option {
	return func(d *Descriptor) {
		d.table = table
	}
}

// WithPrimaryKey sets the primary-key field. Defaults to "id".
func WithPrimaryKey(field string) Option {
	return func(d *Descriptor) {
		d.key = field
	}
}

// New builds a Descriptor for model from fields in declaration order.
//
// Returns an error if:
//   - model, table, a field name or a column is not an identifier
//   - a field name or a column is declared twice
//   - a field type is unknown
//   - the primary key is not declared, or is not integer or text
func New(model string, fields []Field, opts ...Option) (*Descriptor, error) {
	d := &Descriptor{
		model: model,
		table: model,
		key:   DefaultPrimaryKey,
		index: make(map[string]int, len(fields)),
	}
	for _, opt := range opts {
		opt(d)
	}

	if !grammar.IsIdentifier(d.model) {
		return nil, fmt.Errorf("model name %q is not an identifier", d.model)
	}
	if !grammar.IsIdentifier(d.table) {
		return nil, fmt.Errorf("model %s: table name %q is not an identifier", d.model, d.table)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("model %s: at least one field is required", d.model)
	}

	columns := make(map[string]string, len(fields))
	d.fields = make([]Field, 0, len(fields))
	for _, f := range fields {
		if f.Column == "" {
			f.Column = f.Name
		}
		if !grammar.IsIdentifier(f.Name) {
			return nil, fmt.Errorf("model %s: field name %q is not an identifier", d.model, f.Name)
		}
		if !grammar.IsIdentifier(f.Column) {
			return nil, fmt.Errorf("model %s: field %s: column %q is not an identifier", d.model, f.Name, f.Column)
		}
		if !isFieldType(f.Type) {
			return nil, fmt.Errorf("model %s: field %s: unknown type %q", d.model, f.Name, f.Type)
		}
		if _, dup := d.index[f.Name]; dup {
			return nil, fmt.Errorf("model %s: field %s declared twice", d.model, f.Name)
		}
		if other, dup := columns[f.Column]; dup {
			return nil, fmt.Errorf("model %s: fields %s and %s share column %q", d.model, other, f.Name, f.Column)
		}
		columns[f.Column] = f.Name
		d.index[f.Name] = len(d.fields)
		d.fields = append(d.fields, f)
	}

	pk, ok := d.Lookup(d.key)
	if !ok {
		return nil, fmt.Errorf("model %s: primary key %q is not a declared field", d.model, d.key)
	}
	if pk.Type != Integer && pk.Type != Text {
		return nil, fmt.Errorf("model %s: primary key %s must be integer or text, got %s", d.model, pk.Name, pk.Type)
	}

	return d, nil
}

// MustNew is like New but panics on error.
// Use only in tests or for descriptors known to be valid.
func MustNew(model string, fields []Field, opts ...Option) *Descriptor {
	d, err := New(model, fields, opts...)
	if err != nil {
		panic(err)
	}
	return d
}

func isFieldType(t FieldType) bool {
	for _, known := range FieldTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Model returns the model name.
func (d *Descriptor) Model() string { return d.model }

// Table returns the stored table name.
func (d *Descriptor) Table() string { return d.table }

// PrimaryKey returns the primary-key field.
func (d *Descriptor) PrimaryKey() Field { return d.fields[d.index[d.key]] }

// Fields returns a copy of the declared fields in declaration order.
func (d *Descriptor) Fields() []Field {
	out := make([]Field, len(d.fields))
	copy(out, d.fields)
	return out
}

// Lookup returns the field with the given public name.
func (d *Descriptor) Lookup(name string) (Field, bool) {
	i, ok := d.index[name]
	if !ok {
		return Field{}, false
	}
	return d.fields[i], true
}

// Has reports whether name is a declared field.
func (d *Descriptor) Has(name string) bool {
	_, ok := d.index[name]
	return ok
}

// Names returns the declared field names in declaration order.
func (d *Descriptor) Names() []string {
	names := make([]string, len(d.fields))
	for i, f := range d.fields {
		names[i] = f.Name
	}
	return names
}

// Fingerprint identifies the descriptor's structure. Two descriptors with the
// same model, table, key and fields (in order) share a fingerprint.
func (d *Descriptor) Fingerprint() string {
	fields := make([]any, len(d.fields))
	for i, f := range d.fields {
		fields[i] = map[string]any{
			"name":   f.Name,
			"column": f.Column,
			"type":   string(f.Type),
		}
	}
	return ir.MustFingerprint(ir.DomainModel, map[string]any{
		"model":  d.model,
		"table":  d.table,
		"key":    d.key,
		"fields": fields,
	})
}
