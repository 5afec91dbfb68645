package queryir

import (
	"github.com/roach88/quarry/internal/grammar"
	"github.com/roach88/quarry/internal/schema"
)

// Validate checks that every identifier in a plan resolves against d.
//
// The planner only ever produces plans that pass, so a failure here means a
// plan was built by hand or for a different descriptor. Backends call
// Validate before emitting anything so that no identifier outside the
// descriptor can reach a query.
//
// Validate is a pure function with no side effects.
func Validate(p *Plan, d *schema.Descriptor) error {
	if p == nil {
		return Reject(InvalidSyntax, "", "nil plan")
	}
	if p.Model != d.Model() {
		return Reject(UnknownField, p.Model, "plan model %s does not match descriptor %s", p.Model, d.Model())
	}

	v := &validator{d: d}
	v.predicate(p.Filter)

	if len(p.Select) == 0 {
		v.fail(Reject(InvalidSyntax, "", "empty select list"))
	}
	names := make(map[string]bool, len(p.Select))
	for _, item := range p.Select {
		v.selectItem(item)
		if v.err != nil {
			return v.err
		}
		name := item.OutputName()
		if names[name] {
			return Reject(DuplicateAlias, name, "output name %s is used twice", name)
		}
		names[name] = true
	}

	for _, o := range p.Order {
		v.field(o.Field)
	}
	for _, g := range p.Group {
		v.field(g)
	}
	v.page(p.Page)

	return v.err
}

// validator keeps the first failure found during traversal.
type validator struct {
	d   *schema.Descriptor
	err error
}

func (v *validator) fail(err error) {
	if v.err == nil {
		v.err = err
	}
}

func (v *validator) field(name string) {
	if !v.d.Has(name) {
		v.fail(Reject(UnknownField, name, "unknown field %s on %s", name, v.d.Model()))
	}
}

func (v *validator) alias(alias string) {
	if alias != "" && !grammar.IsIdentifier(alias) {
		v.fail(Reject(InvalidSyntax, alias, "alias %q is not an identifier", alias))
	}
}

func (v *validator) selectItem(item SelectItem) {
	switch it := item.(type) {
	case FieldRef:
		v.field(it.Field)
		v.alias(it.Alias)
	case *FieldRef:
		v.selectItem(*it)
	case Aggregate:
		if _, ok := ParseAggFunc(string(it.Func)); !ok {
			v.fail(Reject(DisallowedFunction, string(it.Func), "function %s is not allowed", it.Func))
		}
		if it.Field != Star || it.Func != Count {
			v.field(it.Field)
		}
		v.alias(it.Alias)
	case *Aggregate:
		v.selectItem(*it)
	default:
		v.fail(Reject(InvalidSyntax, "", "unknown select item type %T", item))
	}
}

// predicate recursively validates a predicate node.
func (v *validator) predicate(p Predicate) {
	if p == nil {
		return // nil predicates are valid (no filter)
	}

	switch pred := p.(type) {
	case In:
		v.field(pred.Field)
	case *In:
		v.field(pred.Field)
	case Compare:
		v.field(pred.Field)
		if _, ok := ParseOp(string(pred.Op)); !ok {
			v.fail(Reject(InvalidSyntax, string(pred.Op), "unknown operator %s", pred.Op))
		}
	case *Compare:
		v.predicate(*pred)
	case And:
		for _, sub := range pred.Predicates {
			v.predicate(sub)
		}
	case *And:
		v.predicate(*pred)
	case Or:
		for _, sub := range pred.Predicates {
			v.predicate(sub)
		}
	case *Or:
		v.predicate(*pred)
	case Not:
		v.predicate(pred.Predicate)
	case *Not:
		v.predicate(*pred)
	default:
		v.fail(Reject(InvalidSyntax, "", "unknown predicate type %T", p))
	}
}

func (v *validator) page(p Page) {
	switch pg := p.(type) {
	case OffsetPage:
		if pg.Offset < 0 || pg.Limit < 0 {
			v.fail(Reject(InvalidPagination, "", "offset and limit must be non-negative"))
		}
	case *OffsetPage:
		v.page(*pg)
	case CursorPage:
		if pg.Limit < 0 {
			v.fail(Reject(InvalidPagination, "", "limit must be non-negative"))
		}
		if pg.After != nil {
			for _, k := range pg.After.Keys {
				v.field(k.Field)
			}
		}
	case *CursorPage:
		v.page(*pg)
	default:
		v.fail(Reject(InvalidPagination, "", "missing page"))
	}
}
