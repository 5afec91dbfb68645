package graphapi

import (
	"fmt"
	"time"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"

	"github.com/roach88/quarry/internal/executor"
	"github.com/roach88/quarry/internal/graphquery"
	"github.com/roach88/quarry/internal/ir"
	"github.com/roach88/quarry/internal/queryir"
	"github.com/roach88/quarry/internal/schema"
)

func (a *API) resolveGet(d *schema.Descriptor) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		key, err := coerceKey(d, p.Args["id"])
		if err != nil {
			return nil, wrapError(err)
		}
		rec, err := a.backend.Get(p.Context, d, key)
		if err != nil {
			return nil, wrapError(err)
		}
		return rec.Native(), nil
	}
}

func (a *API) resolveList(d *schema.Descriptor) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		req, err := baseRequest(d, p)
		if err != nil {
			return nil, wrapError(err)
		}
		req.Select = selectedFields(d, p, fieldSelections(p.Info.FieldASTs))
		req.Skip = intArg(p.Args, "skip")
		req.Limit = intArg(p.Args, "limit")

		page, err := a.list(p, d, req)
		if err != nil {
			return nil, wrapError(err)
		}
		return nativeRows(page.Rows), nil
	}
}

func (a *API) resolvePage(d *schema.Descriptor) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		req, err := baseRequest(d, p)
		if err != nil {
			return nil, wrapError(err)
		}
		items := childSelections(p, fieldSelections(p.Info.FieldASTs), "items")
		req.Select = selectedFields(d, p, items)
		req.First = intArg(p.Args, "first")
		req.After, _ = p.Args["after"].(string)
		req.Cursor = true

		page, err := a.list(p, d, req)
		if err != nil {
			return nil, wrapError(err)
		}
		result := map[string]interface{}{
			"items":   nativeRows(page.Rows),
			"hasMore": page.HasMore,
		}
		if page.NextCursor != "" {
			result["nextCursor"] = page.NextCursor
		}
		return result, nil
	}
}

func (a *API) list(p graphql.ResolveParams, d *schema.Descriptor, req graphquery.Request) (*executor.Page, error) {
	start := time.Now()
	plan, err := graphquery.Normalize(d, req, a.opts)
	if err != nil {
		return nil, err
	}
	page, err := a.backend.List(p.Context, d, plan)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("graphql list",
		"model", d.Model(),
		"field", p.Info.FieldName,
		"rows", len(page.Rows),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return page, nil
}

func (a *API) resolveCreate(d *schema.Descriptor) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		rec, err := coerceInput(d, p.Args["input"])
		if err != nil {
			return nil, wrapError(err)
		}
		created, err := a.backend.Create(p.Context, d, rec)
		if err != nil {
			return nil, wrapError(err)
		}
		a.logger.Info("record created", "model", d.Model(), "key", ir.Format(created[d.PrimaryKey().Name]))
		return created.Native(), nil
	}
}

func (a *API) resolveUpdate(d *schema.Descriptor) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		key, err := coerceKey(d, p.Args["id"])
		if err != nil {
			return nil, wrapError(err)
		}
		rec, err := coerceInput(d, p.Args["input"])
		if err != nil {
			return nil, wrapError(err)
		}
		updated, err := a.backend.Update(p.Context, d, key, rec)
		if err != nil {
			return nil, wrapError(err)
		}
		a.logger.Info("record updated", "model", d.Model(), "key", ir.Format(key))
		return updated.Native(), nil
	}
}

func (a *API) resolveDelete(d *schema.Descriptor) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		key, err := coerceKey(d, p.Args["id"])
		if err != nil {
			return nil, wrapError(err)
		}
		deleted, err := a.backend.Delete(p.Context, d, key)
		if err != nil {
			return nil, wrapError(err)
		}
		a.logger.Info("record deleted", "model", d.Model(), "key", ir.Format(key))
		return deleted.Native(), nil
	}
}

// baseRequest reads the where and orderBy arguments shared by list fields.
func baseRequest(d *schema.Descriptor, p graphql.ResolveParams) (graphquery.Request, error) {
	var req graphquery.Request
	if raw, ok := p.Args["where"]; ok && raw != nil {
		where, ok := raw.(map[string]interface{})
		if !ok {
			return req, queryir.Reject(queryir.InvalidSyntax, "where", "where must be an object")
		}
		req.Where = where
	}
	if raw, ok := p.Args["orderBy"].([]interface{}); ok {
		for _, elem := range raw {
			s, ok := elem.(string)
			if !ok {
				return req, queryir.Reject(queryir.InvalidSyntax, "orderBy", "orderBy expects strings")
			}
			req.OrderBy = append(req.OrderBy, s)
		}
	}
	return req, nil
}

func intArg(args map[string]interface{}, name string) *int64 {
	n, ok := args[name].(int)
	if !ok {
		return nil
	}
	v := int64(n)
	return &v
}

func coerceKey(d *schema.Descriptor, raw interface{}) (ir.Value, error) {
	pk := d.PrimaryKey()
	v, err := pk.Type.Coerce(raw)
	if err != nil {
		return nil, queryir.Reject(queryir.TypeMismatch, fmt.Sprint(raw), "id: %v", err)
	}
	if ir.IsNull(v) {
		return nil, queryir.Reject(queryir.TypeMismatch, "id", "id must not be null")
	}
	return v, nil
}

// coerceInput converts an input object into a typed record.
func coerceInput(d *schema.Descriptor, raw interface{}) (ir.Record, error) {
	input, ok := raw.(map[string]interface{})
	if !ok {
		return nil, queryir.Reject(queryir.InvalidSyntax, "input", "input must be an object")
	}
	rec := make(ir.Record, len(input))
	for name, x := range input {
		f, ok := d.Lookup(name)
		if !ok {
			return nil, queryir.Reject(queryir.UnknownField, name, "unknown field %s on %s", name, d.Model())
		}
		v, err := f.Type.Coerce(x)
		if err != nil {
			return nil, queryir.Reject(queryir.TypeMismatch, name, "%s: %v", name, err)
		}
		rec[name] = v
	}
	return rec, nil
}

func nativeRows(rows []ir.Record) []interface{} {
	out := make([]interface{}, len(rows))
	for i, r := range rows {
		out[i] = r.Native()
	}
	return out
}

// fieldSelections flattens the selection sets of the resolved field ASTs.
func fieldSelections(fields []*ast.Field) []ast.Selection {
	var out []ast.Selection
	for _, f := range fields {
		if f.SelectionSet != nil {
			out = append(out, f.SelectionSet.Selections...)
		}
	}
	return out
}

// childSelections returns the selections under the named child field.
func childSelections(p graphql.ResolveParams, selections []ast.Selection, name string) []ast.Selection {
	var out []ast.Selection
	walkFields(p, selections, func(f *ast.Field) {
		if f.Name != nil && f.Name.Value == name && f.SelectionSet != nil {
			out = append(out, f.SelectionSet.Selections...)
		}
	})
	return out
}

// selectedFields returns the model fields requested by selections, in
// declaration order. Nothing selected means every field.
func selectedFields(d *schema.Descriptor, p graphql.ResolveParams, selections []ast.Selection) []string {
	wanted := make(map[string]bool)
	walkFields(p, selections, func(f *ast.Field) {
		if f.Name != nil && d.Has(f.Name.Value) {
			wanted[f.Name.Value] = true
		}
	})
	if len(wanted) == 0 {
		return nil
	}
	var out []string
	for _, name := range d.Names() {
		if wanted[name] {
			out = append(out, name)
		}
	}
	return out
}

// walkFields visits every field in selections, expanding fragments.
func walkFields(p graphql.ResolveParams, selections []ast.Selection, visit func(*ast.Field)) {
	for _, sel := range selections {
		switch s := sel.(type) {
		case *ast.Field:
			visit(s)
		case *ast.InlineFragment:
			if s.SelectionSet != nil {
				walkFields(p, s.SelectionSet.Selections, visit)
			}
		case *ast.FragmentSpread:
			if s.Name == nil {
				continue
			}
			def, ok := p.Info.Fragments[s.Name.Value].(*ast.FragmentDefinition)
			if ok && def.SelectionSet != nil {
				walkFields(p, def.SelectionSet.Selections, visit)
			}
		}
	}
}
