// Package graphapi serves quarry models over GraphQL.
//
// For each model the schema has an object type, a recursive {Model}Where
// input, a {Model}Input input, the queries {model}(id), {model}s(where,
// orderBy, skip, limit) and {model}Page(where, orderBy, first, after), and
// the mutations create{Model}, update{Model} and delete{Model}.
//
// Arguments are normalized by graphquery into the same plans the resource
// style produces. The requested scalar fields become the plan's select list.
// Rejections surface as GraphQL errors whose "code" extension is the
// rejection kind.
package graphapi

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/graphql-go/graphql"

	"github.com/roach88/quarry/internal/executor"
	"github.com/roach88/quarry/internal/planner"
	"github.com/roach88/quarry/internal/schema"
)

// API executes GraphQL documents against a backend.
type API struct {
	schema  graphql.Schema
	backend executor.Backend
	opts    planner.Options
	logger  *slog.Logger
	models  map[string]*schema.Descriptor // GraphQL type name -> descriptor
}

// Option configures an API.
type Option func(*API)

// WithLogger sets the API logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) { a.logger = logger }
}

// WithPlannerOptions sets the limit defaults used for list queries.
func WithPlannerOptions(opts planner.Options) Option {
	return func(a *API) { a.opts = opts }
}

// New builds the schema for models.
func New(backend executor.Backend, models []*schema.Descriptor, opts ...Option) (*API, error) {
	a := &API{
		backend: backend,
		opts:    planner.DefaultOptions(),
		logger:  slog.Default(),
		models:  make(map[string]*schema.Descriptor, len(models)),
	}
	for _, opt := range opts {
		opt(a)
	}
	if err := a.opts.Validate(); err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, fmt.Errorf("graphapi: no models")
	}

	sorted := append([]*schema.Descriptor(nil), models...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Model() < sorted[j].Model() })

	queries := graphql.Fields{}
	mutations := graphql.Fields{}
	for _, d := range sorted {
		n := modelNames(d.Model())
		if prev, dup := a.models[n.Type]; dup {
			return nil, fmt.Errorf("graphapi: models %s and %s both map to type %s", prev.Model(), d.Model(), n.Type)
		}
		a.models[n.Type] = d

		m := newModelTypes(d, n)
		a.addQueries(queries, d, n, m)
		a.addMutations(mutations, d, n, m)
	}

	s, err := graphql.NewSchema(graphql.SchemaConfig{
		Query:    graphql.NewObject(graphql.ObjectConfig{Name: "Query", Fields: queries}),
		Mutation: graphql.NewObject(graphql.ObjectConfig{Name: "Mutation", Fields: mutations}),
	})
	if err != nil {
		return nil, fmt.Errorf("graphapi: build schema: %w", err)
	}
	a.schema = s
	return a, nil
}

// Schema returns the generated schema.
func (a *API) Schema() graphql.Schema {
	return a.schema
}

// Execute runs a GraphQL document.
func (a *API) Execute(ctx context.Context, document string, variables map[string]any) *graphql.Result {
	result := graphql.Do(graphql.Params{
		Schema:         a.schema,
		RequestString:  document,
		VariableValues: variables,
		Context:        ctx,
	})
	if result.HasErrors() {
		for _, e := range result.Errors {
			a.logger.Info("graphql error", "message", e.Message, "code", e.Extensions["code"])
		}
	}
	return result
}

// modelTypes holds the GraphQL types generated for one model.
type modelTypes struct {
	object *graphql.Object
	page   *graphql.Object
	where  *graphql.InputObject
	input  *graphql.InputObject
	key    graphql.Input
}

func newModelTypes(d *schema.Descriptor, n names) modelTypes {
	objectFields := graphql.Fields{}
	inputFields := graphql.InputObjectConfigFieldMap{}
	whereFields := graphql.InputObjectConfigFieldMap{}

	for _, f := range d.Fields() {
		scalar := scalarType(f.Type)
		objectFields[f.Name] = &graphql.Field{Type: scalar}
		inputFields[f.Name] = &graphql.InputObjectFieldConfig{Type: scalar}

		whereFields[f.Name] = &graphql.InputObjectFieldConfig{Type: scalar}
		for _, op := range []string{"eq", "not", "lt", "lte", "gt", "gte"} {
			whereFields[f.Name+"_"+op] = &graphql.InputObjectFieldConfig{Type: scalar}
		}
		whereFields[f.Name+"_in"] = &graphql.InputObjectFieldConfig{
			Type: graphql.NewList(graphql.NewNonNull(scalar)),
		}
	}
	// Declared fields win over generated operator keys.
	for _, f := range d.Fields() {
		whereFields[f.Name] = &graphql.InputObjectFieldConfig{Type: scalarType(f.Type)}
	}

	object := graphql.NewObject(graphql.ObjectConfig{Name: n.Type, Fields: objectFields})

	var where *graphql.InputObject
	where = graphql.NewInputObject(graphql.InputObjectConfig{
		Name: n.Where,
		Fields: graphql.InputObjectConfigFieldMapThunk(func() graphql.InputObjectConfigFieldMap {
			whereFields["AND"] = &graphql.InputObjectFieldConfig{Type: graphql.NewList(graphql.NewNonNull(where))}
			whereFields["OR"] = &graphql.InputObjectFieldConfig{Type: graphql.NewList(graphql.NewNonNull(where))}
			whereFields["NOT"] = &graphql.InputObjectFieldConfig{Type: where}
			return whereFields
		}),
	})

	page := graphql.NewObject(graphql.ObjectConfig{
		Name: n.Result,
		Fields: graphql.Fields{
			"items":      &graphql.Field{Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(object)))},
			"nextCursor": &graphql.Field{Type: graphql.String},
			"hasMore":    &graphql.Field{Type: graphql.NewNonNull(graphql.Boolean)},
		},
	})

	return modelTypes{
		object: object,
		page:   page,
		where:  where,
		input:  graphql.NewInputObject(graphql.InputObjectConfig{Name: n.Input, Fields: inputFields}),
		key:    graphql.NewNonNull(scalarType(d.PrimaryKey().Type)),
	}
}

func scalarType(t schema.FieldType) *graphql.Scalar {
	switch t {
	case schema.Integer:
		return graphql.Int
	case schema.Real:
		return graphql.Float
	case schema.Boolean:
		return graphql.Boolean
	case schema.DateTime:
		return graphql.DateTime
	default:
		return graphql.String
	}
}

func (a *API) addQueries(fields graphql.Fields, d *schema.Descriptor, n names, m modelTypes) {
	fields[n.Single] = &graphql.Field{
		Type: m.object,
		Args: graphql.FieldConfigArgument{
			"id": &graphql.ArgumentConfig{Type: m.key},
		},
		Resolve: a.resolveGet(d),
	}

	fields[n.List] = &graphql.Field{
		Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(m.object))),
		Args: graphql.FieldConfigArgument{
			"where":   &graphql.ArgumentConfig{Type: m.where},
			"orderBy": &graphql.ArgumentConfig{Type: graphql.NewList(graphql.NewNonNull(graphql.String))},
			"skip":    &graphql.ArgumentConfig{Type: graphql.Int},
			"limit":   &graphql.ArgumentConfig{Type: graphql.Int},
		},
		Resolve: a.resolveList(d),
	}

	fields[n.Page] = &graphql.Field{
		Type: graphql.NewNonNull(m.page),
		Args: graphql.FieldConfigArgument{
			"where":   &graphql.ArgumentConfig{Type: m.where},
			"orderBy": &graphql.ArgumentConfig{Type: graphql.NewList(graphql.NewNonNull(graphql.String))},
			"first":   &graphql.ArgumentConfig{Type: graphql.Int},
			"after":   &graphql.ArgumentConfig{Type: graphql.String},
		},
		Resolve: a.resolvePage(d),
	}
}

func (a *API) addMutations(fields graphql.Fields, d *schema.Descriptor, n names, m modelTypes) {
	fields["create"+n.Type] = &graphql.Field{
		Type: m.object,
		Args: graphql.FieldConfigArgument{
			"input": &graphql.ArgumentConfig{Type: graphql.NewNonNull(m.input)},
		},
		Resolve: a.resolveCreate(d),
	}
	fields["update"+n.Type] = &graphql.Field{
		Type: m.object,
		Args: graphql.FieldConfigArgument{
			"id":    &graphql.ArgumentConfig{Type: m.key},
			"input": &graphql.ArgumentConfig{Type: graphql.NewNonNull(m.input)},
		},
		Resolve: a.resolveUpdate(d),
	}
	fields["delete"+n.Type] = &graphql.Field{
		Type: m.object,
		Args: graphql.FieldConfigArgument{
			"id": &graphql.ArgumentConfig{Type: m.key},
		},
		Resolve: a.resolveDelete(d),
	}
}
