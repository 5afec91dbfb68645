package compiler

import (
	"errors"
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/quarry/internal/schema"
)

func TestCompileModelBasic(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		model: products: {
			fields: {
				id:         int
				name:       string
				price:      float
				weight:     number
				active:     bool
				created_at: "datetime"
				sku:        {type: "text", column: "stock_keeping_unit"}
			}
		}
	`)
	require.NoError(t, v.Err())

	d, err := CompileModel(v.LookupPath(cue.ParsePath("model.products")))
	require.NoError(t, err)

	assert.Equal(t, "products", d.Model())
	assert.Equal(t, "products", d.Table())
	assert.Equal(t, "id", d.PrimaryKey().Name)
	assert.Equal(t, []schema.Field{
		{Name: "id", Column: "id", Type: schema.Integer},
		{Name: "name", Column: "name", Type: schema.Text},
		{Name: "price", Column: "price", Type: schema.Real},
		{Name: "weight", Column: "weight", Type: schema.Real},
		{Name: "active", Column: "active", Type: schema.Boolean},
		{Name: "created_at", Column: "created_at", Type: schema.DateTime},
		{Name: "sku", Column: "stock_keeping_unit", Type: schema.Text},
	}, d.Fields())
}

func TestCompileModelTableAndKey(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		model: tag: {
			table: "tags"
			key:   "slug"
			fields: {
				slug:  string
				label: "text"
			}
		}
	`)
	require.NoError(t, v.Err())

	d, err := CompileModel(v.LookupPath(cue.ParsePath("model.tag")))
	require.NoError(t, err)
	assert.Equal(t, "tag", d.Model())
	assert.Equal(t, "tags", d.Table())
	assert.Equal(t, "slug", d.PrimaryKey().Name)
}

func TestCompileModelErrors(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		field   string
		message string
	}{
		{
			name:    "missing fields",
			source:  `model: m: { table: "m" }`,
			field:   "fields",
			message: "fields are required",
		},
		{
			name:    "unknown type name",
			source:  `model: m: { fields: { id: int, x: "blob" } }`,
			field:   "fields.x",
			message: `unknown field type "blob"`,
		},
		{
			name:    "struct without type",
			source:  `model: m: { fields: { id: int, x: {column: "y"} } }`,
			field:   "fields.x.type",
			message: "type is required",
		},
		{
			name:    "list kind",
			source:  `model: m: { fields: { id: int, x: [...string] } }`,
			field:   "fields.x",
			message: "unsupported type kind",
		},
		{
			name:    "table not a string",
			source:  `model: m: { table: 3, fields: { id: int } }`,
			field:   "table",
			message: "table must be a string",
		},
		{
			name:    "missing primary key",
			source:  `model: m: { fields: { name: string } }`,
			field:   "model.m",
			message: `primary key "id" is not a declared field`,
		},
		{
			name:    "real primary key",
			source:  `model: m: { fields: { id: float } }`,
			field:   "model.m",
			message: "must be integer or text",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := cuecontext.New()
			v := ctx.CompileString(tt.source, cue.Filename("models.cue"))
			require.NoError(t, v.Err())

			_, err := CompileModel(v.LookupPath(cue.ParsePath("model.m")))
			require.Error(t, err)

			var compileErr *CompileError
			require.True(t, errors.As(err, &compileErr), "got %T", err)
			assert.Equal(t, tt.field, compileErr.Field)
			assert.Contains(t, compileErr.Message, tt.message)
		})
	}
}

func TestCompileErrorPosition(t *testing.T) {
	_, err := CompileSource("models.cue", "model: m: {\n\tfields: {\n\t\tid: int\n\t\tx: \"blob\"\n\t}\n}\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "models.cue:4:")
}

func TestCompileModels(t *testing.T) {
	models, err := CompileSource("models.cue", `
		model: products: fields: {
			id:   int
			name: string
		}
		model: tags: {
			key: "slug"
			fields: slug: string
		}
	`)
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, "products", models[0].Model())
	assert.Equal(t, "tags", models[1].Model())
}

func TestCompileModelsMissing(t *testing.T) {
	_, err := CompileSource("models.cue", `other: 1`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no models declared")
}

func TestCompileModelsCUEError(t *testing.T) {
	_, err := CompileSource("models.cue", `model: m: fields: id: int & string`)
	require.Error(t, err)
}
