package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/quarry/internal/querysql"
	"github.com/roach88/quarry/internal/schema"
	"github.com/roach88/quarry/internal/testutil"
)

func TestCreateTableSQL(t *testing.T) {
	d := testutil.ProductDescriptor()

	assert.Equal(t, `CREATE TABLE IF NOT EXISTS "products" (
    "id" INTEGER PRIMARY KEY,
    "name" TEXT,
    "category" TEXT,
    "price" REAL,
    "stock" INTEGER,
    "active" BOOLEAN,
    "created_at" TEXT
)`, CreateTableSQL(d, querysql.SQLite))

	assert.Equal(t, `CREATE TABLE IF NOT EXISTS "products" (
    "id" BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
    "name" TEXT,
    "category" TEXT,
    "price" DOUBLE PRECISION,
    "stock" BIGINT,
    "active" BOOLEAN,
    "created_at" TIMESTAMPTZ
)`, CreateTableSQL(d, querysql.Postgres))
}

func TestCreateTableSQL_TextKeyAndColumns(t *testing.T) {
	d := schema.MustNew("tag", []schema.Field{
		{Name: "slug", Type: schema.Text, Column: "tag_slug"},
		{Name: "weight", Type: schema.Real},
	}, schema.WithTable("tags"), schema.WithPrimaryKey("slug"))

	assert.Equal(t, `CREATE TABLE IF NOT EXISTS "tags" (
    "tag_slug" TEXT PRIMARY KEY,
    "weight" REAL
)`, CreateTableSQL(d, querysql.SQLite))
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	d := testutil.ProductDescriptor()

	require.NoError(t, s.Register(ctx, d))
	require.NoError(t, s.Register(ctx, d), "re-registering the same descriptor is a no-op")

	var table, fp string
	require.NoError(t, s.db.QueryRow(
		`SELECT table_name, fingerprint FROM quarry_models WHERE model = ?`, "products",
	).Scan(&table, &fp))
	assert.Equal(t, "products", table)
	assert.Equal(t, d.Fingerprint(), fp)
}

func TestRegister_Conflict(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	require.NoError(t, s.Register(ctx, testutil.ProductDescriptor()))

	changed := schema.MustNew("products", []schema.Field{
		{Name: "id", Type: schema.Integer},
		{Name: "name", Type: schema.Text},
	})
	err := s.Register(ctx, changed)

	var conflict *ModelConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "products", conflict.Model)
	assert.Equal(t, changed.Fingerprint(), conflict.Incoming)
}

func TestRegister_TableShared(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	require.NoError(t, s.Register(ctx, testutil.ProductDescriptor()))

	other := schema.MustNew("items", []schema.Field{
		{Name: "id", Type: schema.Integer},
	}, schema.WithTable("products"))
	assert.Error(t, s.Register(ctx, other), "two models cannot share a table")
}
