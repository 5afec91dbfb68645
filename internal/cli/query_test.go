package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seededDB returns a SQLite database holding the six test products.
func seededDB(t *testing.T) string {
	t.Helper()
	db := filepath.Join(t.TempDir(), "shop.db")
	_, err := execute(t, NewSeedCommand(&RootOptions{Format: "text"}), "--db", db, testModels, "products", testSeed)
	require.NoError(t, err)
	return db
}

func queryResult(t *testing.T, out string) QueryResult {
	t.Helper()
	resp := decodeResponse(t, out)
	require.Equal(t, "ok", resp.Status, out)
	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var result QueryResult
	require.NoError(t, json.Unmarshal(data, &result))
	return result
}

func rowNames(rows []map[string]any) []any {
	out := make([]any, len(rows))
	for i, row := range rows {
		out[i] = row["name"]
	}
	return out
}

func TestSeedCommand(t *testing.T) {
	db := filepath.Join(t.TempDir(), "shop.db")

	out, err := execute(t, NewSeedCommand(&RootOptions{Format: "json"}), "--db", db, testModels, "products", testSeed)
	require.NoError(t, err)

	resp := decodeResponse(t, out)
	require.Equal(t, "ok", resp.Status)
	data := resp.Data.(map[string]any)
	assert.Equal(t, "products", data["model"])
	assert.Equal(t, float64(6), data["inserted"])
	assert.Equal(t, []any{float64(1), float64(2), float64(3), float64(4), float64(5), float64(6)}, data["keys"])
}

func TestSeedRejectsBadRowsBeforeInserting(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "shop.db")
	rows := filepath.Join(dir, "rows.yaml")
	require.NoError(t, os.WriteFile(rows, []byte("- {name: Lamp, price: 40}\n- {name: Rug, price: cheap}\n"), 0o644))

	_, err := execute(t, NewSeedCommand(&RootOptions{Format: "text"}), "--db", db, testModels, "products", rows)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "row 1")

	out, err := execute(t, NewQueryCommand(&RootOptions{Format: "json"}), "--db", db, testModels, "products", "select=name")
	require.NoError(t, err)
	assert.Empty(t, queryResult(t, out).Rows)
}

func TestSeedTextKeys(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "shop.db")
	rows := filepath.Join(dir, "tags.yaml")
	require.NoError(t, os.WriteFile(rows, []byte("- {slug: red, label: Red}\n- {label: Unnamed}\n"), 0o644))

	out, err := execute(t, NewSeedCommand(&RootOptions{Format: "json"}), "--db", db, testModels, "tags", rows)
	require.NoError(t, err)

	keys := decodeResponse(t, out).Data.(map[string]any)["keys"].([]any)
	require.Len(t, keys, 2)
	assert.Equal(t, "red", keys[0])
	assert.Len(t, keys[1], 36)
}

func TestQueryResource(t *testing.T) {
	db := seededDB(t)

	out, err := execute(t, NewQueryCommand(&RootOptions{Format: "json"}),
		"--db", db, testModels, "products", "category=Electronics&orderBy=price:desc&select=name,price&limit=3")
	require.NoError(t, err)

	result := queryResult(t, out)
	assert.Equal(t, []string{"name", "price"}, result.Columns)
	assert.Equal(t, []any{"Laptop", "Monitor", "Keyboard"}, rowNames(result.Rows))
	assert.Equal(t, float64(1000), result.Rows[0]["price"])
	assert.True(t, result.HasMore)
	assert.Empty(t, result.NextCursor)
}

func TestQueryAggregate(t *testing.T) {
	db := seededDB(t)

	out, err := execute(t, NewQueryCommand(&RootOptions{Format: "json"}),
		"--db", db, testModels, "products", "select=category,count(*)&groupBy=category&orderBy=category")
	require.NoError(t, err)

	result := queryResult(t, out)
	assert.Equal(t, []string{"category", "count"}, result.Columns)
	assert.Equal(t, []map[string]any{
		{"category": "Electronics", "count": float64(4)},
		{"category": "Furniture", "count": float64(2)},
	}, result.Rows)
	assert.False(t, result.HasMore)
}

func TestQueryGraphCursorWalk(t *testing.T) {
	db := seededDB(t)
	page := func(after string) QueryResult {
		req := map[string]any{"first": 2, "orderBy": []string{"price:desc"}, "select": []string{"name"}}
		if after != "" {
			req["after"] = after
		}
		body, err := json.Marshal(req)
		require.NoError(t, err)

		out, err := execute(t, NewQueryCommand(&RootOptions{Format: "json"}),
			"--db", db, testModels, "products", string(body), "--graph")
		require.NoError(t, err)
		return queryResult(t, out)
	}

	first := page("")
	assert.Equal(t, []any{"Laptop", "Desk"}, rowNames(first.Rows))
	assert.True(t, first.HasMore)
	require.NotEmpty(t, first.NextCursor)
	assert.Equal(t, map[string]any{"name": "Laptop"}, first.Rows[0])

	second := page(first.NextCursor)
	assert.Equal(t, []any{"Monitor", "Chair"}, rowNames(second.Rows))
	assert.True(t, second.HasMore)

	third := page(second.NextCursor)
	assert.Equal(t, []any{"Keyboard", "Mouse"}, rowNames(third.Rows))
	assert.False(t, third.HasMore, "the last full page has nothing after it")
	assert.Empty(t, third.NextCursor)
}

func TestQueryText(t *testing.T) {
	db := seededDB(t)

	out, err := execute(t, NewQueryCommand(&RootOptions{Format: "text"}),
		"--db", db, testModels, "products", "active=false&select=name,stock")
	require.NoError(t, err)
	assert.Equal(t, "name   stock\nChair  30\n(1 row(s))\n", out)
}

func TestQueryRejectionSkipsDatabase(t *testing.T) {
	db := filepath.Join(t.TempDir(), "missing", "dir", "shop.db")

	out, err := execute(t, NewQueryCommand(&RootOptions{Format: "json"}),
		"--db", db, testModels, "products", "colour=red")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	resp := decodeResponse(t, out)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "UNKNOWN_FIELD", resp.Error.Code)

	_, statErr := os.Stat(filepath.Dir(db))
	assert.True(t, os.IsNotExist(statErr))
}

func TestQueryDatabaseOpenFailure(t *testing.T) {
	db := filepath.Join(t.TempDir(), "missing", "dir", "shop.db")

	out, err := execute(t, NewQueryCommand(&RootOptions{Format: "json"}),
		"--db", db, testModels, "products", "limit=1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, ErrCodeDatabase, decodeResponse(t, out).Error.Code)
}

func graphqlData(t *testing.T, out string) map[string]any {
	t.Helper()
	var result struct {
		Data   map[string]any   `json:"data"`
		Errors []map[string]any `json:"errors"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result), out)
	require.Empty(t, result.Errors)
	return result.Data
}

func TestGraphQLQuery(t *testing.T) {
	db := seededDB(t)

	out, err := execute(t, NewGraphQLCommand(&RootOptions{Format: "json"}),
		"--db", db, testModels, `{ products(where: {price_lt: 100}, orderBy: ["price"]) { name price } }`)
	require.NoError(t, err)

	data := graphqlData(t, out)
	assert.Equal(t, []any{
		map[string]any{"name": "Mouse", "price": float64(25)},
		map[string]any{"name": "Keyboard", "price": float64(75)},
	}, data["products"])
}

func TestGraphQLMutationFromFile(t *testing.T) {
	db := seededDB(t)
	doc := filepath.Join(t.TempDir(), "create.graphql")
	require.NoError(t, os.WriteFile(doc, []byte(`mutation($name: String!) {
  createProduct(input: {name: $name, category: "Lighting", price: 40, stock: 3, active: true}) { id name }
}`), 0o644))

	out, err := execute(t, NewGraphQLCommand(&RootOptions{Format: "json"}),
		"--db", db, "--vars", `{"name": "Lamp"}`, testModels, "@"+doc)
	require.NoError(t, err)

	data := graphqlData(t, out)
	assert.Equal(t, map[string]any{"id": float64(7), "name": "Lamp"}, data["createProduct"])

	out, err = execute(t, NewGraphQLCommand(&RootOptions{Format: "json"}),
		"--db", db, testModels, `{ product(id: 7) { category } }`)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"category": "Lighting"}, graphqlData(t, out)["product"])
}

func TestGraphQLRejection(t *testing.T) {
	db := seededDB(t)

	out, err := execute(t, NewGraphQLCommand(&RootOptions{Format: "json"}),
		"--db", db, testModels, `{ products(orderBy: ["colour"]) { name } }`)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var result struct {
		Errors []struct {
			Message    string         `json:"message"`
			Extensions map[string]any `json:"extensions"`
		} `json:"errors"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result), out)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "UNKNOWN_FIELD", result.Errors[0].Extensions["code"])
	assert.Equal(t, "colour", result.Errors[0].Extensions["token"])
}

func TestGraphQLBadInputs(t *testing.T) {
	_, err := execute(t, NewGraphQLCommand(&RootOptions{Format: "text"}),
		"--vars", "{not json", testModels, `{ products { name } }`)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = execute(t, NewGraphQLCommand(&RootOptions{Format: "text"}),
		testModels, "@"+filepath.Join(t.TempDir(), "absent.graphql"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
