package grammar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsIdentifier(t *testing.T) {
	valid := []string{"a", "_", "price", "created_at", "A1", "_private", "CamelCase"}
	for _, s := range valid {
		assert.True(t, IsIdentifier(s), "%q should be an identifier", s)
	}

	invalid := []string{"", "1abc", "a-b", "a b", "a.b", "price;", "name'", `"name"`, "a\n", "é", "sum(price)"}
	for _, s := range invalid {
		assert.False(t, IsIdentifier(s), "%q should not be an identifier", s)
	}
}

func TestSplitList(t *testing.T) {
	items, err := SplitList("name, price ,category")
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "price", "category"}, items)

	items, err = SplitList("single")
	require.NoError(t, err)
	assert.Equal(t, []string{"single"}, items)
}

func TestSplitListRejectsEmptyItems(t *testing.T) {
	for _, raw := range []string{"", " ", "a,,b", "a,", ",a", " , "} {
		t.Run(raw, func(t *testing.T) {
			_, err := SplitList(raw)
			var syn *SyntaxError
			require.ErrorAs(t, err, &syn)
			assert.Equal(t, raw, syn.Token)
		})
	}
}

func TestParseSelectItem(t *testing.T) {
	tests := []struct {
		input  string
		name   string
		call   string
		alias  string
		isCall bool
	}{
		{"name", "name", "", "", false},
		{"name;n", "name", "", "n", false},
		{"name as n", "name", "", "n", false},
		{"name AS n", "name", "", "n", false},
		{"sum(price)", "sum", "price", "", true},
		{"SUM(price);total", "SUM", "price", "total", true},
		{"avg(price) as mean", "avg", "price", "mean", true},
		{"avg(price)  as\tmean", "avg", "price", "mean", true},
		{"count(*)", "count", "*", "", true},
		{"as", "as", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			item, err := ParseSelectItem(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.name, item.Name)
			assert.Equal(t, tt.alias, item.Alias)
			assert.Equal(t, tt.isCall, item.IsCall())
			if tt.isCall {
				assert.Equal(t, tt.call, item.Call.Arg)
			}
		})
	}
}

func TestParseSelectItemSyntaxErrors(t *testing.T) {
	inputs := []string{
		"",
		"name;",
		"name as",
		"sum()",
		"sum(price",
		"sum(price))",
		"sum(a b)",
		"name;alias;more",
		"na me",
		"1name",
		"name;1x",
		"price-1",
		"name' OR '1'='1",
		"sum(price) total",
		"name:asc",
		"sum ( price )",
		"sum( price )",
		"sum(price )",
		" name",
		"name ",
		"name ;n",
		"name; n",
		"name asn",
	}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			_, err := ParseSelectItem(input)
			var syn *SyntaxError
			require.ErrorAs(t, err, &syn)
			assert.Equal(t, input, syn.Token)
		})
	}
}

func TestParseOrderItem(t *testing.T) {
	tests := []struct {
		input     string
		field     string
		direction string
	}{
		{"name", "name", "asc"},
		{"name:asc", "name", "asc"},
		{"name:desc", "name", "desc"},
		{"created_at:DESC", "created_at", "desc"},
		{"price:Asc", "price", "asc"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			item, err := ParseOrderItem(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.field, item.Field)
			assert.Equal(t, tt.direction, item.Direction)
		})
	}
}

func TestParseOrderItemSyntaxErrors(t *testing.T) {
	inputs := []string{"", "name:", "name:up", "name:asc:desc", ":asc", "name desc", "na-me", "price;x", "name : desc", "name :desc", "name: desc", " name"}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			_, err := ParseOrderItem(input)
			var syn *SyntaxError
			require.ErrorAs(t, err, &syn)
			assert.Equal(t, input, syn.Token)
		})
	}
}

func TestSyntaxErrorMessage(t *testing.T) {
	err := &SyntaxError{Token: "a b", Message: "unexpected token", Column: 3}
	assert.Equal(t, `syntax error in "a b" at column 3: unexpected token`, err.Error())

	err = &SyntaxError{Token: "", Message: "empty list item"}
	assert.Equal(t, `syntax error in "": empty list item`, err.Error())
}

func TestSplitLiterals(t *testing.T) {
	lits, err := SplitLiterals("active,pending")
	require.NoError(t, err)
	assert.Equal(t, []string{"active", "pending"}, lits)

	lits, err = SplitLiterals(" a , b")
	require.NoError(t, err)
	assert.Equal(t, []string{" a ", " b"}, lits, "literals are verbatim")

	for _, raw := range []string{"", "a,", ",a", "a,,b"} {
		_, err := SplitLiterals(raw)
		var syn *SyntaxError
		require.ErrorAs(t, err, &syn, "input %q", raw)
	}
}
