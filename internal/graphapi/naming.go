package graphapi

import (
	"strings"
	"unicode"
)

// names holds the GraphQL names generated for one model.
type names struct {
	Type   string // Product
	Single string // product
	List   string // products
	Page   string // productPage
	Where  string // ProductWhere
	Input  string // ProductInput
	Result string // ProductPage
}

// modelNames derives GraphQL names from a model name. A trailing "s" is
// treated as a plural, so "products" and "product" name the same fields.
// Names ending in "ss" or "us" are left alone.
func modelNames(model string) names {
	single := lowerCamel(singular(model))
	typ := upperFirst(single)
	return names{
		Type:   typ,
		Single: single,
		List:   single + "s",
		Page:   single + "Page",
		Where:  typ + "Where",
		Input:  typ + "Input",
		Result: typ + "Page",
	}
}

func singular(s string) string {
	if len(s) > 1 && strings.HasSuffix(s, "s") && !strings.HasSuffix(s, "ss") && !strings.HasSuffix(s, "us") {
		return s[:len(s)-1]
	}
	return s
}

// lowerCamel turns snake_case into lowerCamelCase.
func lowerCamel(s string) string {
	parts := strings.Split(s, "_")
	var b strings.Builder
	for i, p := range parts {
		if p == "" {
			continue
		}
		if i == 0 || b.Len() == 0 {
			b.WriteString(lowerFirst(p))
			continue
		}
		b.WriteString(upperFirst(p))
	}
	if b.Len() == 0 {
		return s
	}
	return b.String()
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToLower(r[0])
	return string(r)
}
