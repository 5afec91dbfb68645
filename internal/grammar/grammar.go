package grammar

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// Separators used by the clause syntax.
const (
	ListSeparator  = ","
	AliasSeparator = ";"
	OrderSeparator = ":"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// IsIdentifier reports whether s is a complete identifier token.
func IsIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}

// SyntaxError reports text that does not match the clause grammar.
type SyntaxError struct {
	Token   string // Offending raw text
	Message string
	Column  int // 1-based column inside Token, 0 when unknown
}

func (e *SyntaxError) Error() string {
	if e.Column > 0 {
		return fmt.Sprintf("syntax error in %q at column %d: %s", e.Token, e.Column, e.Message)
	}
	return fmt.Sprintf("syntax error in %q: %s", e.Token, e.Message)
}

// SplitList splits a comma-separated clause into trimmed items.
// Empty items (",,", a trailing comma, blank input) are syntax errors.
func SplitList(raw string) ([]string, error) {
	parts := strings.Split(raw, ListSeparator)
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		item := strings.TrimSpace(part)
		if item == "" {
			return nil, &SyntaxError{Token: raw, Message: "empty list item"}
		}
		items = append(items, item)
	}
	return items, nil
}

// SplitLiterals splits a filter value list on commas. Literals are kept
// verbatim, surrounding blanks included; an empty literal is a syntax error.
func SplitLiterals(raw string) ([]string, error) {
	literals := strings.Split(raw, ListSeparator)
	for _, lit := range literals {
		if lit == "" {
			return nil, &SyntaxError{Token: raw, Message: "empty literal"}
		}
	}
	return literals, nil
}

// itemLexer tokenizes a single select or order item.
// Anything outside these rules is rejected by the lexer itself. Whitespace is
// not elided: the only place the grammar accepts it is around "as".
var itemLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_]*`},
	{Name: "Punct", Pattern: `[();:*]`},
	{Name: "Whitespace", Pattern: `[ \t]+`},
})

// SelectItem is the parsed form of one select list entry:
//
//	field
//	field;alias      field as alias
//	func(field)      func(field);alias      func(*) as alias
type SelectItem struct {
	Name  string    `parser:"@Ident"`
	Call  *CallArgs `parser:"( \"(\" @@ \")\" )?"`
	Alias string    `parser:"( ( \";\" | Whitespace \"as\" Whitespace ) @Ident )?"`
}

// CallArgs holds the single argument of an aggregate call.
type CallArgs struct {
	Arg string `parser:"@( Ident | \"*\" )"`
}

// IsCall reports whether the item is a func(field) expression.
func (s *SelectItem) IsCall() bool {
	return s.Call != nil
}

// OrderItem is the parsed form of one order list entry: field[:direction].
type OrderItem struct {
	Field     string `parser:"@Ident"`
	Direction string `parser:"( \":\" @Ident )?"`
}

var (
	selectParser = participle.MustBuild[SelectItem](
		participle.Lexer(itemLexer),
		participle.CaseInsensitive("Ident"),
	)

	orderParser = participle.MustBuild[OrderItem](
		participle.Lexer(itemLexer),
	)
)

// ParseSelectItem parses one select item (already split from its list).
func ParseSelectItem(item string) (*SelectItem, error) {
	parsed, err := selectParser.ParseString("", item)
	if err != nil {
		return nil, syntaxError(item, err)
	}
	return parsed, nil
}

// ParseOrderItem parses one order item and normalizes the direction to
// lower case, defaulting to "asc".
func ParseOrderItem(item string) (*OrderItem, error) {
	parsed, err := orderParser.ParseString("", item)
	if err != nil {
		return nil, syntaxError(item, err)
	}

	switch strings.ToLower(parsed.Direction) {
	case "", "asc":
		parsed.Direction = "asc"
	case "desc":
		parsed.Direction = "desc"
	default:
		return nil, &SyntaxError{
			Token:   item,
			Message: fmt.Sprintf("invalid order direction %q: expected asc or desc", parsed.Direction),
		}
	}
	return parsed, nil
}

// syntaxError converts a participle failure into a SyntaxError carrying the raw item.
func syntaxError(item string, err error) *SyntaxError {
	var perr participle.Error
	if errors.As(err, &perr) {
		return &SyntaxError{
			Token:   item,
			Message: perr.Message(),
			Column:  perr.Position().Column,
		}
	}
	return &SyntaxError{Token: item, Message: err.Error()}
}
