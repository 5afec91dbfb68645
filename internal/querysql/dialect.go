package querysql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/quarry/internal/ir"
)

// Dialect selects placeholder, collation and null-ordering syntax.
type Dialect int

const (
	// SQLite uses ? placeholders. Nulls sort first ascending and last
	// descending, which is the order every backend reproduces.
	SQLite Dialect = iota

	// Postgres uses $n placeholders and spells out NULLS FIRST/LAST to
	// match SQLite ordering.
	Postgres
)

// String returns the dialect name.
func (d Dialect) String() string {
	switch d {
	case SQLite:
		return "sqlite"
	case Postgres:
		return "postgres"
	default:
		return fmt.Sprintf("Dialect(%d)", int(d))
	}
}

// ParseDialect resolves a dialect name.
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	default:
		return 0, fmt.Errorf("unknown SQL dialect %q", name)
	}
}

// Quote quotes an identifier. Identifiers come from a schema descriptor and
// never contain quotes.
func (d Dialect) Quote(ident string) string {
	return `"` + ident + `"`
}

// Collate makes text comparison and ordering bytewise.
func (d Dialect) Collate(expr string) string {
	if d == Postgres {
		return expr + ` COLLATE "C"`
	}
	return expr + " COLLATE BINARY"
}

// Placeholder returns the n-th (1-based) bind marker.
func (d Dialect) Placeholder(n int) string {
	if d == Postgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// Rebind rewrites ? markers into the dialect's placeholders, numbering from
// start. Query text never contains literals, so every ? is a marker.
func (d Dialect) Rebind(query string, start int) string {
	if d != Postgres || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	n := start
	for _, r := range query {
		if r == '?' {
			b.WriteString(d.Placeholder(n))
			n++
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Bind converts a value to a driver argument. SQLite stores datetimes as
// fixed-width UTC text so that text order is chronological; Postgres binds
// time.Time for TIMESTAMPTZ.
func (d Dialect) Bind(v ir.Value) (any, error) {
	switch val := v.(type) {
	case nil, ir.Null:
		return nil, nil
	case ir.Time:
		if d == SQLite {
			return ir.Format(val), nil
		}
		return val.Time, nil
	case ir.Text, ir.Int, ir.Real, ir.Bool:
		return ir.Native(v), nil
	default:
		return nil, fmt.Errorf("unsupported value type for SQL parameter: %T", v)
	}
}

// nullOrdering returns the explicit null placement suffix for ORDER BY.
func (d Dialect) nullOrdering(desc bool) string {
	if d != Postgres {
		return ""
	}
	if desc {
		return " NULLS LAST"
	}
	return " NULLS FIRST"
}
