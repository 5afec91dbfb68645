package querysql

import (
	"strings"
)

// Builder is a generic parameterized SELECT builder.
//
// Conditions passed to Where use ? markers; Build numbers them for the
// dialect. Nothing passed to a Builder is ever interpolated except the
// expressions themselves, which callers build from descriptor identifiers.
type Builder interface {
	From(table string) Builder
	Column(expr, alias string) Builder
	Where(cond string, args ...any) Builder
	GroupBy(exprs ...string) Builder
	OrderBy(expr string, desc bool) Builder
	Limit(n int64) Builder
	Offset(n int64) Builder
	Build() (string, []any)
}

// SelectBuilder implements Builder for SQLite and Postgres.
type SelectBuilder struct {
	dialect Dialect
	table   string
	columns []string
	where   []string
	args    []any
	groupBy []string
	orderBy []string
	limit   *int64
	offset  *int64
}

// NewSelectBuilder creates an empty builder.
func NewSelectBuilder(dialect Dialect) *SelectBuilder {
	return &SelectBuilder{dialect: dialect}
}

// From sets the table expression.
func (b *SelectBuilder) From(table string) Builder {
	b.table = table
	return b
}

// Column adds a result column. An empty alias emits the bare expression.
func (b *SelectBuilder) Column(expr, alias string) Builder {
	if alias != "" {
		expr += " AS " + b.dialect.Quote(alias)
	}
	b.columns = append(b.columns, expr)
	return b
}

// Where adds a condition; several conditions are joined with AND.
func (b *SelectBuilder) Where(cond string, args ...any) Builder {
	b.where = append(b.where, cond)
	b.args = append(b.args, args...)
	return b
}

// GroupBy appends grouping expressions.
func (b *SelectBuilder) GroupBy(exprs ...string) Builder {
	b.groupBy = append(b.groupBy, exprs...)
	return b
}

// OrderBy appends a sort key with dialect null placement.
func (b *SelectBuilder) OrderBy(expr string, desc bool) Builder {
	dir := " ASC"
	if desc {
		dir = " DESC"
	}
	b.orderBy = append(b.orderBy, expr+dir+b.dialect.nullOrdering(desc))
	return b
}

// Limit sets the row limit, bound as an argument.
func (b *SelectBuilder) Limit(n int64) Builder {
	b.limit = &n
	return b
}

// Offset sets the row offset, bound as an argument.
func (b *SelectBuilder) Offset(n int64) Builder {
	b.offset = &n
	return b
}

// Build renders the statement and its arguments in placeholder order.
func (b *SelectBuilder) Build() (string, []any) {
	var sb strings.Builder
	args := append([]any(nil), b.args...)

	sb.WriteString("SELECT ")
	if len(b.columns) == 0 {
		sb.WriteString("*")
	} else {
		sb.WriteString(strings.Join(b.columns, ", "))
	}
	sb.WriteString(" FROM ")
	sb.WriteString(b.table)

	if len(b.where) == 1 {
		sb.WriteString(" WHERE ")
		sb.WriteString(b.where[0])
	} else if len(b.where) > 1 {
		sb.WriteString(" WHERE (")
		sb.WriteString(strings.Join(b.where, ") AND ("))
		sb.WriteString(")")
	}
	if len(b.groupBy) > 0 {
		sb.WriteString(" GROUP BY ")
		sb.WriteString(strings.Join(b.groupBy, ", "))
	}
	if len(b.orderBy) > 0 {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(b.orderBy, ", "))
	}
	if b.limit != nil {
		sb.WriteString(" LIMIT ?")
		args = append(args, *b.limit)
	}
	if b.offset != nil {
		sb.WriteString(" OFFSET ?")
		args = append(args, *b.offset)
	}

	return b.dialect.Rebind(sb.String(), 1), args
}
