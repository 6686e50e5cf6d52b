package duckdb

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Builder constructs SELECT queries with a fluent API.
type Builder struct {
	table      string
	columns    []string
	where      []whereClause
	orderBy    []orderClause
	limit      int
	timeColumn string
}

// whereClause represents a WHERE condition.
type whereClause struct {
	expr string
	args []any
}

// orderClause represents an ORDER BY clause.
type orderClause struct {
	column string
	desc   bool
}

// NewQueryBuilder creates a new query builder for the specified table.
func NewQueryBuilder(table string) *Builder {
	return &Builder{
		table:      table,
		timeColumn: "timestamp",
	}
}

// Select specifies the columns to retrieve.
func (b *Builder) Select(columns ...string) *Builder {
	b.columns = append(b.columns, columns...)
	return b
}

// TimeColumn sets the column used by TimeRange. Default is "timestamp".
func (b *Builder) TimeColumn(name string) *Builder {
	b.timeColumn = name
	return b
}

// TimeRange keeps rows whose time column lies in [start, end]. A zero bound
// is open.
func (b *Builder) TimeRange(start, end time.Time) *Builder {
	if !start.IsZero() {
		b.Where(b.timeColumn+" >= ?", start)
	}
	if !end.IsZero() {
		b.Where(b.timeColumn+" <= ?", end)
	}
	return b
}

// Where adds a custom WHERE clause with optional arguments.
// Multiple Where() calls are combined with AND.
func (b *Builder) Where(expr string, args ...any) *Builder {
	b.where = append(b.where, whereClause{
		expr: expr,
		args: args,
	})
	return b
}

// Eq adds an equality filter.
// If value is empty string, the filter is skipped (wildcard behavior).
func (b *Builder) Eq(column string, value any) *Builder {
	if str, ok := value.(string); ok && str == "" {
		return b
	}
	return b.Where(fmt.Sprintf("%s = ?", column), value)
}

// OrderBy adds ORDER BY clauses.
// Use "-" prefix for DESC order.
func (b *Builder) OrderBy(columns ...string) *Builder {
	for _, col := range columns {
		desc := false
		if strings.HasPrefix(col, "-") {
			desc = true
			col = col[1:]
		}
		b.orderBy = append(b.orderBy, orderClause{
			column: col,
			desc:   desc,
		})
	}
	return b
}

// Limit sets the maximum number of rows to return. Zero means no limit.
func (b *Builder) Limit(n int) *Builder {
	b.limit = n
	return b
}

// Build constructs the SQL query and returns the query string and arguments.
func (b *Builder) Build() (string, []any, error) {
	if b.table == "" {
		return "", nil, errors.New("table name is required")
	}

	var (
		query strings.Builder
		args  []any
	)

	query.WriteString("SELECT ")
	if len(b.columns) == 0 {
		query.WriteString("*")
	} else {
		query.WriteString(strings.Join(b.columns, ", "))
	}

	query.WriteString(" FROM ")
	query.WriteString(b.table)

	if len(b.where) > 0 {
		query.WriteString(" WHERE ")
		exprs := make([]string, len(b.where))
		for i, w := range b.where {
			exprs[i] = w.expr
			args = append(args, w.args...)
		}
		query.WriteString(strings.Join(exprs, " AND "))
	}

	if len(b.orderBy) > 0 {
		query.WriteString(" ORDER BY ")
		orderParts := make([]string, len(b.orderBy))
		for i, o := range b.orderBy {
			if o.desc {
				orderParts[i] = o.column + " DESC"
			} else {
				orderParts[i] = o.column
			}
		}
		query.WriteString(strings.Join(orderParts, ", "))
	}

	if b.limit > 0 {
		query.WriteString(" LIMIT ?")
		args = append(args, b.limit)
	}

	return query.String(), args, nil
}
