package db

import (
	"fmt"
	"strings"
)

// Query assembles a filtered, sorted and paginated SELECT with positional
// arguments. Clause fragments are joined with AND.
type Query struct {
	from    string
	cols    string
	where   []string
	args    []any
	orderBy string
}

// NewQuery starts a query over from (a table or join expression).
func NewQuery(from, cols string) *Query {
	return &Query{from: from, cols: cols}
}

// Arg binds v and returns its placeholder.
func (q *Query) Arg(v any) string {
	q.args = append(q.args, v)
	return fmt.Sprintf("$%d", len(q.args))
}

// Where appends a clause that already references its placeholders.
func (q *Query) Where(clause string) {
	q.where = append(q.where, clause)
}

// Sort sets ORDER BY from a whitelisted field name. Unknown or empty fields
// fall back to fallback. tiebreak is appended to keep paging stable.
func (q *Query) Sort(field string, asc bool, columns map[string]string, fallback, tiebreak string) {
	expr, ok := columns[field]
	if !ok {
		q.orderBy = fallback
	} else if asc {
		q.orderBy = expr + " ASC"
	} else {
		q.orderBy = expr + " DESC"
	}
	if tiebreak != "" {
		q.orderBy += ", " + tiebreak
	}
}

func (q *Query) whereSQL() string {
	if len(q.where) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(q.where, " AND ")
}

func (q *Query) CountSQL() string {
	return "SELECT COUNT(*) FROM " + q.from + q.whereSQL()
}

func (q *Query) CountArgs() []any { return q.args }

// DataSQL returns the row query with ORDER BY and LIMIT/OFFSET placeholders.
func (q *Query) DataSQL() string {
	sql := "SELECT " + q.cols + " FROM " + q.from + q.whereSQL()
	if q.orderBy != "" {
		sql += " ORDER BY " + q.orderBy
	}
	n := len(q.args)
	return sql + fmt.Sprintf(" LIMIT $%d OFFSET $%d", n+1, n+2)
}

func (q *Query) DataArgs(limit, offset int) []any {
	out := make([]any, len(q.args), len(q.args)+2)
	copy(out, q.args)
	return append(out, limit, offset)
}
