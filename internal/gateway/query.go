package gateway

import (
	"context"
	"database/sql"
	"strings"

	"go-playbooks/internal/apperr"

	sq "github.com/Masterminds/squirrel"
)

// Query is a filtered, ordered read against one table (plus joins).
type Query struct {
	g       *Gateway
	table   string
	columns []string
	joins   []string
	where   sq.And
	orderBy []string
	limit   uint64
	offset  uint64
}

func (g *Gateway) From(table string, columns ...string) *Query {
	if len(columns) == 0 {
		columns = []string{"*"}
	}
	return &Query{g: g, table: table, columns: columns}
}

func (q *Query) Join(clause string) *Query {
	q.joins = append(q.joins, clause)
	return q
}

func (q *Query) Eq(col string, v any) *Query {
	q.where = append(q.where, sq.Eq{col: normalize(v)})
	return q
}

func (q *Query) Neq(col string, v any) *Query {
	q.where = append(q.where, sq.NotEq{col: normalize(v)})
	return q
}

func (q *Query) Gte(col string, v any) *Query {
	q.where = append(q.where, sq.GtOrEq{col: v})
	return q
}

func (q *Query) Lte(col string, v any) *Query {
	q.where = append(q.where, sq.LtOrEq{col: v})
	return q
}

// In matches col against a list; an empty list matches nothing.
func (q *Query) In(col string, values any) *Query {
	q.where = append(q.where, sq.Eq{col: normalize(values)})
	return q
}

// ILike matches a case-insensitive substring against any of the columns.
func (q *Query) ILike(text string, cols ...string) *Query {
	if text == "" || len(cols) == 0 {
		return q
	}
	pattern := "%" + escapeLike(text) + "%"
	or := make(sq.Or, len(cols))
	for i, col := range cols {
		or[i] = sq.ILike{col: pattern}
	}
	q.where = append(q.where, or)
	return q
}

// Overlaps matches rows whose array column shares at least one element.
func (q *Query) Overlaps(col string, values []string) *Query {
	if len(values) == 0 {
		return q
	}
	q.where = append(q.where, sq.Expr(col+" && ?", values))
	return q
}

func (q *Query) Where(expr string, args ...any) *Query {
	q.where = append(q.where, sq.Expr(expr, args...))
	return q
}

func (q *Query) Order(col string, ascending bool) *Query {
	dir := " DESC"
	if ascending {
		dir = " ASC"
	}
	q.orderBy = append(q.orderBy, col+dir)
	return q
}

func (q *Query) Limit(n uint64) *Query {
	q.limit = n
	return q
}

func (q *Query) Offset(n uint64) *Query {
	q.offset = n
	return q
}

func (q *Query) match(where Eq) *Query {
	if len(where) > 0 {
		q.where = append(q.where, sq.Eq(normalizeMap(where)))
	}
	return q
}

func (q *Query) builder(columns ...string) sq.SelectBuilder {
	b := q.g.sb.Select(columns...).From(q.table)
	for _, j := range q.joins {
		b = b.Join(j)
	}
	if len(q.where) > 0 {
		b = b.Where(q.where)
	}
	return b
}

func (q *Query) ToSQL() (string, []any, error) {
	b := q.builder(q.columns...)
	if len(q.orderBy) > 0 {
		b = b.OrderBy(q.orderBy...)
	}
	if q.limit > 0 {
		b = b.Limit(q.limit)
	}
	if q.offset > 0 {
		b = b.Offset(q.offset)
	}
	return b.ToSql()
}

func (q *Query) Rows(ctx context.Context) (*sql.Rows, error) {
	query, args, err := q.ToSQL()
	if err != nil {
		return nil, apperr.Downstream("build select", err)
	}
	return q.g.q.QueryContext(ctx, query, args...)
}

func (q *Query) Row(ctx context.Context) *Row {
	query, args, err := q.ToSQL()
	if err != nil {
		return &Row{err: apperr.Downstream("build select", err)}
	}
	return &Row{row: q.g.q.QueryRowContext(ctx, query, args...)}
}

// Count ignores ordering and paging.
func (q *Query) Count(ctx context.Context) (int, error) {
	query, args, err := q.builder("COUNT(*)").ToSql()
	if err != nil {
		return 0, apperr.Downstream("build count", err)
	}
	var n int
	if err := q.g.q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
