// Package gateway is a thin query layer over the relational store. It builds
// filtered reads and row-level writes with squirrel and maps driver errors to
// apperr kinds. It owns no state beyond the connection handle.
package gateway

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"go-playbooks/internal/apperr"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Eq is a set of column = value conditions joined with AND.
type Eq map[string]any

type Gateway struct {
	db *sql.DB
	q  querier
	sb sq.StatementBuilderType
}

func New(db *sql.DB) *Gateway {
	return &Gateway{
		db: db,
		q:  db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// DB exposes the underlying pool for health checks.
func (g *Gateway) DB() *sql.DB { return g.db }

// WithTx runs fn inside a transaction. A gateway that is already bound to a
// transaction runs fn directly.
func (g *Gateway) WithTx(ctx context.Context, fn func(tx *Gateway) error) error {
	if g.db == nil {
		return fn(g)
	}
	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Downstream("begin transaction", err)
	}
	if err := fn(&Gateway{q: tx, sb: g.sb}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperr.Downstream("commit transaction", err)
	}
	return nil
}

// Expr embeds a raw SQL fragment, e.g. as an update value.
func Expr(sql string, args ...any) sq.Sqlizer { return sq.Expr(sql, args...) }

func (g *Gateway) Insert(ctx context.Context, table string, values map[string]any) error {
	query, args, err := g.sb.Insert(table).SetMap(normalizeMap(values)).ToSql()
	if err != nil {
		return apperr.Downstream("build insert", err)
	}
	_, err = g.q.ExecContext(ctx, query, args...)
	return err
}

// InsertReturning inserts one row and scans the returning columns through
// the returned Row.
func (g *Gateway) InsertReturning(ctx context.Context, table string, values map[string]any, returning ...string) *Row {
	query, args, err := g.sb.Insert(table).
		SetMap(normalizeMap(values)).
		Suffix("RETURNING " + strings.Join(returning, ", ")).
		ToSql()
	if err != nil {
		return &Row{err: apperr.Downstream("build insert", err)}
	}
	return &Row{row: g.q.QueryRowContext(ctx, query, args...)}
}

// Upsert inserts a row, resolving conflicts on the given columns. With no
// update columns the conflict is ignored; the affected count is then 0.
func (g *Gateway) Upsert(ctx context.Context, table string, values map[string]any, conflict []string, update ...string) (int64, error) {
	suffix := "ON CONFLICT (" + strings.Join(conflict, ", ") + ") DO NOTHING"
	if len(update) > 0 {
		sets := make([]string, len(update))
		for i, col := range update {
			sets[i] = col + " = EXCLUDED." + col
		}
		suffix = "ON CONFLICT (" + strings.Join(conflict, ", ") + ") DO UPDATE SET " + strings.Join(sets, ", ")
	}
	query, args, err := g.sb.Insert(table).SetMap(normalizeMap(values)).Suffix(suffix).ToSql()
	if err != nil {
		return 0, apperr.Downstream("build upsert", err)
	}
	return g.exec(ctx, query, args)
}

func (g *Gateway) Update(ctx context.Context, table string, set map[string]any, where Eq) (int64, error) {
	query, args, err := g.sb.Update(table).SetMap(normalizeMap(set)).Where(sq.Eq(normalizeMap(where))).ToSql()
	if err != nil {
		return 0, apperr.Downstream("build update", err)
	}
	return g.exec(ctx, query, args)
}

func (g *Gateway) Delete(ctx context.Context, table string, where Eq) (int64, error) {
	query, args, err := g.sb.Delete(table).Where(sq.Eq(normalizeMap(where))).ToSql()
	if err != nil {
		return 0, apperr.Downstream("build delete", err)
	}
	return g.exec(ctx, query, args)
}

func (g *Gateway) Exists(ctx context.Context, table string, where Eq) (bool, error) {
	var one int
	err := g.From(table, "1").match(where).Limit(1).Row(ctx).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (g *Gateway) exec(ctx context.Context, query string, args []any) (int64, error) {
	res, err := g.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Row defers build errors until Scan, mirroring *sql.Row.
type Row struct {
	row *sql.Row
	err error
}

func (r *Row) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return r.row.Scan(dest...)
}

// Wrap maps a driver error to an apperr kind, naming the entity involved.
func Wrap(err error, entity string) error {
	if err == nil {
		return nil
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound(entity + " not found")
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return apperr.Validation(entity + " already exists")
		case "23503":
			return apperr.Validation(entity + " references a record that does not exist")
		case "23514":
			return apperr.Validation(entity + " has an invalid value")
		}
	}
	return apperr.Downstream(entity+" query failed", err)
}

func normalize(v any) any {
	switch t := v.(type) {
	case uuid.UUID:
		return t.String()
	case []uuid.UUID:
		out := make([]string, len(t))
		for i, id := range t {
			out[i] = id.String()
		}
		return out
	default:
		return v
	}
}

func normalizeMap[M ~map[string]any](m M) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalize(v)
	}
	return out
}
