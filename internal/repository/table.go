package repository

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/deppfellow/backboneapi/internal/collection"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txKey struct{}

// TxFrom returns the transaction bound to ctx by WithinTx, if any.
func TxFrom(ctx context.Context) (pgx.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(pgx.Tx)
	return tx, ok
}

func querier(ctx context.Context, pool *pgxpool.Pool) Querier {
	if tx, ok := TxFrom(ctx); ok {
		return tx
	}
	return pool
}

// TableSource exposes one table as a collection.DataSource. Records are keyed
// by a bigint "id" column and returned ordered by it.
type TableSource struct {
	pool    *pgxpool.Pool
	table   string
	columns []string

	// where is an optional SQL condition applied to every statement, using
	// named arguments from whereArgs.
	where     string
	whereArgs pgx.NamedArgs
}

// TableOption customizes a TableSource.
type TableOption func(*TableSource)

// WithWhere restricts the rows the source can see, e.g.
//
//	WithWhere("status <> @hidden", pgx.NamedArgs{"hidden": "archived"})
func WithWhere(condition string, args pgx.NamedArgs) TableOption {
	return func(s *TableSource) {
		s.where = condition
		s.whereArgs = args
	}
}

// NewTableSource builds a source over table, selecting columns besides id.
func NewTableSource(pool *pgxpool.Pool, table string, columns []string, opts ...TableOption) *TableSource {
	s := &TableSource{
		pool:    pool,
		table:   table,
		columns: columns,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var (
	_ collection.DataSource    = (*TableSource)(nil)
	_ collection.Transactional = (*TableSource)(nil)
	_ collection.Windowed      = (*TableSource)(nil)
)

func (s *TableSource) selectList() string {
	cols := make([]string, 0, len(s.columns)+1)
	cols = append(cols, pgx.Identifier{collection.IDField}.Sanitize())
	for _, c := range s.columns {
		cols = append(cols, pgx.Identifier{c}.Sanitize())
	}
	return strings.Join(cols, ", ")
}

func (s *TableSource) conditions(byID bool) string {
	var conds []string
	if byID {
		conds = append(conds, "id = @id")
	}
	if s.where != "" {
		conds = append(conds, "("+s.where+")")
	}
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

func (s *TableSource) args(id int64, byID bool) pgx.NamedArgs {
	args := pgx.NamedArgs{}
	for k, v := range s.whereArgs {
		args[k] = v
	}
	if byID {
		args["id"] = id
	}
	return args
}

func (s *TableSource) selectSQL(byID bool) string {
	return fmt.Sprintf("SELECT %s FROM %s%s ORDER BY id",
		s.selectList(), pgx.Identifier{s.table}.Sanitize(), s.conditions(byID))
}

func (s *TableSource) windowSQL() string {
	return s.selectSQL(false) + " LIMIT @limit OFFSET @offset"
}

func (s *TableSource) deleteSQL() string {
	return fmt.Sprintf("DELETE FROM %s%s", pgx.Identifier{s.table}.Sanitize(), s.conditions(true))
}

// ParseID converts a route identifier. ok is false for anything that is not
// a positive integer.
func ParseID(id string) (int64, bool) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func (s *TableSource) query(ctx context.Context, sql string, args pgx.NamedArgs) ([]collection.Record, error) {
	rows, err := querier(ctx, s.pool).Query(ctx, sql, args)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", s.table, err)
	}

	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("failed to collect %s rows: %w", s.table, err)
	}

	records := make([]collection.Record, 0, len(maps))
	for _, m := range maps {
		records = append(records, toRecord(m))
	}
	return records, nil
}

func toRecord(row map[string]any) collection.Record {
	id := row[collection.IDField]
	delete(row, collection.IDField)
	return collection.Record{ID: id, Fields: row}
}

func (s *TableSource) FilterByID(ctx context.Context, id string) ([]collection.Record, error) {
	n, ok := ParseID(id)
	if !ok {
		return nil, nil
	}
	return s.query(ctx, s.selectSQL(true), s.args(n, true))
}

func (s *TableSource) All(ctx context.Context) ([]collection.Record, error) {
	return s.query(ctx, s.selectSQL(false), s.args(0, false))
}

// Window reads at most limit rows starting at offset, in id order.
func (s *TableSource) Window(ctx context.Context, offset, limit int) ([]collection.Record, error) {
	args := s.args(0, false)
	args["offset"] = offset
	args["limit"] = limit
	return s.query(ctx, s.windowSQL(), args)
}

func (s *TableSource) DeleteByID(ctx context.Context, id string) error {
	n, ok := ParseID(id)
	if !ok {
		return nil
	}
	if _, err := querier(ctx, s.pool).Exec(ctx, s.deleteSQL(), s.args(n, true)); err != nil {
		return fmt.Errorf("failed to delete from %s: %w", s.table, err)
	}
	return nil
}

// WithinTx runs fn in a transaction. Nested calls join the outer one.
func (s *TableSource) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := TxFrom(ctx); ok {
		return fn(ctx)
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}
