package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"customeretl/internal/logger"
	"customeretl/internal/storage"
)

/*
Sink implements storage.Sink for Postgres.

ReplaceTable runs DROP, CREATE and a COPY of every row inside a single
transaction, so readers see either the old table or the complete new one.
Timestamps are stored as TIMESTAMP (without time zone) holding UTC wall time.
*/
type Sink struct {
	pool *pgxpool.Pool
}

func init() {
	storage.Register("postgres", New)
}

// New creates a connection pool for cfg.DSN and verifies it with a ping.
func New(ctx context.Context, cfg storage.Config) (storage.Sink, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	return &Sink{pool: pool}, nil
}

// Close closes the connection pool.
func (s *Sink) Close() {
	s.pool.Close()
}

// txConn is the subset of pgx.Tx used by replaceTx. Tests substitute a fake.
type txConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// ReplaceTable drops, recreates and fills spec.Name.
func (s *Sink) ReplaceTable(ctx context.Context, spec storage.TableSpec, rows [][]any) (int64, error) {
	if err := spec.Validate(); err != nil {
		return 0, err
	}
	if err := spec.CheckRows(rows); err != nil {
		return 0, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	n, err := replaceTx(ctx, tx, spec, rows)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("postgres: commit %s: %w", spec.Name, err)
	}
	return n, nil
}

func replaceTx(ctx context.Context, tx txConn, spec storage.TableSpec, rows [][]any) (int64, error) {
	schemaSQL, dropSQL, createSQL := buildReplaceSQL(spec)
	if schemaSQL != "" {
		if _, err := tx.Exec(ctx, schemaSQL); err != nil {
			return 0, fmt.Errorf("postgres: create schema for %s: %w", spec.Name, err)
		}
	}
	if _, err := tx.Exec(ctx, dropSQL); err != nil {
		return 0, fmt.Errorf("postgres: drop table %s: %w", spec.Name, err)
	}
	if _, err := tx.Exec(ctx, createSQL); err != nil {
		return 0, fmt.Errorf("postgres: create table %s: %w", spec.Name, err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	n, err := tx.CopyFrom(ctx, tableIdentifier(spec.Name), spec.ColumnNames(), pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("postgres: copy into %s: %w", spec.Name, err)
	}
	log := logger.FromContext(ctx)
	log.Debug().Str("table", spec.Name).Int64("rows", n).Msg("postgres: copy done")
	return n, nil
}

func (s *Sink) TableExists(ctx context.Context, name string) (bool, error) {
	var ok bool
	if err := s.pool.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, pgTableIdent(name)).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

// ReadTable returns every row of spec.Name. Postgres heap order matches
// insertion order for a freshly copied table that has seen no updates.
func (s *Sink) ReadTable(ctx context.Context, spec storage.TableSpec) ([][]any, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	q := fmt.Sprintf("SELECT %s FROM %s", joinIdentList(spec.ColumnNames()), pgTableIdent(spec.Name))
	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out [][]any
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row, err := storage.NormalizeRow(spec.Columns, vals)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func pgIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

// pgTableIdent quotes a possibly schema-qualified table name.
func pgTableIdent(name string) string {
	schema, table := storage.SplitQualifiedName(name)
	if schema == "" {
		return pgIdent(table)
	}
	return pgIdent(schema) + "." + pgIdent(table)
}

func tableIdentifier(name string) pgx.Identifier {
	schema, table := storage.SplitQualifiedName(name)
	if schema == "" {
		return pgx.Identifier{table}
	}
	return pgx.Identifier{schema, table}
}

func joinIdentList(columns []string) string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = pgIdent(c)
	}
	return strings.Join(out, ", ")
}

func pgType(t storage.ColumnType) string {
	switch t {
	case storage.TypeInteger:
		return "BIGINT"
	case storage.TypeFloat:
		return "DOUBLE PRECISION"
	case storage.TypeTimestamp:
		return "TIMESTAMP"
	default:
		return "TEXT"
	}
}

func buildColumnDef(c storage.ColumnSpec) string {
	def := pgIdent(c.Name) + " " + pgType(c.Type)
	if !c.Nullable {
		def += " NOT NULL"
	}
	return def
}

// buildReplaceSQL builds the DDL for a full table replace. schemaSQL is empty
// for unqualified names.
func buildReplaceSQL(t storage.TableSpec) (schemaSQL, dropSQL, createSQL string) {
	if schema, _ := storage.SplitQualifiedName(t.Name); schema != "" {
		schemaSQL = fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s;`, pgIdent(schema))
	}
	dropSQL = fmt.Sprintf(`DROP TABLE IF EXISTS %s;`, pgTableIdent(t.Name))

	cols := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = buildColumnDef(c)
	}
	createSQL = fmt.Sprintf(`CREATE TABLE %s (%s);`, pgTableIdent(t.Name), strings.Join(cols, ", "))
	return
}
