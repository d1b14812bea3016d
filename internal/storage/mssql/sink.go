package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"customeretl/internal/logger"
	"customeretl/internal/storage"
)

const (
	// SQL Server accepts at most 2100 parameters per request and 1000 rows
	// per table value constructor.
	maxParams       = 2099
	maxRowsPerValue = 1000
)

// Sink implements storage.Sink for Microsoft SQL Server.
//
// Tables are replaced inside one transaction:
//
//	IF OBJECT_ID(...) IS NOT NULL DROP TABLE ...
//	CREATE TABLE ...
//	INSERT ... VALUES (...), (...)   -- chunked below the parameter limit
//
// Timestamps are stored as DATETIME2 holding UTC wall time.
type Sink struct {
	db        dbConn
	batchSize int
}

func init() {
	storage.Register("mssql", New)
}

// New opens cfg.DSN with the "sqlserver" driver and validates connectivity
// via PingContext.
func New(ctx context.Context, cfg storage.Config) (storage.Sink, error) {
	raw, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := raw.PingContext(ctx); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("mssql: connect: %w", err)
	}
	return &Sink{db: &sqlDB{db: raw}, batchSize: cfg.BatchSize}, nil
}

// Close releases database resources held by this sink.
func (s *Sink) Close() {
	if s == nil || s.db == nil {
		return
	}
	_ = s.db.Close()
}

// ReplaceTable drops, recreates and fills spec.Name. On any error the
// transaction is rolled back and the previous table survives.
func (s *Sink) ReplaceTable(ctx context.Context, spec storage.TableSpec, rows [][]any) (int64, error) {
	if err := spec.Validate(); err != nil {
		return 0, err
	}
	if err := spec.CheckRows(rows); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx, buildDropSQL(spec.Name)); err != nil {
		return 0, fmt.Errorf("mssql: drop table %s: %w", spec.Name, err)
	}
	if _, err := tx.ExecContext(ctx, buildCreateSQL(spec)); err != nil {
		return 0, fmt.Errorf("mssql: create table %s: %w", spec.Name, err)
	}

	log := logger.FromContext(ctx)
	per := min(storage.RowsPerStatement(s.batchSize, maxParams, len(spec.Columns)), maxRowsPerValue)
	var written int64
	for _, chunk := range storage.Chunks(rows, per) {
		q, args := buildBulkInsertSQL(spec.Name, spec.ColumnNames(), chunk)
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return 0, fmt.Errorf("mssql: insert into %s: %w", spec.Name, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		written += n
		log.Debug().Str("table", spec.Name).Int("rows", len(chunk)).Int64("written", written).Msg("mssql: batch inserted")
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("mssql: commit %s: %w", spec.Name, err)
	}
	committed = true
	return written, nil
}

func (s *Sink) TableExists(ctx context.Context, name string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT CASE WHEN OBJECT_ID(@p1, N'U') IS NULL THEN 0 ELSE 1 END`, mssqlTableIdent(name)).Scan(&n)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ReadTable returns every row of spec.Name. Row order is whatever the server
// returns for an unordered scan.
func (s *Sink) ReadTable(ctx context.Context, spec storage.TableSpec) ([][]any, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	cols := make([]string, len(spec.Columns))
	for i, c := range spec.Columns {
		cols[i] = mssqlIdent(c.Name)
	}
	q := fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, ", "), mssqlTableIdent(spec.Name))

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out [][]any
	for rows.Next() {
		raw := make([]any, len(spec.Columns))
		ptrs := make([]any, len(raw))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row, err := storage.NormalizeRow(spec.Columns, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func mssqlType(t storage.ColumnType) string {
	switch t {
	case storage.TypeInteger:
		return "BIGINT"
	case storage.TypeFloat:
		return "FLOAT"
	case storage.TypeTimestamp:
		return "DATETIME2"
	default:
		return "NVARCHAR(MAX)"
	}
}

// mssqlColumnDef builds a SQL Server column definition from storage.ColumnSpec.
func mssqlColumnDef(c storage.ColumnSpec) string {
	def := mssqlIdent(c.Name) + " " + mssqlType(c.Type)
	if !c.Nullable {
		def += " NOT NULL"
	}
	return def
}

func buildCreateSQL(t storage.TableSpec) string {
	defs := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		defs[i] = mssqlColumnDef(c)
	}
	return fmt.Sprintf("CREATE TABLE %s (%s);", mssqlTableIdent(t.Name), strings.Join(defs, ", "))
}

// buildDropSQL drops tableName if present. SQL Server 2016+ has DROP TABLE IF
// EXISTS, but the OBJECT_ID guard works on every supported version.
func buildDropSQL(tableName string) string {
	return fmt.Sprintf(
		"IF OBJECT_ID(N'%s', N'U') IS NOT NULL DROP TABLE %s;",
		strings.ReplaceAll(mssqlTableIdent(tableName), "'", "''"),
		mssqlTableIdent(tableName),
	)
}

// buildBulkInsertSQL builds a single INSERT ... VALUES statement for all rows.
func buildBulkInsertSQL(table string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(mssqlTableIdent(table))
	b.WriteString(" (")

	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(mssqlIdent(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "@p%d", p)
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}

	return b.String(), args
}

// mssqlIdent returns a bracket-quoted identifier, escaping ']' as ']]'.
func mssqlIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// mssqlTableIdent returns a bracket-quoted identifier for schema-qualified names.
//
// Example:
//
//	"dbo.customers" -> [dbo].[customers]
func mssqlTableIdent(name string) string {
	schema, table := storage.SplitQualifiedName(name)
	if schema == "" {
		return mssqlIdent(table)
	}
	return mssqlIdent(schema) + "." + mssqlIdent(table)
}

// ---- database/sql seam types ----

// dbConn is a small interface over *sql.DB used to make this package testable.
type dbConn interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) rowScanner
	BeginTx(ctx context.Context, opts *sql.TxOptions) (txConn, error)
	Close() error
}

// txConn is a small interface over *sql.Tx.
type txConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	Commit() error
	Rollback() error
}

// rowScanner is a narrow adapter over *sql.Row.Scan.
type rowScanner interface {
	Scan(dest ...any) error
}

type sqlDB struct {
	db *sql.DB
}

func (s *sqlDB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, query, args...)
}

func (s *sqlDB) QueryRowContext(ctx context.Context, query string, args ...any) rowScanner {
	return s.db.QueryRowContext(ctx, query, args...)
}

func (s *sqlDB) BeginTx(ctx context.Context, opts *sql.TxOptions) (txConn, error) {
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

func (s *sqlDB) Close() error { return s.db.Close() }

var _ dbConn = (*sqlDB)(nil)
