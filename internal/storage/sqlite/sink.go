package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"customeretl/internal/logger"
	"customeretl/internal/storage"
)

// maxParams is SQLITE_MAX_VARIABLE_NUMBER for the bundled SQLite (>= 3.32).
const maxParams = 32766

// Sink implements storage.Sink for SQLite.
//
// SQLite has no native timestamp type; timestamps are written as
// RFC3339Nano TEXT in UTC and parsed back on read, which round-trips
// exactly with modernc.org/sqlite.
type Sink struct {
	db        *sql.DB
	batchSize int
}

func init() {
	storage.Register("sqlite", New)
}

// New opens (creating if needed) the database at cfg.DSN and pings it.
//
// Edge cases:
//   - ":memory:" opens a private in-memory database.
//   - The parent directory of a file path is created on demand.
//   - The pool is limited to one connection: SQLite allows a single writer
//     and every in-memory connection would otherwise be its own database.
func New(ctx context.Context, cfg storage.Config) (storage.Sink, error) {
	if err := ensureParentDir(cfg.DSN); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: connect %s: %w", cfg.DSN, err)
	}
	return &Sink{db: db, batchSize: cfg.BatchSize}, nil
}

func ensureParentDir(dsn string) error {
	if dsn == "" || dsn == ":memory:" || strings.HasPrefix(dsn, "file:") {
		return nil
	}
	path, _, _ := strings.Cut(dsn, "?")
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("sqlite: create directory %s: %w", dir, err)
	}
	return nil
}

func (s *Sink) Close() { _ = s.db.Close() }

// ReplaceTable drops, recreates and fills spec.Name in one transaction. A
// failure leaves the previous table untouched.
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
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+sqlIdent(spec.Name)); err != nil {
		return 0, fmt.Errorf("sqlite: drop table %s: %w", spec.Name, err)
	}
	if _, err := tx.ExecContext(ctx, buildCreateTableSQL(spec)); err != nil {
		return 0, fmt.Errorf("sqlite: create table %s: %w", spec.Name, err)
	}

	log := logger.FromContext(ctx)
	per := storage.RowsPerStatement(s.batchSize, maxParams, len(spec.Columns))
	var written int64
	for _, chunk := range storage.Chunks(rows, per) {
		q, args := buildInsertSQL(spec, chunk)
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return 0, fmt.Errorf("sqlite: insert into %s: %w", spec.Name, err)
		}
		n, _ := res.RowsAffected()
		written += n
		log.Debug().Str("table", spec.Name).Int("rows", len(chunk)).Int64("written", written).Msg("sqlite: batch inserted")
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: commit %s: %w", spec.Name, err)
	}
	return written, nil
}

func (s *Sink) TableExists(ctx context.Context, name string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ReadTable returns all rows in insertion (rowid) order.
func (s *Sink) ReadTable(ctx context.Context, spec storage.TableSpec) ([][]any, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	q := fmt.Sprintf("SELECT %s FROM %s ORDER BY rowid", joinIdentList(spec.ColumnNames()), sqlIdent(spec.Name))
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
		for i, c := range spec.Columns {
			if c.Type != storage.TypeTimestamp || raw[i] == nil {
				continue
			}
			if ts, ok := raw[i].(string); ok {
				t, err := parseSQLiteTime(ts)
				if err != nil {
					return nil, fmt.Errorf("sqlite: %s.%s: %w", spec.Name, c.Name, err)
				}
				raw[i] = t
			}
		}
		row, err := storage.NormalizeRow(spec.Columns, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func sqlIdent(id string) string {
	// SQLite supports "quoted identifiers"
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func joinIdentList(columns []string) string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = sqlIdent(c)
	}
	return strings.Join(out, ", ")
}

func sqliteType(t storage.ColumnType) string {
	switch t {
	case storage.TypeInteger:
		return "INTEGER"
	case storage.TypeFloat:
		return "REAL"
	default:
		// text and timestamp (RFC3339Nano)
		return "TEXT"
	}
}

func buildCreateTableSQL(t storage.TableSpec) string {
	parts := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		col := sqlIdent(c.Name) + " " + sqliteType(c.Type)
		if !c.Nullable {
			col += " NOT NULL"
		}
		parts = append(parts, col)
	}
	return fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", sqlIdent(t.Name), strings.Join(parts, ",\n  "))
}

// buildInsertSQL renders one multi-row INSERT for rows. time.Time values are
// bound as RFC3339Nano text.
func buildInsertSQL(t storage.TableSpec, rows [][]any) (string, []any) {
	placeholders := "(" + strings.TrimRight(strings.Repeat("?,", len(t.Columns)), ",") + ")"

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(sqlIdent(t.Name))
	b.WriteString(" (")
	b.WriteString(joinIdentList(t.ColumnNames()))
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(t.Columns))
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(placeholders)
		for _, v := range row {
			if ts, ok := v.(time.Time); ok {
				v = formatSQLiteTime(ts)
			}
			args = append(args, v)
		}
	}
	return b.String(), args
}

// formatSQLiteTime formats a time as RFC3339Nano in UTC.
func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseSQLiteTime parses timestamps returned by SQLite into time.Time.
//
// Supported formats:
//   - RFC3339Nano (what we write)
//   - RFC3339
//   - Common "SQLite-like" formats used by other tools/libs:
//     "2006-01-02 15:04:05Z07:00"
//     "2006-01-02 15:04:05.999999999Z07:00"
//     "2006-01-02 15:04:05.999999" (interpreted as UTC)
func parseSQLiteTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time string")
	}

	for _, layout := range []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05Z07:00",
		"2006-01-02 15:04:05.999999999Z07:00",
	} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	if ts, err := time.ParseInLocation("2006-01-02 15:04:05.999999", s, time.UTC); err == nil {
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("unsupported time format: %q", s)
}
