// The table description lives here so the pipeline and every backend can
// import it without cycles.

package storage

import (
	"fmt"
	"strings"
)

// ColumnType is a logical column type. Each backend maps it to a native one.
type ColumnType string

const (
	TypeText      ColumnType = "text"
	TypeInteger   ColumnType = "integer"
	TypeFloat     ColumnType = "float"
	TypeTimestamp ColumnType = "timestamp"
)

// TableSpec describes a table to (re)create.
type TableSpec struct {
	// Name may be schema-qualified ("reporting.customers") on backends that
	// support schemas.
	Name    string
	Columns []ColumnSpec
}

// ColumnSpec is a single column.
type ColumnSpec struct {
	Name     string
	Type     ColumnType
	Nullable bool
}

// ColumnNames returns the column names in order.
func (t TableSpec) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// Validate checks that t can be turned into DDL: a name, at least one
// column, unique non-empty column names and known types.
func (t TableSpec) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("storage: table name is empty")
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("storage: table %s: no columns", t.Name)
	}
	seen := make(map[string]struct{}, len(t.Columns))
	for i, c := range t.Columns {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("storage: table %s: column %d has no name", t.Name, i)
		}
		key := strings.ToLower(c.Name)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("storage: table %s: duplicate column %q", t.Name, c.Name)
		}
		seen[key] = struct{}{}

		switch c.Type {
		case TypeText, TypeInteger, TypeFloat, TypeTimestamp:
		default:
			return fmt.Errorf("storage: table %s: column %s: unknown type %q", t.Name, c.Name, c.Type)
		}
	}
	return nil
}

// CheckRows verifies every row has one value per column and that NOT NULL
// columns carry a value.
func (t TableSpec) CheckRows(rows [][]any) error {
	for i, row := range rows {
		if len(row) != len(t.Columns) {
			return fmt.Errorf("storage: table %s: row %d has %d values, want %d", t.Name, i, len(row), len(t.Columns))
		}
		for j, c := range t.Columns {
			if !c.Nullable && row[j] == nil {
				return fmt.Errorf("storage: table %s: row %d: column %s is NOT NULL", t.Name, i, c.Name)
			}
		}
	}
	return nil
}

// SplitQualifiedName splits "schema.table" into its parts.
//
//	"public.customers" => ("public", "customers")
//	"customers"        => ("", "customers")
//
// Names with more than one dot are treated as unqualified.
func SplitQualifiedName(name string) (schema, table string) {
	name = strings.TrimSpace(name)
	parts := strings.Split(name, ".")
	if len(parts) != 2 {
		return "", name
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
}
