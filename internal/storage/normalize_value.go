package storage

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// NormalizeValue converts a scanned database value to the canonical Go type
// for its logical column type, so rows read back from any backend compare
// equal to the rows that were written:
//
//	text      -> string
//	integer   -> int64
//	float     -> float64
//	timestamp -> time.Time in UTC
//
// nil stays nil. Drivers differ in what they hand back ([]byte vs string,
// int32 vs int64, float32), which is why this exists.
func NormalizeValue(c ColumnSpec, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if b, ok := v.([]byte); ok {
		v = string(b)
	}

	switch c.Type {
	case TypeText:
		if s, ok := v.(string); ok {
			return s, nil
		}
		return fmt.Sprint(v), nil

	case TypeInteger:
		switch t := v.(type) {
		case int64:
			return t, nil
		case int32:
			return int64(t), nil
		case int:
			return int64(t), nil
		case float64:
			if t == float64(int64(t)) {
				return int64(t), nil
			}
		case string:
			if n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64); err == nil {
				return n, nil
			}
		}

	case TypeFloat:
		switch t := v.(type) {
		case float64:
			return t, nil
		case float32:
			return float64(t), nil
		case int64:
			return float64(t), nil
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
				return f, nil
			}
		}

	case TypeTimestamp:
		if t, ok := v.(time.Time); ok {
			return t.UTC(), nil
		}
	}
	return nil, fmt.Errorf("storage: column %s (%s): cannot normalize %T %v", c.Name, c.Type, v, v)
}

// NormalizeRow applies NormalizeValue to every value of row.
func NormalizeRow(cols []ColumnSpec, row []any) ([]any, error) {
	if len(row) != len(cols) {
		return nil, fmt.Errorf("storage: row has %d values, want %d", len(row), len(cols))
	}
	out := make([]any, len(row))
	for i, c := range cols {
		v, err := NormalizeValue(c, row[i])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
