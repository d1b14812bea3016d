package transformer

import (
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// CoerceInt converts v to int64.
//
// Strings are trimmed and parsed in base 10; floats are accepted only when
// integral. On failure v is returned unchanged with ok=false, so a caller can
// keep the original value instead of dropping the row.
func CoerceInt(v any) (out any, ok bool) {
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int32:
		return int64(t), true
	case int64:
		return t, true
	case uint32:
		return int64(t), true
	case float64:
		if t == math.Trunc(t) && t >= math.MinInt64 && t < math.MaxInt64 {
			return int64(t), true
		}
	case decimal.Decimal:
		if t.IsInteger() {
			return t.IntPart(), true
		}
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64); err == nil {
			return n, true
		}
	}
	return v, false
}

// CoerceFloat converts v to float64. Same failure contract as CoerceInt.
func CoerceFloat(v any) (out any, ok bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case decimal.Decimal:
		return t.InexactFloat64(), true
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
			return f, true
		}
	}
	return v, false
}
