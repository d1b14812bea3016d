package builtin

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ErrBadAmount is returned when a currency string has no usable number.
var ErrBadAmount = errors.New("unparseable currency amount")

var (
	reCurrencySymbol = regexp.MustCompile(`[€$£¥]`)
	reNonNumeric     = regexp.MustCompile(`[^0-9.]`)
)

// ParseCurrencyAmount converts a free-form currency string to a number.
//
// Non-string input is not an error: it contributes 0. For strings the
// cleaning rules of CleanCurrencyText apply, and a result that is not a valid
// decimal yields 0 with ErrBadAmount.
//
//	"$50.25"    -> 50.25
//	"€100,50"   -> 100.50
//	"£1.234,56" -> 1234.56
//	"1,234"     -> 1234
func ParseCurrencyAmount(v any) (float64, error) {
	s, ok := v.(string)
	if !ok {
		return 0, nil
	}

	clean := CleanCurrencyText(s)
	if clean == "" {
		return 0, fmt.Errorf("%w: %q", ErrBadAmount, s)
	}
	f, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		var numErr *strconv.NumError
		if errors.As(err, &numErr) && numErr.Err == strconv.ErrRange {
			return f, nil
		}
		return 0, fmt.Errorf("%w: %q", ErrBadAmount, s)
	}
	return f, nil
}

// CleanCurrencyText reduces s to digits and dots, without validating the
// result:
//  1. drop currency symbols
//  2. if both ',' and '.' are present, '.' is a thousands separator: drop it
//     and turn ',' into '.'
//  3. with only ',', a single comma followed by at most two characters is a
//     decimal separator; otherwise commas are thousands separators and are
//     dropped
//  4. drop everything except digits and '.'
//
// Signs are dropped in step 4, so "-5" cleans to "5".
func CleanCurrencyText(s string) string {
	s = reCurrencySymbol.ReplaceAllString(s, "")

	hasComma, hasDot := strings.Contains(s, ","), strings.Contains(s, ".")
	switch {
	case hasComma && hasDot:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	case hasComma:
		parts := strings.Split(s, ",")
		if len(parts) == 2 && utf8.RuneCountInString(parts[1]) <= 2 {
			s = parts[0] + "." + parts[1]
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	}
	return reNonNumeric.ReplaceAllString(s, "")
}
