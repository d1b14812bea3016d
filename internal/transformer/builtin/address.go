package builtin

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Status classifies the outcome of parsing one embedded cell.
type Status int

const (
	// StatusParsed means the cell held a usable value.
	StatusParsed Status = iota
	// StatusEmpty means there was nothing to parse: the cell was missing, not
	// text, or held a structure without the expected key.
	StatusEmpty
	// StatusUnparseable means the cell held text that could not be repaired
	// into a valid structure.
	StatusUnparseable
)

func (s Status) String() string {
	switch s {
	case StatusParsed:
		return "parsed"
	case StatusEmpty:
		return "empty"
	case StatusUnparseable:
		return "unparseable"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

var (
	// ErrUnparseable wraps every repair or literal evaluation failure.
	ErrUnparseable = errors.New("unparseable value")
	// ErrNotString is reported when a cell is not text (for example an empty
	// CSV cell).
	ErrNotString = errors.New("input is not a string")
)

// Address is the flattened form of the nested "address" mapping.
type Address struct {
	Street   string
	City     string
	PostCode string
	Country  string
}

// AddressResult is the outcome of ParseAddress. Address is the zero value
// unless Status is StatusParsed.
type AddressResult struct {
	Address Address
	Status  Status
	// Input is the original cell text, kept for diagnostics.
	Input string
	Err   error
}

var (
	reBareRange    = regexp.MustCompile(`\d+-\d+`)
	rePostCodeBare = regexp.MustCompile(`post code': (\d+-\d+)`)
)

// ParseAddress repairs and evaluates a Python-literal address cell such as
//
//	{'address': {'streeet': 'Rua X', 'city': 'Lisboa', 'post code': 1000-100, 'country': 'PT'}}
//
// and flattens the inner "address" mapping. The misspelled "streeet" key
// is what the upstream export actually emits.
//
// Edge cases:
//   - Non-string input (nil for empty cells) yields StatusEmpty with
//     ErrNotString.
//   - A literal that is not a mapping, or has no "address" key, yields
//     StatusEmpty.
//   - An "address" value that is not a mapping, or any repair/evaluation
//     failure, yields StatusUnparseable.
//   - Missing inner keys become ""; non-string inner values are rendered the
//     way Python's str() would (post codes are often bare integers).
func ParseAddress(v any) AddressResult {
	s, ok := v.(string)
	if !ok {
		return AddressResult{Status: StatusEmpty, Err: fmt.Errorf("%w: got %T", ErrNotString, v)}
	}

	lit, err := evalPyLiteral(RepairAddressText(s))
	if err != nil {
		return AddressResult{Status: StatusUnparseable, Input: s, Err: fmt.Errorf("%w: %v", ErrUnparseable, err)}
	}

	root, ok := lit.(map[string]any)
	if !ok {
		return AddressResult{Status: StatusEmpty, Input: s}
	}
	raw, ok := root["address"]
	if !ok {
		return AddressResult{Status: StatusEmpty, Input: s}
	}
	inner, ok := raw.(map[string]any)
	if !ok {
		return AddressResult{
			Status: StatusUnparseable,
			Input:  s,
			Err:    fmt.Errorf("%w: address is %s, not a mapping", ErrUnparseable, pyTypeName(raw)),
		}
	}

	return AddressResult{
		Address: Address{
			Street:   fieldString(inner, "streeet"),
			City:     fieldString(inner, "city"),
			PostCode: fieldString(inner, "post code"),
			Country:  fieldString(inner, "country"),
		},
		Status: StatusParsed,
		Input:  s,
	}
}

func fieldString(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	return pyStr(v)
}

// RepairAddressText applies the textual fixes needed before evaluation:
//  1. trim surrounding whitespace
//  2. quote bare digit-hyphen-digit tokens (1000-100 -> '1000-100'); tokens
//     inside string literals are left alone
//  3. append closing braces until '{' and '}' counts match
//  4. quote any "post code': N-N" value still left bare
//
// The result is not guaranteed to be a valid literal.
func RepairAddressText(s string) string {
	s = strings.TrimSpace(s)
	s = quoteBareRanges(s)
	if open, closed := strings.Count(s, "{"), strings.Count(s, "}"); open > closed {
		s += strings.Repeat("}", open-closed)
	}
	return rePostCodeBare.ReplaceAllString(s, `post code': '$1'`)
}

// quoteBareRanges wraps digit-hyphen-digit tokens that appear outside of
// string literals. An unterminated literal extends to the end of s.
func quoteBareRanges(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 8)

	segStart := 0
	for i := 0; i < len(s); i++ {
		q := s[i]
		if q != '\'' && q != '"' {
			continue
		}
		b.WriteString(reBareRange.ReplaceAllString(s[segStart:i], `'$0'`))

		end := i + 1
		for end < len(s) && s[end] != q {
			if s[end] == '\\' {
				end++
			}
			end++
		}
		if end >= len(s) {
			b.WriteString(s[i:])
			return b.String()
		}
		b.WriteString(s[i : end+1])
		i = end
		segStart = end + 1
	}
	b.WriteString(reBareRange.ReplaceAllString(s[segStart:], `'$0'`))
	return b.String()
}
