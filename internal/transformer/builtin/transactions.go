package builtin

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// DefaultAmountText is used for a transaction without an "amount" field.
const DefaultAmountText = "€0,00"

// Transaction is one decoded element of a transactions cell. Raw is whatever
// the JSON decoder produced; well-formed rows hold a map[string]any.
type Transaction struct {
	Raw any
}

// Amount returns the textual amount of the transaction.
//
// A missing "amount" key yields DefaultAmountText with present=false. Non-text
// amounts are rendered the way Python's str() would (12.5 -> "12.5",
// null -> "None"), so they flow through ParseCurrencyAmount like any other
// text. A non-object element also reports present=false.
func (t Transaction) Amount() (text string, present bool) {
	m, ok := t.Raw.(map[string]any)
	if !ok {
		return DefaultAmountText, false
	}
	v, ok := m["amount"]
	if !ok {
		return DefaultAmountText, false
	}
	return pyStr(v), true
}

// ID returns the "id" field rendered as text, or "" when absent.
func (t Transaction) ID() string {
	m, ok := t.Raw.(map[string]any)
	if !ok || m["id"] == nil {
		return ""
	}
	return pyStr(m["id"])
}

// IsObject reports whether the element decoded to a JSON object.
func (t Transaction) IsObject() bool {
	_, ok := t.Raw.(map[string]any)
	return ok
}

// TransactionsResult is the outcome of ParseTransactions.
type TransactionsResult struct {
	Transactions []Transaction
	Status       Status
	// Input is the original cell text, kept for diagnostics.
	Input string
	Err   error
}

// A key followed by a Python or quoted null token. Bare words must end on a
// word boundary so "Nonexistent" survives.
var reNullToken = regexp.MustCompile(`:\s*(?:"None"|"Null"|(?:None|Null)\b)`)

// The non-finite constants Python's json module accepts.
var reNonFinite = regexp.MustCompile(`-Infinity\b|\bInfinity\b|\bNaN\b`)

// What Python's str() prints for each non-finite constant.
var nonFiniteText = map[string]string{"NaN": `"nan"`, "Infinity": `"inf"`, "-Infinity": `"-inf"`}

// ParseTransactions decodes a JSON-like list of transaction objects that may
// use single quotes and Python null tokens, e.g.
//
//	[{'id': 't1', 'amount': '€12,50'}, {'id': 't2', 'amount': None}]
//
// Repair is purely textual: every single quote becomes a double quote (an
// apostrophe inside a value therefore breaks the cell), then ": None",
// ": Null", ": \"None\"" and ": \"Null\"" become ": null". Bare NaN, Infinity
// and -Infinity become the strings "nan", "inf" and "-inf", which is how
// they read once rendered as text.
//
// Edge cases:
//   - Non-string input yields StatusEmpty with ErrNotString.
//   - "[]" parses to zero transactions with StatusParsed.
//   - Invalid JSON, trailing data, or a top-level value that is not an array
//     yields StatusUnparseable.
func ParseTransactions(v any) TransactionsResult {
	s, ok := v.(string)
	if !ok {
		return TransactionsResult{Status: StatusEmpty, Err: fmt.Errorf("%w: got %T", ErrNotString, v)}
	}

	items, err := decodeTransactions(RepairTransactionsText(s))
	if err != nil {
		return TransactionsResult{Status: StatusUnparseable, Input: s, Err: fmt.Errorf("%w: %v", ErrUnparseable, err)}
	}

	out := make([]Transaction, len(items))
	for i, it := range items {
		out[i] = Transaction{Raw: it}
	}
	return TransactionsResult{Transactions: out, Status: StatusParsed, Input: s}
}

// RepairTransactionsText applies the quote, null-token and non-finite fixes
// and trims surrounding whitespace.
func RepairTransactionsText(s string) string {
	s = strings.ReplaceAll(s, "'", `"`)
	s = reNullToken.ReplaceAllString(s, ": null")
	s = quoteNonFinite(s)
	return strings.TrimSpace(s)
}

// quoteNonFinite rewrites NaN/Infinity tokens outside double-quoted strings.
func quoteNonFinite(s string) string {
	if !reNonFinite.MatchString(s) {
		return s
	}
	repl := func(m string) string { return nonFiniteText[m] }

	var b strings.Builder
	b.Grow(len(s) + 8)
	segStart := 0
	for i := 0; i < len(s); i++ {
		if s[i] != '"' {
			continue
		}
		b.WriteString(reNonFinite.ReplaceAllStringFunc(s[segStart:i], repl))
		end := i + 1
		for end < len(s) && s[end] != '"' {
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
	b.WriteString(reNonFinite.ReplaceAllStringFunc(s[segStart:], repl))
	return b.String()
}

func decodeTransactions(s string) ([]any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after JSON value")
	}

	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("expected a list, got %s", jsonTypeName(raw))
	}
	return items, nil
}

func jsonTypeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number:
		return "number"
	}
	return fmt.Sprintf("%T", v)
}
