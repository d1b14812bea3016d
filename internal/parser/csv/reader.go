// Package csv loads a delimited source file into a records.Set with
// canonical column names.
package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"customeretl/internal/transformer/builtin"
	"customeretl/pkg/records"
)

var (
	// ErrEmptySource is returned when the input has no header row.
	ErrEmptySource = errors.New("source has no header row")
	// ErrMalformed wraps tokenizer failures and rows wider than the header.
	ErrMalformed = errors.New("malformed csv")
)

// DefaultNAValues are the cell values read as missing (nil), matching what
// pandas treats as NA by default.
var DefaultNAValues = []string{
	"", "#N/A", "#N/A N/A", "#NA", "-1.#IND", "-1.#QNAN", "-NaN", "-nan",
	"1.#IND", "1.#QNAN", "<NA>", "N/A", "NA", "NULL", "NaN", "None", "n/a", "nan", "null",
}

// Options control tokenizing. The zero value reads comma separated input with
// strict quoting and DefaultNAValues.
type Options struct {
	Comma      rune
	LazyQuotes bool

	// TrimSpace trims leading and trailing whitespace from every cell
	// before the NA check.
	TrimSpace bool

	// NAValues replaces DefaultNAValues when non-nil. An empty, non-nil
	// slice disables NA detection except for truly empty cells.
	NAValues []string
}

// ReadFile opens path and reads it with Read.
func ReadFile(ctx context.Context, path string, opt Options) (records.Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return records.Set{}, fmt.Errorf("open source %s: %w", path, err)
	}
	defer f.Close()

	set, err := Read(ctx, f, opt)
	if err != nil {
		return records.Set{}, fmt.Errorf("read %s: %w", path, err)
	}
	return set, nil
}

// Read loads all of r.
//
// The first record is the header; it is cleaned with
// builtin.CanonicalHeaders, so "Account Created At" becomes
// "account_created_at" and duplicates get numeric suffixes. A leading byte
// order mark is dropped (UTF-16 input with a BOM is decoded).
//
// Edge cases:
//   - Blank lines are skipped.
//   - Rows shorter than the header are padded with nil.
//   - Rows longer than the header fail with ErrMalformed.
//   - Cells equal to an NA value become nil.
func Read(ctx context.Context, r io.Reader, opt Options) (records.Set, error) {
	src := transform.NewReader(r, unicode.BOMOverride(transform.Nop))

	cr := csv.NewReader(src)
	if opt.Comma != 0 {
		cr.Comma = opt.Comma
	}
	cr.LazyQuotes = opt.LazyQuotes
	cr.FieldsPerRecord = -1

	hdr, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return records.Set{}, ErrEmptySource
	}
	if err != nil {
		return records.Set{}, fmt.Errorf("%w: header: %v", ErrMalformed, err)
	}

	na := naSet(opt.NAValues)
	set := records.Set{Columns: builtin.CanonicalHeaders(hdr), RawColumns: append([]string(nil), hdr...)}

	for {
		if err := ctx.Err(); err != nil {
			return records.Set{}, err
		}

		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return records.Set{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}

		line, _ := cr.FieldPos(0)
		if len(rec) > len(set.Columns) {
			return records.Set{}, fmt.Errorf("%w: line %d: %d fields, header has %d",
				ErrMalformed, line, len(rec), len(set.Columns))
		}

		row := make(records.Record, len(set.Columns))
		for i, col := range set.Columns {
			if i >= len(rec) {
				row[col] = nil
				continue
			}
			v := rec[i]
			if opt.TrimSpace && hasEdgeSpace(v) {
				v = strings.TrimSpace(v)
			}
			if _, isNA := na[v]; isNA {
				row[col] = nil
			} else {
				row[col] = v
			}
		}
		set.Rows = append(set.Rows, row)
		set.Lines = append(set.Lines, line)
	}
	return set, nil
}

func naSet(values []string) map[string]struct{} {
	if values == nil {
		values = DefaultNAValues
	}
	m := make(map[string]struct{}, len(values)+1)
	m[""] = struct{}{}
	for _, v := range values {
		m[v] = struct{}{}
	}
	return m
}

// hasEdgeSpace reports whether s starts or ends with a space or tab. It is a
// cheap pre-check before calling strings.TrimSpace on every cell.
func hasEdgeSpace(s string) bool {
	if s == "" {
		return false
	}
	return s[0] == ' ' || s[len(s)-1] == ' ' || s[0] == '\t' || s[len(s)-1] == '\t'
}
