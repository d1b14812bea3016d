// Package records holds the in-memory shapes shared by the reader, the
// transformer and the pipeline.
package records

// Record is one source row keyed by canonical column name.
//
// Values are either string or nil. nil marks an empty cell or an NA token, so
// downstream parsers can tell "no value" apart from an empty string.
type Record map[string]any

// Set is a fully loaded table: the canonical header plus every row.
//
// Every Record in Rows carries a key for each entry in Columns.
type Set struct {
	Columns []string
	Rows    []Record

	// RawColumns is the header exactly as read, before cleaning.
	RawColumns []string

	// Lines holds the 1-based source line of each row, when known.
	Lines []int
}

// HasColumn reports whether name is one of the canonical columns.
func (s Set) HasColumn(name string) bool {
	for _, c := range s.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Line returns the source line for row i, or 0 if unknown.
func (s Set) Line(i int) int {
	if i < 0 || i >= len(s.Lines) {
		return 0
	}
	return s.Lines[i]
}
