// Package storage defines the relational sink contract and the backend
// registry. Backends live in subpackages and register themselves in init.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Config is what a backend factory needs to open a sink.
//
// Edge cases:
//   - Kind must match a registered backend.
//   - DSN is handed to the driver verbatim; validation is backend-specific.
//   - BatchSize <= 0 selects DefaultBatchSize. Backends may lower it further
//     to respect statement parameter limits.
type Config struct {
	Kind      string
	DSN       string
	BatchSize int
}

// DefaultBatchSize is the number of rows per INSERT when Config.BatchSize is
// unset.
const DefaultBatchSize = 500

// Sink replaces and reads back whole tables.
type Sink interface {
	// ReplaceTable drops spec.Name if it exists, recreates it from spec and
	// inserts rows, all in one transaction. Rows must be aligned with
	// spec.Columns. It returns the number of rows written.
	ReplaceTable(ctx context.Context, spec TableSpec, rows [][]any) (int64, error)

	// TableExists reports whether a table called name exists.
	TableExists(ctx context.Context, name string) (bool, error)

	// ReadTable returns every row of spec.Name in spec.Columns order, with
	// values normalized by NormalizeValue.
	ReadTable(ctx context.Context, spec TableSpec) ([][]any, error)

	// Close releases connections. Call it once.
	Close()
}

// Factory opens a Sink for cfg. Factories verify connectivity before
// returning.
type Factory func(ctx context.Context, cfg Config) (Sink, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a backend available under kind (e.g. "sqlite").
//
// Panics:
//   - If kind is empty.
//   - If f is nil.
//   - If kind is already registered.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// New opens a Sink with the factory registered for cfg.Kind.
//
// Errors:
//   - cfg.Kind is empty or not registered (the message lists what is).
//   - Whatever the factory returns.
func New(ctx context.Context, cfg Config) (Sink, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("storage: unsupported kind %q (registered: %v)", cfg.Kind, Kinds())
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	return f(ctx, cfg)
}

// Kinds lists the registered backend kinds in sorted order.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()

	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// RowsPerStatement returns how many rows fit in one multi-row INSERT given
// the configured batch size and a driver limit on bound parameters
// (maxParams <= 0 means unlimited). The result is at least 1.
func RowsPerStatement(batchSize, maxParams, columns int) int {
	n := batchSize
	if n <= 0 {
		n = DefaultBatchSize
	}
	if maxParams > 0 && columns > 0 && n*columns > maxParams {
		n = maxParams / columns
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Chunks splits rows into consecutive slices of at most size rows.
func Chunks(rows [][]any, size int) [][][]any {
	if size < 1 {
		size = 1
	}
	out := make([][][]any, 0, (len(rows)+size-1)/size)
	for start := 0; start < len(rows); start += size {
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		out = append(out, rows[start:end])
	}
	return out
}
