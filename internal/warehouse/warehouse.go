// Package warehouse mirrors the lake's output tables into a relational
// database so they can be queried with plain SQL. Backends register
// themselves by kind; import internal/warehouse/all to link every backend.
package warehouse

import (
	"context"
	"fmt"
	"sync"

	"github.com/SumanthReddy1234/datalakes/internal/model"
)

// DefaultBatchRows bounds the rows sent in one INSERT statement.
const DefaultBatchRows = 500

// Config selects and tunes a backend.
type Config struct {
	Kind string
	DSN  string
	// BatchRows <= 0 means DefaultBatchRows. Backends may lower it further
	// to stay under their bind-parameter limits.
	BatchRows int
}

// Repository is implemented by each backend.
type Repository interface {
	// Close releases connections. Call once.
	Close()

	// EnsureTables creates each table if it does not exist. Column types come
	// from the backend's mapping of model.ColumnType.
	EnsureTables(ctx context.Context, defs []model.TableDef) error

	// ReplaceRows deletes every row of def's table and inserts rows, inside a
	// single transaction. rows are in def.Columns order; nil is NULL.
	ReplaceRows(ctx context.Context, def model.TableDef, rows [][]any) (int64, error)
}

type factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register makes a backend available under kind. It panics if kind is empty,
// f is nil, or kind is already registered.
func Register(kind string, f factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("warehouse: Register called with empty kind")
	}
	if f == nil {
		panic("warehouse: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("warehouse: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// New opens the backend registered under cfg.Kind.
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("warehouse: missing kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("warehouse: unsupported kind=%s", cfg.Kind)
	}
	if cfg.BatchRows <= 0 {
		cfg.BatchRows = DefaultBatchRows
	}
	return f(ctx, cfg)
}

// Batches splits rows into consecutive chunks of at most n rows.
func Batches(rows [][]any, n int) [][][]any {
	if n <= 0 {
		n = DefaultBatchRows
	}
	out := make([][][]any, 0, (len(rows)+n-1)/n)
	for start := 0; start < len(rows); start += n {
		end := min(start+n, len(rows))
		out = append(out, rows[start:end])
	}
	return out
}

// RowsPerStatement returns how many rows of width cols fit under a
// bind-parameter limit, capped at batch.
func RowsPerStatement(batch, cols, paramLimit int) int {
	if cols <= 0 {
		return batch
	}
	n := paramLimit / cols
	if n < 1 {
		n = 1
	}
	if batch > 0 && batch < n {
		n = batch
	}
	return n
}
