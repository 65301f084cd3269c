package warehouse

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/SumanthReddy1234/datalakes/internal/model"
)

// Logger is satisfied by *log.Logger.
type Logger interface {
	Printf(format string, v ...any)
}

// Table is one output table ready to mirror.
type Table struct {
	Def  model.TableDef
	Rows []model.Row
}

// Mirror copies tables into repo: all tables are created first, then each
// is replaced in order. It returns the inserted row count per table name.
// A failure on one table stops the mirror; tables replaced before it keep
// their new contents.
func Mirror(ctx context.Context, repo Repository, tables []Table, logger Logger) (map[string]int64, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	defs := make([]model.TableDef, len(tables))
	for i, t := range tables {
		defs[i] = t.Def
	}

	start := time.Now()
	if err := repo.EnsureTables(ctx, defs); err != nil {
		logger.Printf("stage=warehouse_ddl error=%q duration=%s", err, time.Since(start).Truncate(time.Millisecond))
		return nil, fmt.Errorf("warehouse: ensure tables: %w", err)
	}

	out := make(map[string]int64, len(tables))
	for _, t := range tables {
		tStart := time.Now()
		rows := make([][]any, len(t.Rows))
		for i, r := range t.Rows {
			rows[i] = r.Values()
		}

		n, err := repo.ReplaceRows(ctx, t.Def, rows)
		if err != nil {
			logger.Printf("stage=warehouse table=%s error=%q", t.Def.Name, err)
			return out, fmt.Errorf("warehouse: replace %s: %w", t.Def.Name, err)
		}
		out[t.Def.Name] = n
		logger.Printf("stage=warehouse ok table=%s rows=%d duration=%s", t.Def.Name, n, time.Since(tStart).Truncate(time.Millisecond))
	}
	return out, nil
}
