// Package pipeline drives one lakeetl run: the catalog flow, then the event
// flow, then the optional warehouse mirror.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/SumanthReddy1234/datalakes/internal/config"
	"github.com/SumanthReddy1234/datalakes/internal/lake"
	"github.com/SumanthReddy1234/datalakes/internal/metrics"
	"github.com/SumanthReddy1234/datalakes/internal/model"
	parserjson "github.com/SumanthReddy1234/datalakes/internal/parser/json"
	"github.com/SumanthReddy1234/datalakes/internal/warehouse"
)

// Logger is the minimal logging interface used by the pipeline.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

// Runner executes one job against a resolved config.
type Runner struct {
	Logger  Logger
	Verbose bool

	// Seams. Defaults are lake.NewSession and warehouse.New.
	NewSession   func(ctx context.Context, cfg lake.Config) (*lake.Session, error)
	NewWarehouse func(ctx context.Context, cfg warehouse.Config) (warehouse.Repository, error)
}

// NewDefaultRunner wires the real session and warehouse constructors.
func NewDefaultRunner(logger Logger, verbose bool) *Runner {
	return &Runner{
		Logger:       logger,
		Verbose:      verbose,
		NewSession:   lake.NewSession,
		NewWarehouse: warehouse.New,
	}
}

// TableResult is one written table.
type TableResult struct {
	Name     string
	Location string
	lake.WriteStats
}

// Result summarizes a finished run.
type Result struct {
	RunID     string
	Tables    []TableResult
	Catalog   int
	Events    int
	Playback  int
	Malformed int
	Join      JoinSummary
	Warehouse map[string]int64
}

// JoinSummary mirrors transform.JoinStats for callers that only import pipeline.
type JoinSummary struct {
	Events, Matched, Dropped, Rows int
}

// run is the state of one Run call.
type run struct {
	r      *Runner
	cfg    config.Config
	sess   *lake.Session
	logf   func(format string, v ...any)
	res    Result
	mirror []warehouse.Table
}

// Run executes the whole job against cfg. Steps run strictly in order; the
// first failure stops the run and leaves tables already written in place.
func (r *Runner) Run(ctx context.Context, cfg config.Config) (*Result, error) {
	logger := r.Logger
	if logger == nil {
		logger = log.New(discardWriter{}, "", 0)
	}
	newSession := r.NewSession
	if newSession == nil {
		newSession = lake.NewSession
	}

	start := time.Now()
	sess, err := newSession(ctx, lake.Config{
		Input:              cfg.Source.Base,
		Output:             cfg.Output.Base,
		Credentials:        cfg.Credentials,
		Region:             cfg.Storage.Region,
		Endpoint:           cfg.Storage.Endpoint,
		PathStyle:          cfg.Storage.PathStyle,
		ReadWorkers:        cfg.Runtime.ReadWorkers,
		WriteWorkers:       cfg.Runtime.WriteWorkers,
		Compression:        cfg.Output.Compression,
		ParquetParallelism: cfg.Runtime.ParquetParallelism,
		TempDir:            cfg.Runtime.TempDir,
		Logger:             logger,
		Verbose:            r.Verbose || cfg.Runtime.Verbose,
	})
	metrics.RecordStep("session", start, err)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			logger.Printf("stage=session_close error=%q", cerr)
		}
	}()

	st := &run{r: r, cfg: cfg, sess: sess, logf: logger.Printf}
	st.res.RunID = sess.RunID

	catalog, err := st.catalogFlow(ctx)
	if err != nil {
		return &st.res, err
	}
	if err := st.eventFlow(ctx, catalog); err != nil {
		return &st.res, err
	}
	if cfg.Warehouse.Kind != "" {
		if err := st.mirrorWarehouse(ctx); err != nil {
			return &st.res, err
		}
	}

	logger.Printf("stage=run ok run_id=%s tables=%d duration=%s", sess.RunID, len(st.res.Tables), durMS(start))
	return &st.res, nil
}

func (st *run) verbosef(format string, v ...any) {
	if st.r.Verbose || st.cfg.Runtime.Verbose {
		st.logf(format, v...)
	}
}

func (st *run) loadOptions(fields map[string]string) lake.LoadOptions {
	return lake.LoadOptions{
		Parser: parserjson.Options{
			HeaderMap:          model.HeaderMap(fields),
			ArrayJoinSeparator: st.cfg.Source.ArrayJoinSeparator,
		},
		Encoding: st.cfg.Source.Encoding,
		OnParseErr: func(source string, line int, err error) {
			st.verbosef("stage=parse skip source=%s line=%d error=%q", source, line, err)
		},
	}
}

// step times fn, records its metrics, and logs one stage line.
func (st *run) step(name string, fn func() (string, error)) error {
	start := time.Now()
	detail, err := fn()
	metrics.RecordStep(name, start, err)
	if err != nil {
		st.logf("stage=%s error=%q duration=%s", name, err, durMS(start))
		return fmt.Errorf("%s: %w", name, err)
	}
	if detail != "" {
		detail += " "
	}
	st.logf("stage=%s ok %sduration=%s", name, detail, durMS(start))
	return nil
}

// writeTable overwrites one output table and keeps it for the mirror.
func (st *run) writeTable(ctx context.Context, def model.TableDef, rs []model.Row) error {
	return st.step(def.Name, func() (string, error) {
		st.verbosef("stage=schema table=%s %s", def.Name, SchemaString(def))
		ws, err := st.sess.WriteTable(ctx, lake.TableWrite{Def: def, Rows: rs})
		if err != nil {
			return "", err
		}
		st.res.Tables = append(st.res.Tables, TableResult{Name: def.Name, Location: st.sess.Out.URI(def.Name), WriteStats: ws})
		metrics.RecordTableRows(def.Name, ws.Rows)
		if st.cfg.Warehouse.Kind != "" {
			st.mirror = append(st.mirror, warehouse.Table{Def: def, Rows: rs})
		}
		return fmt.Sprintf("rows=%d partitions=%d files=%d", ws.Rows, ws.Partitions, ws.Files), nil
	})
}

func (st *run) mirrorWarehouse(ctx context.Context) error {
	return st.step("warehouse", func() (string, error) {
		newRepo := st.r.NewWarehouse
		if newRepo == nil {
			newRepo = warehouse.New
		}
		repo, err := newRepo(ctx, warehouse.Config{
			Kind:      st.cfg.Warehouse.Kind,
			DSN:       st.cfg.Warehouse.DSN,
			BatchRows: st.cfg.Warehouse.BatchRows,
		})
		if err != nil {
			return "", err
		}
		defer repo.Close()

		counts, err := warehouse.Mirror(ctx, repo, st.mirror, logAdapter(st.verbosef))
		st.res.Warehouse = counts
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("kind=%s tables=%d", st.cfg.Warehouse.Kind, len(counts)), nil
	})
}

// asRows widens a typed row slice to the table writer's interface.
func asRows[T model.Row](in []T) []model.Row {
	out := make([]model.Row, len(in))
	for i, r := range in {
		out[i] = r
	}
	return out
}

type logAdapter func(format string, v ...any)

func (f logAdapter) Printf(format string, v ...any) { f(format, v...) }

func durMS(start time.Time) time.Duration { return time.Since(start).Truncate(time.Millisecond) }

type discardWriter struct{}

func (discardWriter) Write(p []byte) (n int, err error) { return len(p), nil }
