// Command lakeetl builds the songplays star schema from raw song catalog and
// event log JSON, writing Hive-partitioned Parquet tables.
//
//	lakeetl [run] [flags]      run the job (default)
//	lakeetl validate [flags]   check the resolved configuration
//	lakeetl probe [flags]      sample a source glob and print its schema
//	lakeetl query SQL          run SQL over the written tables
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/SumanthReddy1234/datalakes/internal/config"
	"github.com/SumanthReddy1234/datalakes/internal/lakequery"
	"github.com/SumanthReddy1234/datalakes/internal/model"
	"github.com/SumanthReddy1234/datalakes/internal/objstore"
	"github.com/SumanthReddy1234/datalakes/internal/pipeline"
	"github.com/SumanthReddy1234/datalakes/internal/probe"

	// register every warehouse backend; config picks one.
	_ "github.com/SumanthReddy1234/datalakes/internal/warehouse/all"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

// flagKeys maps command-line flags onto config keys.
var flagKeys = map[string]string{
	"input":             "source.base",
	"catalog":           "source.catalog_glob",
	"events":            "source.events_glob",
	"output":            "output.base",
	"warehouse-kind":    "warehouse.kind",
	"warehouse-dsn":     "warehouse.dsn",
	"metrics-backend":   "metrics.backend",
	"dedupe-dimensions": "runtime.dedupe_dimensions",
	"preview":           "runtime.preview",
	"verbose":           "runtime.verbose",
}

type runner interface {
	Run(ctx context.Context, cfg config.Config) (*pipeline.Result, error)
}

type querier interface {
	Preview(ctx context.Context, table string, n int) (*lakequery.Result, error)
	Query(ctx context.Context, q string) (*lakequery.Result, error)
	Close() error
}

// appDeps are the side-effecting collaborators of runMain.
type appDeps struct {
	newRunner   func(logger pipeline.Logger, verbose bool) runner
	initMetrics func(ctx context.Context, jobName string, m config.Metrics) (func(), error)
	openStore   func(ctx context.Context, cfg objstore.Config) (objstore.Store, error)
	openQuery   func(ctx context.Context, cfg lakequery.Config) (querier, error)
}

func defaultDeps() appDeps {
	return appDeps{
		newRunner: func(logger pipeline.Logger, verbose bool) runner {
			return pipeline.NewDefaultRunner(logger, verbose)
		},
		initMetrics: initMetrics,
		openStore:   objstore.New,
		openQuery: func(ctx context.Context, cfg lakequery.Config) (querier, error) {
			return lakequery.Open(ctx, cfg)
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := runMain(ctx, os.Args[1:], os.Stdout, os.Stderr, defaultDeps())
	stop()
	os.Exit(code)
}

// usageError marks failures caused by bad arguments.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

// runMain executes the CLI and returns the process exit code.
func runMain(ctx context.Context, args []string, stdout, stderr io.Writer, deps appDeps) int {
	root := newRootCmd(stdout, stderr, deps)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	fmt.Fprintf(stderr, "lakeetl: %v\n", err)
	var ue usageError
	if errors.As(err, &ue) {
		fmt.Fprintln(stderr, "usage: lakeetl [run|validate|probe|query] [flags]; see lakeetl --help")
		return exitUsage
	}
	return exitFailure
}

type app struct {
	stdout, stderr io.Writer
	deps           appDeps
	configPath     string
	logger         *log.Logger
}

func newRootCmd(stdout, stderr io.Writer, deps appDeps) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr, deps: deps, logger: log.New(stderr, "", log.LstdFlags)}

	root := &cobra.Command{
		Use:           "lakeetl",
		Short:         "Build the songplays star schema as partitioned Parquet",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          noArgs,
		RunE:          a.runJob,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error { return usageError{err} })

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "YAML config path (default $LAKE_CONFIG)")
	pf.String("input", "", "source base location (s3a://bucket/, ./data)")
	pf.String("catalog", "", "song catalog glob under the input")
	pf.String("events", "", "event log glob under the input")
	pf.String("output", "", "output lake location")
	pf.String("warehouse-kind", "", "mirror tables into postgres|sqlite|mssql")
	pf.String("warehouse-dsn", "", "warehouse connection string")
	pf.String("metrics-backend", "", "none|pushgateway|datadog")
	pf.Bool("dedupe-dimensions", false, "drop duplicate artists and users rows")
	pf.Int("preview", 0, "print up to N sample rows per table after the run")
	pf.BoolP("verbose", "v", false, "enable verbose logs")

	run := &cobra.Command{
		Use:   "run",
		Short: "Run the ETL job",
		Args:  noArgs,
		RunE:  a.runJob,
	}
	validate := &cobra.Command{
		Use:   "validate",
		Short: "Validate the resolved configuration and exit",
		Args:  noArgs,
		RunE:  a.runValidate,
	}
	probeCmd := &cobra.Command{
		Use:   "probe [catalog|events]",
		Short: "Sample source records and print the inferred schema",
		Args:  maxArgs(1),
		RunE:  a.runProbe,
	}
	probeCmd.Flags().String("pattern", "", "glob to sample (overrides the catalog/events glob)")
	probeCmd.Flags().Int("max-records", probe.DefaultMaxRecords, "records to sample")
	query := &cobra.Command{
		Use:   "query SQL",
		Short: "Run SQL over the written tables",
		Args:  exactArgs(1),
		RunE:  a.runQuery,
	}

	root.AddCommand(run, validate, probeCmd, query)
	return root
}

func noArgs(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return usageError{fmt.Errorf("%s: unexpected argument %q", cmd.CommandPath(), args[0])}
	}
	return nil
}

func maxArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.MaximumNArgs(n)(cmd, args); err != nil {
			return usageError{err}
		}
		return nil
	}
}

func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return usageError{err}
		}
		return nil
	}
}

// loadConfig resolves the layered configuration, then the credentials, then
// validates. Issues are printed; any error-level issue fails.
func (a *app) loadConfig(flags *pflag.FlagSet) (*config.Config, error) {
	cfg, err := config.Load(config.LoadOptions{Path: a.configPath, Flags: flags, FlagKeys: flagKeys})
	if err != nil {
		return nil, err
	}
	if err := config.LoadCredentials(cfg); err != nil {
		return nil, err
	}
	issues := config.Validate(*cfg)
	for _, iss := range issues {
		fmt.Fprintln(a.stderr, iss)
	}
	if config.HasErrors(issues) {
		return nil, errors.New("configuration is invalid")
	}
	return cfg, nil
}

func (a *app) runValidate(cmd *cobra.Command, _ []string) error {
	cfg, err := a.loadConfig(cmd.Flags())
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "configuration is valid: input=%s output=%s warehouse=%q metrics=%q\n",
		cfg.Source.Base, cfg.Output.Base, cfg.Warehouse.Kind, cfg.Metrics.Backend)
	return nil
}

func (a *app) runJob(cmd *cobra.Command, _ []string) error {
	cfg, err := a.loadConfig(cmd.Flags())
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	cleanup, err := a.deps.initMetrics(ctx, cfg.Job, cfg.Metrics)
	if err != nil {
		return err
	}
	defer cleanup()

	start := time.Now()
	res, err := a.deps.newRunner(a.logger, cfg.Runtime.Verbose).Run(ctx, *cfg)
	if err != nil {
		return err
	}

	for _, t := range res.Tables {
		fmt.Fprintf(a.stdout, "%-10s rows=%-8d partitions=%-5d files=%-5d %s\n", t.Name, t.Rows, t.Partitions, t.Files, t.Location)
	}
	fmt.Fprintf(a.stdout, "run_id=%s catalog=%d events=%d playback=%d malformed=%d join_dropped=%d duration=%s\n",
		res.RunID, res.Catalog, res.Events, res.Playback, res.Malformed, res.Join.Dropped,
		time.Since(start).Truncate(time.Millisecond))

	if cfg.Runtime.Preview > 0 {
		return a.preview(ctx, *cfg, res)
	}
	return nil
}

func (a *app) preview(ctx context.Context, cfg config.Config, res *pipeline.Result) error {
	q, err := a.deps.openQuery(ctx, queryConfig(cfg, a.logger))
	if err != nil {
		return err
	}
	defer q.Close()

	for _, t := range res.Tables {
		r, err := q.Preview(ctx, t.Name, cfg.Runtime.Preview)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "\n== %s ==\n", t.Name)
		if err := lakequery.FormatTable(a.stdout, r); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) runProbe(cmd *cobra.Command, args []string) error {
	cfg, err := a.loadConfig(cmd.Flags())
	if err != nil {
		return err
	}
	pattern, _ := cmd.Flags().GetString("pattern")
	maxRecords, _ := cmd.Flags().GetInt("max-records")
	if pattern == "" {
		pattern = cfg.Source.CatalogGlob
		if len(args) == 1 {
			switch args[0] {
			case "catalog":
			case "events":
				pattern = cfg.Source.EventsGlob
			default:
				return usageError{fmt.Errorf("probe: unknown source %q (want catalog or events)", args[0])}
			}
		}
	}

	ctx := cmd.Context()
	store, err := a.deps.openStore(ctx, objstore.Config{
		Location:    cfg.Source.Base,
		Credentials: cfg.Credentials,
		Region:      cfg.Storage.Region,
		Endpoint:    cfg.Storage.Endpoint,
		PathStyle:   cfg.Storage.PathStyle,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	rep, err := probe.Sample(ctx, store, probe.Options{
		Pattern:    pattern,
		MaxRecords: maxRecords,
		Encoding:   cfg.Source.Encoding,
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, probe.FormatReport(rep))
	return nil
}

func (a *app) runQuery(cmd *cobra.Command, args []string) error {
	cfg, err := a.loadConfig(cmd.Flags())
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	q, err := a.deps.openQuery(ctx, queryConfig(*cfg, a.logger))
	if err != nil {
		return err
	}
	defer q.Close()

	res, err := q.Query(ctx, args[0])
	if err != nil {
		return err
	}
	return lakequery.FormatTable(a.stdout, res)
}

func queryConfig(cfg config.Config, logger lakequery.Logger) lakequery.Config {
	t := cfg.Output.Tables
	return lakequery.Config{
		Output: cfg.Output.Base,
		Tables: []model.TableDef{
			model.SongsDef.WithName(t.Songs),
			model.ArtistsDef.WithName(t.Artists),
			model.UsersDef.WithName(t.Users),
			model.TimeDef.WithName(t.Time),
			model.SongplaysDef.WithName(t.Songplays),
		},
		Credentials: cfg.Credentials,
		Region:      cfg.Storage.Region,
		Endpoint:    cfg.Storage.Endpoint,
		PathStyle:   cfg.Storage.PathStyle,
		Logger:      logger,
	}
}
