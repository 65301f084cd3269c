package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/SumanthReddy1234/datalakes/internal/config"
	"github.com/SumanthReddy1234/datalakes/internal/lake"
	"github.com/SumanthReddy1234/datalakes/internal/lakequery"
	"github.com/SumanthReddy1234/datalakes/internal/metrics"
	"github.com/SumanthReddy1234/datalakes/internal/metrics/datadog"
	"github.com/SumanthReddy1234/datalakes/internal/objstore"
	"github.com/SumanthReddy1234/datalakes/internal/pipeline"
)

// fakeRunner records the config it was handed.
type fakeRunner struct {
	res   *pipeline.Result
	err   error
	calls atomic.Int64
	cfg   config.Config
}

func (r *fakeRunner) Run(ctx context.Context, cfg config.Config) (*pipeline.Result, error) {
	r.calls.Add(1)
	r.cfg = cfg
	return r.res, r.err
}

type fakeQuerier struct {
	previews []string
	queries  []string
	closed   bool
}

func (q *fakeQuerier) Preview(ctx context.Context, table string, n int) (*lakequery.Result, error) {
	q.previews = append(q.previews, fmt.Sprintf("%s:%d", table, n))
	return &lakequery.Result{Columns: []string{"c"}, Rows: [][]any{{table}}}, nil
}

func (q *fakeQuerier) Query(ctx context.Context, sql string) (*lakequery.Result, error) {
	q.queries = append(q.queries, sql)
	return &lakequery.Result{Columns: []string{"n"}, Rows: [][]any{{int64(7)}}}, nil
}

func (q *fakeQuerier) Close() error {
	q.closed = true
	return nil
}

// failingDeps fails the test if any collaborator is touched.
func failingDeps(t *testing.T) appDeps {
	return appDeps{
		newRunner: func(pipeline.Logger, bool) runner {
			t.Fatalf("newRunner must not be called")
			return nil
		},
		initMetrics: func(context.Context, string, config.Metrics) (func(), error) {
			t.Fatalf("initMetrics must not be called")
			return func() {}, nil
		},
		openStore: func(context.Context, objstore.Config) (objstore.Store, error) {
			t.Fatalf("openStore must not be called")
			return nil, nil
		},
		openQuery: func(context.Context, lakequery.Config) (querier, error) {
			t.Fatalf("openQuery must not be called")
			return nil, nil
		},
	}
}

func localArgs(t *testing.T, extra ...string) []string {
	return append([]string{"--input", t.TempDir(), "--output", t.TempDir()}, extra...)
}

func TestRunMain_UsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unexpected_argument", []string{"bogus"}},
		{"unknown_flag", []string{"--nope"}},
		{"query_without_sql", []string{"query"}},
		{"run_with_argument", []string{"run", "x"}},
		{"bad_preview_value", []string{"--preview", "many"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code := runMain(context.Background(), tc.args, &stdout, &stderr, failingDeps(t))
			if code != exitUsage {
				t.Fatalf("exit code=%d, want %d; stderr=%q", code, exitUsage, stderr.String())
			}
			if !strings.Contains(stderr.String(), "usage: lakeetl") {
				t.Fatalf("stderr=%q, want usage line", stderr.String())
			}
			if stdout.Len() != 0 {
				t.Fatalf("stdout=%q, want empty", stdout.String())
			}
		})
	}
}

func TestRunMain_InvalidConfigFailsBeforeSideEffects(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := runMain(context.Background(), localArgs(t, "--warehouse-kind", "oracle"), &stdout, &stderr, failingDeps(t))
	if code != exitFailure {
		t.Fatalf("exit code=%d, want %d", code, exitFailure)
	}
	if !strings.Contains(stderr.String(), "warehouse.kind") || !strings.Contains(stderr.String(), "configuration is invalid") {
		t.Fatalf("stderr=%q", stderr.String())
	}
}

func TestRunMain_Validate(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := runMain(context.Background(), append([]string{"validate"}, localArgs(t)...), &stdout, &stderr, failingDeps(t))
	if code != exitOK {
		t.Fatalf("exit code=%d; stderr=%q", code, stderr.String())
	}
	if !strings.HasPrefix(stdout.String(), "configuration is valid:") {
		t.Fatalf("stdout=%q", stdout.String())
	}
}

func TestRunMain_RunFlow(t *testing.T) {
	okResult := &pipeline.Result{
		RunID: "r1",
		Tables: []pipeline.TableResult{
			{Name: "songs", Location: "/lake/songs", WriteStats: lake.WriteStats{Rows: 3, Partitions: 2, Files: 2}},
		},
		Catalog: 3, Events: 5, Playback: 4,
	}

	tests := []struct {
		name           string
		args           []string
		metricsErr     error
		runErr         error
		wantCode       int
		wantRuns       int64
		wantCleanups   int64
		wantStdoutSub  string
		wantStderrSub  string
		wantDedupe     bool
		wantMetricsSel string
	}{
		{
			name:          "default_command_runs",
			args:          nil,
			wantCode:      exitOK,
			wantRuns:      1,
			wantCleanups:  1,
			wantStdoutSub: "songs      rows=3",
		},
		{
			name:           "run_subcommand_with_flags",
			args:           []string{"run", "--dedupe-dimensions", "--metrics-backend", "datadog"},
			wantCode:       exitOK,
			wantRuns:       1,
			wantCleanups:   1,
			wantStdoutSub:  "run_id=r1 catalog=3 events=5 playback=4",
			wantDedupe:     true,
			wantMetricsSel: "datadog",
		},
		{
			name:          "metrics_init_error",
			metricsErr:    errors.New("metrics unavailable"),
			wantCode:      exitFailure,
			wantStderrSub: "metrics unavailable",
		},
		{
			name:          "run_error",
			runErr:        errors.New("load_events: no input objects"),
			wantCode:      exitFailure,
			wantRuns:      1,
			wantCleanups:  1,
			wantStderrSub: "load_events",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			var cleanups atomic.Int64
			var gotMetrics config.Metrics
			fr := &fakeRunner{res: okResult, err: tc.runErr}
			if tc.runErr != nil {
				fr.res = nil
			}

			deps := failingDeps(t)
			deps.newRunner = func(pipeline.Logger, bool) runner { return fr }
			deps.initMetrics = func(ctx context.Context, job string, m config.Metrics) (func(), error) {
				if job != "lakeetl" {
					t.Fatalf("job=%q, want lakeetl", job)
				}
				gotMetrics = m
				if tc.metricsErr != nil {
					return func() {}, tc.metricsErr
				}
				return func() { cleanups.Add(1) }, nil
			}

			input, output := t.TempDir(), t.TempDir()
			args := append(append([]string{}, tc.args...), "--input", input, "--output", output)
			code := runMain(context.Background(), args, &stdout, &stderr, deps)

			if code != tc.wantCode {
				t.Fatalf("exit code=%d, want %d; stderr=%q", code, tc.wantCode, stderr.String())
			}
			if got := fr.calls.Load(); got != tc.wantRuns {
				t.Fatalf("runner calls=%d, want %d", got, tc.wantRuns)
			}
			if got := cleanups.Load(); got != tc.wantCleanups {
				t.Fatalf("cleanup calls=%d, want %d", got, tc.wantCleanups)
			}
			if tc.wantStdoutSub != "" && !strings.Contains(stdout.String(), tc.wantStdoutSub) {
				t.Fatalf("stdout=%q, want contains %q", stdout.String(), tc.wantStdoutSub)
			}
			if tc.wantStderrSub != "" && !strings.Contains(stderr.String(), tc.wantStderrSub) {
				t.Fatalf("stderr=%q, want contains %q", stderr.String(), tc.wantStderrSub)
			}
			if tc.wantRuns > 0 {
				if fr.cfg.Source.Base != input || fr.cfg.Output.Base != output {
					t.Fatalf("runner cfg source=%q output=%q", fr.cfg.Source.Base, fr.cfg.Output.Base)
				}
				if fr.cfg.Runtime.DedupeDimensions != tc.wantDedupe {
					t.Fatalf("dedupe=%v, want %v", fr.cfg.Runtime.DedupeDimensions, tc.wantDedupe)
				}
			}
			if tc.wantMetricsSel != "" && gotMetrics.Backend != tc.wantMetricsSel {
				t.Fatalf("metrics backend=%q, want %q", gotMetrics.Backend, tc.wantMetricsSel)
			}
		})
	}
}

func TestRunMain_ConfigFileAndFlagPrecedence(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "lakeetl.yaml")
	yaml := "job: nightly\nsource:\n  base: " + dir + "\n  events_glob: events/*.json\noutput:\n  base: " + dir + "/from-file\n"
	if err := os.WriteFile(cfgPath, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	fr := &fakeRunner{res: &pipeline.Result{}}
	deps := failingDeps(t)
	deps.newRunner = func(pipeline.Logger, bool) runner { return fr }
	deps.initMetrics = func(ctx context.Context, job string, m config.Metrics) (func(), error) {
		if job != "nightly" {
			t.Fatalf("job=%q, want nightly", job)
		}
		return func() {}, nil
	}

	flagOut := filepath.Join(dir, "from-flag")
	var stdout, stderr bytes.Buffer
	code := runMain(context.Background(), []string{"--config", cfgPath, "--output", flagOut}, &stdout, &stderr, deps)
	if code != exitOK {
		t.Fatalf("exit code=%d; stderr=%q", code, stderr.String())
	}
	if fr.cfg.Output.Base != flagOut {
		t.Fatalf("output.base=%q, want flag value %q", fr.cfg.Output.Base, flagOut)
	}
	if fr.cfg.Source.EventsGlob != "events/*.json" || fr.cfg.Source.CatalogGlob != config.Default().Source.CatalogGlob {
		t.Fatalf("source=%+v", fr.cfg.Source)
	}
}

func TestRunMain_PreviewAfterRun(t *testing.T) {
	fr := &fakeRunner{res: &pipeline.Result{Tables: []pipeline.TableResult{{Name: "songs"}, {Name: "users"}}}}
	fq := &fakeQuerier{}
	var gotCfg lakequery.Config

	deps := failingDeps(t)
	deps.newRunner = func(pipeline.Logger, bool) runner { return fr }
	deps.initMetrics = func(context.Context, string, config.Metrics) (func(), error) { return func() {}, nil }
	deps.openQuery = func(ctx context.Context, cfg lakequery.Config) (querier, error) {
		gotCfg = cfg
		return fq, nil
	}

	var stdout, stderr bytes.Buffer
	code := runMain(context.Background(), localArgs(t, "--preview", "3"), &stdout, &stderr, deps)
	if code != exitOK {
		t.Fatalf("exit code=%d; stderr=%q", code, stderr.String())
	}
	if strings.Join(fq.previews, ",") != "songs:3,users:3" || !fq.closed {
		t.Fatalf("previews=%v closed=%v", fq.previews, fq.closed)
	}
	if len(gotCfg.Tables) != 5 || gotCfg.Tables[4].Name != "songplays" {
		t.Fatalf("query tables=%+v", gotCfg.Tables)
	}
	if !strings.Contains(stdout.String(), "== users ==") {
		t.Fatalf("stdout=%q", stdout.String())
	}
}

func TestRunMain_Query(t *testing.T) {
	fq := &fakeQuerier{}
	deps := failingDeps(t)
	deps.openQuery = func(context.Context, lakequery.Config) (querier, error) { return fq, nil }

	var stdout, stderr bytes.Buffer
	args := append([]string{"query", "SELECT count(*) AS n FROM songplays"}, localArgs(t)...)
	code := runMain(context.Background(), args, &stdout, &stderr, deps)
	if code != exitOK {
		t.Fatalf("exit code=%d; stderr=%q", code, stderr.String())
	}
	if len(fq.queries) != 1 || fq.queries[0] != "SELECT count(*) AS n FROM songplays" {
		t.Fatalf("queries=%v", fq.queries)
	}
	if stdout.String() != "n\n7\n(1 rows)\n" {
		t.Fatalf("stdout=%q", stdout.String())
	}
}

func TestRunMain_ProbeEvents(t *testing.T) {
	input := t.TempDir()
	if err := os.MkdirAll(filepath.Join(input, "log_data", "2018", "11"), 0o755); err != nil {
		t.Fatal(err)
	}
	events := `{"page":"NextSong","ts":1541105830796,"userId":"1"}` + "\n" + `{"page":"Home","ts":1541105830797,"userId":""}` + "\n"
	if err := os.WriteFile(filepath.Join(input, "log_data", "2018", "11", "e.json"), []byte(events), 0o644); err != nil {
		t.Fatal(err)
	}

	deps := failingDeps(t)
	deps.openStore = objstore.New

	var stdout, stderr bytes.Buffer
	code := runMain(context.Background(), []string{"probe", "events", "--input", input, "--output", t.TempDir()}, &stdout, &stderr, deps)
	if code != exitOK {
		t.Fatalf("exit code=%d; stderr=%q", code, stderr.String())
	}
	for _, want := range []string{"records=2", " |-- page: string (nullable = true)", " |-- ts: long (nullable = true)"} {
		if !strings.Contains(stdout.String(), want) {
			t.Fatalf("stdout missing %q:\n%s", want, stdout.String())
		}
	}

	stdout.Reset()
	code = runMain(context.Background(), []string{"probe", "songs", "--input", input}, &stdout, &stderr, deps)
	if code != exitUsage {
		t.Fatalf("probe songs exit code=%d, want %d", code, exitUsage)
	}
}

// ---- initMetrics ----

type fakeBackend struct {
	closeErr error
	closed   atomic.Int64
}

func (b *fakeBackend) IncCounter(string, float64, metrics.Labels)       {}
func (b *fakeBackend) ObserveHistogram(string, float64, metrics.Labels) {}
func (b *fakeBackend) Flush() error                                     { return nil }
func (b *fakeBackend) Close() error {
	b.closed.Add(1)
	return b.closeErr
}

// swapSeams restores the package seams after the test.
func swapSeams(t *testing.T) *bytes.Buffer {
	t.Helper()
	oldDD, oldPush, oldSet, oldFlush, oldLog := newDatadogBackend, newPushBackend, setMetricsBackend, flushMetrics, logPrintf
	t.Cleanup(func() {
		newDatadogBackend, newPushBackend, setMetricsBackend, flushMetrics, logPrintf = oldDD, oldPush, oldSet, oldFlush, oldLog
	})
	var logged bytes.Buffer
	logPrintf = func(format string, v ...any) { fmt.Fprintf(&logged, format, v...) }
	return &logged
}

func TestInitMetrics_NoneLeavesGlobalStateAlone(t *testing.T) {
	swapSeams(t)
	setMetricsBackend = func(metrics.Backend) { t.Fatalf("setMetricsBackend must not be called for none") }

	for _, name := range []string{"", "none"} {
		cleanup, err := initMetrics(context.Background(), "job", config.Metrics{Backend: name})
		if err != nil || cleanup == nil {
			t.Fatalf("initMetrics(%q)=%v,%v", name, cleanup == nil, err)
		}
		cleanup()
	}
}

func TestInitMetrics_DatadogWiresBackendAndCloses(t *testing.T) {
	logged := swapSeams(t)
	b := &fakeBackend{}
	var gotOpts datadog.Options
	var sets []metrics.Backend

	newDatadogBackend = func(ctx context.Context, opts datadog.Options) (metricsBackend, error) {
		gotOpts = opts
		return b, nil
	}
	setMetricsBackend = func(mb metrics.Backend) { sets = append(sets, mb) }

	cleanup, err := initMetrics(context.Background(), "jobA", config.Metrics{Backend: "datadog", Tags: "team:data, env:dev", FlushEvery: time.Second})
	if err != nil {
		t.Fatalf("initMetrics: %v", err)
	}
	if gotOpts.JobName != "jobA" || len(gotOpts.Tags) != 2 || gotOpts.FlushEvery != time.Second {
		t.Fatalf("datadog options=%+v", gotOpts)
	}

	cleanup()
	if b.closed.Load() != 1 {
		t.Fatalf("closed=%d, want 1", b.closed.Load())
	}
	if len(sets) != 2 || sets[0] != b || sets[1] != nil {
		t.Fatalf("setMetricsBackend calls=%v, want [backend nil]", sets)
	}
	if logged.Len() != 0 {
		t.Fatalf("unexpected log output: %q", logged.String())
	}
}

func TestInitMetrics_DatadogCloseErrorIsLogged(t *testing.T) {
	logged := swapSeams(t)
	b := &fakeBackend{closeErr: errors.New("flush failed")}
	newDatadogBackend = func(context.Context, datadog.Options) (metricsBackend, error) { return b, nil }
	setMetricsBackend = func(metrics.Backend) {}

	cleanup, err := initMetrics(context.Background(), "job", config.Metrics{Backend: "dd"})
	if err != nil {
		t.Fatalf("initMetrics: %v", err)
	}
	cleanup()
	if !strings.Contains(logged.String(), "metrics: datadog close error: flush failed") {
		t.Fatalf("log=%q", logged.String())
	}
}

func TestInitMetrics_PushgatewayFlushesOnCleanup(t *testing.T) {
	logged := swapSeams(t)
	var gotURL string
	newPushBackend = func(job, url string) (metrics.Backend, error) {
		gotURL = url
		return &fakeBackend{}, nil
	}
	setMetricsBackend = func(metrics.Backend) {}
	flushMetrics = func() error { return errors.New("gateway down") }

	cleanup, err := initMetrics(context.Background(), "job", config.Metrics{Backend: "pushgateway", PushgatewayURL: "http://gw:9091"})
	if err != nil {
		t.Fatalf("initMetrics: %v", err)
	}
	if gotURL != "http://gw:9091" {
		t.Fatalf("url=%q", gotURL)
	}
	cleanup()
	if !strings.Contains(logged.String(), "metrics: pushgateway flush error: gateway down") {
		t.Fatalf("log=%q", logged.String())
	}
}

func TestInitMetrics_UnknownBackendErrors(t *testing.T) {
	cleanup, err := initMetrics(context.Background(), "job", config.Metrics{Backend: "nope"})
	if err == nil {
		t.Fatalf("initMetrics err=nil, want error")
	}
	if cleanup == nil {
		t.Fatalf("cleanup=nil, want non-nil")
	}
	cleanup()
	if !strings.Contains(err.Error(), "unknown metrics backend") || !strings.Contains(err.Error(), "none|pushgateway|datadog") {
		t.Fatalf("err=%q", err)
	}
}
