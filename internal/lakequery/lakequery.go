// Package lakequery exposes written output tables to SQL through an in-memory
// DuckDB. Each table becomes a view over its Parquet files with Hive
// partition columns restored.
package lakequery

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/SumanthReddy1234/datalakes/internal/model"
	"github.com/SumanthReddy1234/datalakes/internal/objstore"
)

// DefaultPreviewRows matches the row count of a DataFrame show().
const DefaultPreviewRows = 20

// Logger is the minimal logging interface used by the query client.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

type Config struct {
	// Output is the lake root the tables were written under.
	Output string
	Tables []model.TableDef

	Credentials objstore.Credentials
	Region      string
	Endpoint    string
	PathStyle   bool

	Logger Logger
}

// Client is an open DuckDB session with one view per table.
type Client struct {
	db      *sql.DB
	views   []string
	missing map[string]error
	logger  Logger
}

// Result is a fully materialized query result.
type Result struct {
	Columns []string
	Rows    [][]any
}

// Open starts DuckDB and registers the views. A table whose files cannot be
// read is recorded in Missing instead of failing Open.
func Open(ctx context.Context, cfg Config) (*Client, error) {
	base, remote, err := duckLocation(cfg.Output)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("lakequery: open duckdb: %w", err)
	}
	c := &Client{db: db, missing: map[string]error{}, logger: cfg.Logger}
	if c.logger == nil {
		c.logger = nopLogger{}
	}

	if remote {
		for _, stmt := range []string{"INSTALL httpfs", "LOAD httpfs"} {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("lakequery: %s: %w", strings.ToLower(stmt), err)
			}
		}
		if !cfg.Credentials.Empty() {
			if _, err := db.ExecContext(ctx, secretSQL(cfg)); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("lakequery: create s3 secret: %w", err)
			}
		}
	}

	for _, def := range cfg.Tables {
		q := viewSQL(def, base)
		if _, err := db.ExecContext(ctx, q); err != nil {
			c.missing[def.Name] = err
			c.logger.Printf("stage=query_view skip table=%s error=%q", def.Name, err)
			continue
		}
		c.views = append(c.views, def.Name)
	}
	return c, nil
}

func (c *Client) Close() error { return c.db.Close() }

// Views lists the registered table views in registration order.
func (c *Client) Views() []string { return append([]string(nil), c.views...) }

// Missing returns the tables that could not be registered with their errors.
func (c *Client) Missing() map[string]error { return c.missing }

// Preview returns the first n rows of table; n <= 0 means DefaultPreviewRows.
func (c *Client) Preview(ctx context.Context, table string, n int) (*Result, error) {
	if n <= 0 {
		n = DefaultPreviewRows
	}
	if err, ok := c.missing[table]; ok {
		return nil, fmt.Errorf("lakequery: table %s is not readable: %w", table, err)
	}
	return c.Query(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT %d", quoteIdent(table), n))
}

// Query runs q and materializes every row.
func (c *Client) Query(ctx context.Context, q string) (*Result, error) {
	rs, err := c.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("lakequery: query: %w", err)
	}
	defer rs.Close()

	cols, err := rs.Columns()
	if err != nil {
		return nil, err
	}
	res := &Result{Columns: cols}
	for rs.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rs.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("lakequery: scan: %w", err)
		}
		res.Rows = append(res.Rows, vals)
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("lakequery: rows: %w", err)
	}
	return res, nil
}

// FormatTable writes res as aligned columns with a header row.
func FormatTable(w io.Writer, res *Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(res.Columns, "\t"))
	for _, row := range res.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = formatValue(v)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	fmt.Fprintf(tw, "(%d rows)\n", len(res.Rows))
	return tw.Flush()
}

func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case time.Time:
		return t.UTC().Format("2006-01-02 15:04:05.000")
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

// duckLocation maps a lake location onto a path DuckDB can read. s3a:// is
// rewritten to s3://; local paths are made absolute.
func duckLocation(location string) (string, bool, error) {
	kind, err := objstore.KindOf(location)
	if err != nil {
		return "", false, err
	}
	if kind == "s3" {
		if i := strings.Index(location, "://"); i >= 0 {
			location = "s3" + location[i:]
		}
		return strings.TrimRight(location, "/"), true, nil
	}
	p := location
	if strings.HasPrefix(strings.ToLower(p), "file://") {
		p = p[len("file://"):]
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", false, fmt.Errorf("lakequery: resolve %q: %w", location, err)
	}
	return filepath.ToSlash(abs), false, nil
}

// viewSQL registers def as a view. Partitioned tables read every nested part
// file; the partition columns come back from the directory names.
func viewSQL(def model.TableDef, base string) string {
	glob := base + "/" + def.Name + "/*.parquet"
	if len(def.PartitionBy) > 0 {
		glob = base + "/" + def.Name + "/**/*.parquet"
	}
	return fmt.Sprintf("CREATE OR REPLACE VIEW %s AS SELECT * FROM read_parquet(%s, hive_partitioning = true)",
		quoteIdent(def.Name), quoteLiteral(glob))
}

func secretSQL(cfg Config) string {
	opts := []string{
		"TYPE S3",
		"KEY_ID " + quoteLiteral(cfg.Credentials.AccessKeyID),
		"SECRET " + quoteLiteral(cfg.Credentials.SecretAccessKey),
	}
	if cfg.Credentials.SessionToken != "" {
		opts = append(opts, "SESSION_TOKEN "+quoteLiteral(cfg.Credentials.SessionToken))
	}
	if cfg.Region != "" {
		opts = append(opts, "REGION "+quoteLiteral(cfg.Region))
	}
	if cfg.Endpoint != "" {
		ep := strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "https://"), "http://")
		opts = append(opts, "ENDPOINT "+quoteLiteral(ep))
		if strings.HasPrefix(cfg.Endpoint, "http://") {
			opts = append(opts, "USE_SSL false")
		}
	}
	if cfg.PathStyle {
		opts = append(opts, "URL_STYLE 'path'")
	}
	return "CREATE OR REPLACE SECRET lake_s3 (" + strings.Join(opts, ", ") + ")"
}

func quoteIdent(s string) string   { return `"` + strings.ReplaceAll(s, `"`, `""`) + `"` }
func quoteLiteral(s string) string { return "'" + strings.ReplaceAll(s, "'", "''") + "'" }

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}
