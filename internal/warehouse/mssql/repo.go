package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"github.com/SumanthReddy1234/datalakes/internal/model"
	"github.com/SumanthReddy1234/datalakes/internal/warehouse"
)

// SQL Server accepts at most 2100 parameters per request.
const maxParams = 2000

// Repo implements warehouse.Repository for Microsoft SQL Server.
type Repo struct {
	db    dbConn
	batch int
}

func init() {
	warehouse.Register("mssql", New)
}

// New opens cfg.DSN with the "sqlserver" driver and pings it.
func New(ctx context.Context, cfg warehouse.Config) (warehouse.Repository, error) {
	raw, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := raw.PingContext(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	return &Repo{db: &sqlDB{db: raw}, batch: cfg.BatchRows}, nil
}

func (r *Repo) Close() {
	if r == nil || r.db == nil {
		return
	}
	_ = r.db.Close()
}

// EnsureTables creates missing tables.
func (r *Repo) EnsureTables(ctx context.Context, defs []model.TableDef) error {
	for _, d := range defs {
		q, err := buildCreateSQL(d)
		if err != nil {
			return err
		}
		if _, err := r.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("mssql: create table %s: %w", d.Name, err)
		}
	}
	return nil
}

// ReplaceRows implements warehouse.Repository. Inserts are chunked to stay
// under the parameter limit.
func (r *Repo) ReplaceRows(ctx context.Context, def model.TableDef, rows [][]any) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+mssqlTableIdent(def.Name)); err != nil {
		return 0, fmt.Errorf("mssql: clear %s: %w", def.Name, err)
	}

	cols := def.ColumnNames()
	var total int64
	for _, part := range warehouse.Batches(rows, warehouse.RowsPerStatement(r.batch, len(cols), maxParams)) {
		q, args := buildBulkInsertSQL(def.Name, cols, part)
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return total, fmt.Errorf("mssql: insert %s: %w", def.Name, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return total, nil
}

func buildCreateSQL(d model.TableDef) (string, error) {
	if strings.TrimSpace(d.Name) == "" {
		return "", fmt.Errorf("mssql: table name is empty")
	}
	defs := make([]string, 0, len(d.Columns))
	for _, c := range d.Columns {
		typ, err := columnType(c.Type)
		if err != nil {
			return "", fmt.Errorf("mssql: table %s: column %s: %w", d.Name, c.Name, err)
		}
		null := " NULL"
		if !c.Nullable {
			null = " NOT NULL"
		}
		defs = append(defs, mssqlIdent(c.Name)+" "+typ+null)
	}
	return fmt.Sprintf(
		"IF OBJECT_ID(N'%s', N'U') IS NULL BEGIN CREATE TABLE %s (%s); END;",
		strings.ReplaceAll(d.Name, "'", "''"),
		mssqlTableIdent(d.Name),
		strings.Join(defs, ", "),
	), nil
}

func columnType(t model.ColumnType) (string, error) {
	switch t {
	case model.TypeText:
		return "NVARCHAR(MAX)", nil
	case model.TypeBigint:
		return "BIGINT", nil
	case model.TypeInt:
		return "INT", nil
	case model.TypeDouble:
		return "FLOAT", nil
	case model.TypeTimestamp:
		return "DATETIME2(3)", nil
	default:
		return "", fmt.Errorf("unsupported column type %q", t)
	}
}

// buildBulkInsertSQL constructs one INSERT ... VALUES with @pN placeholders.
func buildBulkInsertSQL(table string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(mssqlTableIdent(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(mssqlIdent(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "@p%d", p)
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}
	return b.String(), args
}

// mssqlIdent returns a bracket-quoted identifier, escaping ']' as ']]'.
func mssqlIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// mssqlTableIdent quotes each part of a schema-qualified name:
// "dbo.songs" -> [dbo].[songs].
func mssqlTableIdent(name string) string {
	parts := strings.Split(name, ".")
	for i := range parts {
		parts[i] = mssqlIdent(strings.TrimSpace(parts[i]))
	}
	return strings.Join(parts, ".")
}

// dbConn is a small interface over *sql.DB for tests.
type dbConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	BeginTx(ctx context.Context, opts *sql.TxOptions) (txConn, error)
	Close() error
}

// txConn is a small interface over *sql.Tx for tests.
type txConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	Commit() error
	Rollback() error
}

type sqlDB struct {
	db *sql.DB
}

func (s *sqlDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, query, args...)
}

func (s *sqlDB) BeginTx(ctx context.Context, opts *sql.TxOptions) (txConn, error) {
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

func (s *sqlDB) Close() error { return s.db.Close() }

var _ dbConn = (*sqlDB)(nil)
