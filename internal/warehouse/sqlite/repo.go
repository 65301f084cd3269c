package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/SumanthReddy1234/datalakes/internal/model"
	"github.com/SumanthReddy1234/datalakes/internal/warehouse"
)

// TimeLayout is how timestamps are stored. SQLite has no timestamp type; this
// form sorts lexically and is understood by its date functions.
const TimeLayout = "2006-01-02 15:04:05.000"

// SQLite's default SQLITE_MAX_VARIABLE_NUMBER before 3.32.
const maxParams = 999

// Repo implements warehouse.Repository for SQLite.
type Repo struct {
	db    *sql.DB
	batch int
}

func init() {
	warehouse.Register("sqlite", New)
}

func New(ctx context.Context, cfg warehouse.Config) (warehouse.Repository, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	// One writer; a second pooled connection would see a different
	// database for ":memory:" DSNs.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db, batch: cfg.BatchRows}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

// EnsureTables creates missing tables; existing tables are left as they are.
func (r *Repo) EnsureTables(ctx context.Context, defs []model.TableDef) error {
	for _, d := range defs {
		q, err := buildCreateSQL(d)
		if err != nil {
			return err
		}
		if _, err := r.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("sqlite: create table %s: %w", d.Name, err)
		}
	}
	return nil
}

// ReplaceRows implements warehouse.Repository.
func (r *Repo) ReplaceRows(ctx context.Context, def model.TableDef, rows [][]any) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+sqlIdent(def.Name)); err != nil {
		return 0, fmt.Errorf("sqlite: clear %s: %w", def.Name, err)
	}

	cols := def.ColumnNames()
	var total int64
	for _, part := range warehouse.Batches(rows, warehouse.RowsPerStatement(r.batch, len(cols), maxParams)) {
		q, args := buildInsertSQL(def.Name, cols, part)
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return total, fmt.Errorf("sqlite: insert %s: %w", def.Name, err)
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
		return "", fmt.Errorf("sqlite: table name is empty")
	}
	defs := make([]string, 0, len(d.Columns))
	for _, c := range d.Columns {
		typ, err := columnType(c.Type)
		if err != nil {
			return "", fmt.Errorf("sqlite: table %s: column %s: %w", d.Name, c.Name, err)
		}
		def := sqlIdent(c.Name) + " " + typ
		if !c.Nullable {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", sqlIdent(d.Name), strings.Join(defs, ", ")), nil
}

func columnType(t model.ColumnType) (string, error) {
	switch t {
	case model.TypeText, model.TypeTimestamp:
		return "TEXT", nil
	case model.TypeBigint, model.TypeInt:
		return "INTEGER", nil
	case model.TypeDouble:
		return "REAL", nil
	default:
		return "", fmt.Errorf("unsupported column type %q", t)
	}
}

func buildInsertSQL(table string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(sqlIdent(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(sqlIdent(c))
	}
	b.WriteString(") VALUES ")

	tuple := "(" + strings.TrimRight(strings.Repeat("?, ", len(columns)), ", ") + ")"
	args := make([]any, 0, len(rows)*len(columns))
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(tuple)
		for _, v := range row {
			args = append(args, toSQLite(v))
		}
	}
	return b.String(), args
}

func toSQLite(v any) any {
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(TimeLayout)
	}
	return v
}

func sqlIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}
