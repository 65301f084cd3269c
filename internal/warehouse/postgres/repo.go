package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/SumanthReddy1234/datalakes/internal/model"
	"github.com/SumanthReddy1234/datalakes/internal/warehouse"
)

/*
Repo implements warehouse.Repository for Postgres.

Rows are loaded with COPY inside the same transaction as the DELETE, so
readers see either the previous contents or the new ones.
*/
type Repo struct {
	pool pgPool
}

// pgPool is the subset of *pgxpool.Pool used here.
type pgPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

func init() {
	warehouse.Register("postgres", New)
}

// New creates a pool and checks connectivity.
func New(ctx context.Context, cfg warehouse.Config) (warehouse.Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Repo{pool: pool}, nil
}

func (r *Repo) Close() { r.pool.Close() }

// EnsureTables creates missing tables (and their schema, for qualified names).
func (r *Repo) EnsureTables(ctx context.Context, defs []model.TableDef) error {
	for _, d := range defs {
		schemaSQL, tableSQL, err := buildCreateSQL(d)
		if err != nil {
			return err
		}
		if schemaSQL != "" {
			if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
				return fmt.Errorf("postgres: create schema for %s: %w", d.Name, err)
			}
		}
		if _, err := r.pool.Exec(ctx, tableSQL); err != nil {
			return fmt.Errorf("postgres: create table %s: %w", d.Name, err)
		}
	}
	return nil
}

// ReplaceRows implements warehouse.Repository with DELETE + COPY.
func (r *Repo) ReplaceRows(ctx context.Context, def model.TableDef, rows [][]any) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ident := tableIdent(def.Name)
	if _, err := tx.Exec(ctx, "DELETE FROM "+ident.Sanitize()); err != nil {
		return 0, fmt.Errorf("postgres: clear %s: %w", def.Name, err)
	}

	n, err := tx.CopyFrom(ctx, ident, def.ColumnNames(), pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("postgres: copy into %s: %w", def.Name, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return n, nil
}

// buildCreateSQL renders DDL for d. schemaSQL is empty for unqualified names.
func buildCreateSQL(d model.TableDef) (schemaSQL, tableSQL string, err error) {
	if strings.TrimSpace(d.Name) == "" {
		return "", "", fmt.Errorf("postgres: table name is empty")
	}
	ident := tableIdent(d.Name)
	if len(ident) == 2 {
		schemaSQL = "CREATE SCHEMA IF NOT EXISTS " + pgx.Identifier{ident[0]}.Sanitize()
	}

	cols := make([]string, 0, len(d.Columns))
	for _, c := range d.Columns {
		typ, err := columnType(c.Type)
		if err != nil {
			return "", "", fmt.Errorf("postgres: table %s: column %s: %w", d.Name, c.Name, err)
		}
		def := pgx.Identifier{c.Name}.Sanitize() + " " + typ
		if !c.Nullable {
			def += " NOT NULL"
		}
		cols = append(cols, def)
	}
	tableSQL = fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", ident.Sanitize(), strings.Join(cols, ", "))
	return schemaSQL, tableSQL, nil
}

func columnType(t model.ColumnType) (string, error) {
	switch t {
	case model.TypeText:
		return "TEXT", nil
	case model.TypeBigint:
		return "BIGINT", nil
	case model.TypeInt:
		return "INTEGER", nil
	case model.TypeDouble:
		return "DOUBLE PRECISION", nil
	case model.TypeTimestamp:
		return "TIMESTAMPTZ", nil
	default:
		return "", fmt.Errorf("unsupported column type %q", t)
	}
}

// tableIdent splits "schema.table"; anything else is one identifier.
func tableIdent(name string) pgx.Identifier {
	parts := strings.Split(strings.TrimSpace(name), ".")
	if len(parts) == 2 && parts[0] != "" && parts[1] != "" {
		return pgx.Identifier{parts[0], parts[1]}
	}
	return pgx.Identifier{name}
}
