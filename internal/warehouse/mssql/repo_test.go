package mssql

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/SumanthReddy1234/datalakes/internal/model"
)

type result int64

func (r result) LastInsertId() (int64, error) { return 0, nil }
func (r result) RowsAffected() (int64, error) { return int64(r), nil }

type fakeTx struct {
	stmts      []string
	argCounts  []int
	failOn     string
	committed  bool
	rolledBack bool
}

func (f *fakeTx) ExecContext(ctx context.Context, q string, args ...any) (sql.Result, error) {
	if f.failOn != "" && strings.HasPrefix(q, f.failOn) {
		return nil, errors.New("boom")
	}
	f.stmts = append(f.stmts, q)
	f.argCounts = append(f.argCounts, len(args))
	return result(strings.Count(q, "(@p")), nil
}

func (f *fakeTx) Commit() error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback() error {
	if !f.committed {
		f.rolledBack = true
	}
	return nil
}

type fakeDB struct {
	tx    *fakeTx
	execs []string
}

func (f *fakeDB) ExecContext(ctx context.Context, q string, args ...any) (sql.Result, error) {
	f.execs = append(f.execs, q)
	return result(0), nil
}
func (f *fakeDB) BeginTx(ctx context.Context, opts *sql.TxOptions) (txConn, error) { return f.tx, nil }
func (f *fakeDB) Close() error                                                     { return nil }

func TestBuildCreateSQL(t *testing.T) {
	got, err := buildCreateSQL(model.UsersDef.WithName("dbo.users"))
	if err != nil {
		t.Fatalf("buildCreateSQL: %v", err)
	}
	want := "IF OBJECT_ID(N'dbo.users', N'U') IS NULL BEGIN CREATE TABLE [dbo].[users] ([user_id] NVARCHAR(MAX) NULL, [first_name] NVARCHAR(MAX) NULL, [last_name] NVARCHAR(MAX) NULL, [gender] NVARCHAR(MAX) NULL, [level] NVARCHAR(MAX) NULL); END;"
	if got != want {
		t.Fatalf("buildCreateSQL()=\n%s\nwant\n%s", got, want)
	}
}

func TestBuildBulkInsertSQL_Placeholders(t *testing.T) {
	q, args := buildBulkInsertSQL("songs", []string{"a", "b"}, [][]any{{1, 2}, {3, nil}})
	if q != "INSERT INTO [songs] ([a], [b]) VALUES (@p1, @p2), (@p3, @p4)" {
		t.Fatalf("q=%s", q)
	}
	if len(args) != 4 || args[2] != 3 || args[3] != nil {
		t.Fatalf("args=%v", args)
	}
}

func TestMSSQLIdent_Escapes(t *testing.T) {
	if got := mssqlIdent("we]ird"); got != "[we]]ird]" {
		t.Fatalf("mssqlIdent()=%s", got)
	}
}

func TestReplaceRows_ChunksUnderParamLimit(t *testing.T) {
	tx := &fakeTx{}
	r := &Repo{db: &fakeDB{tx: tx}, batch: 10000}

	rows := make([][]any, 450)
	for i := range rows {
		rows[i] = []any{"S", "T", 1.0, int64(2000), "A"}
	}
	n, err := r.ReplaceRows(context.Background(), model.SongsDef, rows)
	if err != nil {
		t.Fatalf("ReplaceRows: %v", err)
	}
	if n != 450 {
		t.Fatalf("n=%d, want 450", n)
	}
	if tx.stmts[0] != "DELETE FROM [songs]" {
		t.Fatalf("first stmt=%s", tx.stmts[0])
	}
	// 5 columns -> 400 rows per statement.
	if len(tx.stmts) != 3 || tx.argCounts[1] != 2000 || tx.argCounts[2] != 250 {
		t.Fatalf("stmts=%d argCounts=%v", len(tx.stmts), tx.argCounts)
	}
	if !tx.committed {
		t.Fatalf("not committed")
	}
}

func TestReplaceRows_InsertErrorRollsBack(t *testing.T) {
	tx := &fakeTx{failOn: "INSERT"}
	r := &Repo{db: &fakeDB{tx: tx}, batch: 500}
	if _, err := r.ReplaceRows(context.Background(), model.ArtistsDef, [][]any{{"A", nil, nil, nil, nil}}); err == nil {
		t.Fatalf("ReplaceRows err=nil, want insert error")
	}
	if tx.committed || !tx.rolledBack {
		t.Fatalf("committed=%v rolledBack=%v", tx.committed, tx.rolledBack)
	}
}

func TestEnsureTables(t *testing.T) {
	db := &fakeDB{}
	r := &Repo{db: db}
	if err := r.EnsureTables(context.Background(), []model.TableDef{model.SongsDef, model.ArtistsDef}); err != nil {
		t.Fatalf("EnsureTables: %v", err)
	}
	if len(db.execs) != 2 || !strings.Contains(db.execs[0], "CREATE TABLE [songs]") {
		t.Fatalf("execs=%v", db.execs)
	}
}
