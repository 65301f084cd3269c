package lakequery

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/SumanthReddy1234/datalakes/internal/lake"
	"github.com/SumanthReddy1234/datalakes/internal/model"
	"github.com/SumanthReddy1234/datalakes/internal/objstore"
)

func strp(s string) *string   { return &s }
func i64p(v int64) *int64     { return &v }
func f64p(v float64) *float64 { return &v }

func writeLake(t *testing.T) string {
	t.Helper()
	out := t.TempDir()
	sess, err := lake.NewSession(context.Background(), lake.Config{
		Input:   t.TempDir(),
		Output:  out,
		TempDir: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer sess.Close()

	songs := []model.Row{
		model.SongRow{SongID: strp("S1"), Title: strp("Song A"), Duration: f64p(180), Year: i64p(2000), ArtistID: strp("E1")},
		model.SongRow{SongID: strp("S2"), Title: strp("Song B"), Duration: f64p(90), Year: i64p(2001), ArtistID: strp("E1")},
	}
	if _, err := sess.WriteTable(context.Background(), lake.TableWrite{Def: model.SongsDef, Rows: songs}); err != nil {
		t.Fatalf("WriteTable songs: %v", err)
	}
	users := []model.Row{model.UserRow{UserID: strp("U1"), Level: strp("free")}}
	if _, err := sess.WriteTable(context.Background(), lake.TableWrite{Def: model.UsersDef, Rows: users}); err != nil {
		t.Fatalf("WriteTable users: %v", err)
	}
	return out
}

func TestOpen_PreviewAndQuery(t *testing.T) {
	out := writeLake(t)

	c, err := Open(context.Background(), Config{
		Output: out,
		Tables: []model.TableDef{model.SongsDef, model.UsersDef, model.TimeDef},
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer c.Close()

	if got := strings.Join(c.Views(), ","); got != "songs,users" {
		t.Fatalf("Views()=%s, want songs,users", got)
	}
	if _, ok := c.Missing()["time"]; !ok {
		t.Fatalf("Missing()=%v, want time", c.Missing())
	}

	res, err := c.Query(context.Background(), "SELECT song_id, year, artist_id FROM songs ORDER BY song_id")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(res.Rows) != 2 || res.Rows[0][0] != "S1" || formatValue(res.Rows[1][1]) != "2001" || res.Rows[1][2] != "E1" {
		t.Fatalf("rows=%v", res.Rows)
	}

	prev, err := c.Preview(context.Background(), "users", 0)
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if strings.Join(prev.Columns, ",") != "user_id,first_name,last_name,gender,level" || len(prev.Rows) != 1 {
		t.Fatalf("preview=%+v", prev)
	}
	if _, err := c.Preview(context.Background(), "time", 5); err == nil {
		t.Fatalf("Preview(time) err=nil, want missing table error")
	}
}

func TestFormatTable(t *testing.T) {
	var buf bytes.Buffer
	res := &Result{Columns: []string{"id", "name"}, Rows: [][]any{{int64(1), nil}, {int64(22), "x"}}}
	if err := FormatTable(&buf, res); err != nil {
		t.Fatalf("FormatTable: %v", err)
	}
	want := "id  name\n1   NULL\n22  x\n(2 rows)\n"
	if buf.String() != want {
		t.Fatalf("FormatTable()=%q, want %q", buf.String(), want)
	}
}

func TestViewSQL(t *testing.T) {
	got := viewSQL(model.SongsDef, "s3://bucket/lake")
	want := `CREATE OR REPLACE VIEW "songs" AS SELECT * FROM read_parquet('s3://bucket/lake/songs/**/*.parquet', hive_partitioning = true)`
	if got != want {
		t.Fatalf("viewSQL()=%s, want %s", got, want)
	}
	if got := viewSQL(model.UsersDef.WithName("o'users"), "/tmp/l"); !strings.Contains(got, `'/tmp/l/o''users/*.parquet'`) {
		t.Fatalf("viewSQL(unpartitioned)=%s", got)
	}
}

func TestDuckLocation(t *testing.T) {
	got, remote, err := duckLocation("s3a://bucket/out/")
	if err != nil || !remote || got != "s3://bucket/out" {
		t.Fatalf("duckLocation(s3a)=%q,%v,%v", got, remote, err)
	}
	dir := t.TempDir()
	got, remote, err = duckLocation("file://" + dir)
	if err != nil || remote || got != filepath.ToSlash(dir) {
		t.Fatalf("duckLocation(file)=%q,%v,%v", got, remote, err)
	}
	if _, _, err := duckLocation("gs://x"); err == nil {
		t.Fatalf("duckLocation(gs) err=nil")
	}
}

func TestSecretSQL(t *testing.T) {
	got := secretSQL(Config{
		Credentials: objstore.Credentials{AccessKeyID: "AK", SecretAccessKey: "s'k"},
		Region:      "us-west-2",
		Endpoint:    "http://localhost:9000",
		PathStyle:   true,
	})
	want := "CREATE OR REPLACE SECRET lake_s3 (TYPE S3, KEY_ID 'AK', SECRET 's''k', REGION 'us-west-2', ENDPOINT 'localhost:9000', USE_SSL false, URL_STYLE 'path')"
	if got != want {
		t.Fatalf("secretSQL()=\n%s\nwant\n%s", got, want)
	}
}
