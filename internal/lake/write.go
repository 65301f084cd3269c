package lake

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/SumanthReddy1234/datalakes/internal/model"
	"github.com/SumanthReddy1234/datalakes/internal/objstore"
)

// SuccessMarker is written into a table directory after all its part files.
const SuccessMarker = "_SUCCESS"

// TableWrite is one table to (re)write.
type TableWrite struct {
	Def  model.TableDef
	Rows []model.Row
}

// WriteStats describes a finished table write.
type WriteStats struct {
	Rows       int
	Partitions int
	Files      int
}

type partition struct {
	dir  string
	recs []any
}

// WriteTable overwrites the table: everything under its prefix is removed,
// one part file is written per partition directory (in parallel up to
// WriteWorkers), then the success marker. Partition columns are encoded in
// the directory names only.
func (s *Session) WriteTable(ctx context.Context, w TableWrite) (WriteStats, error) {
	def := w.Def
	start := time.Now()

	parts, err := groupPartitions(def, w.Rows)
	if err != nil {
		return WriteStats{}, err
	}

	if err := s.Out.RemoveAll(ctx, def.Name); err != nil {
		return WriteStats{}, fmt.Errorf("lake: clear table %s: %w", def.Name, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.WriteWorkers)
	for i, p := range parts {
		g.Go(func() error {
			return s.writePart(gctx, def, i, p)
		})
	}
	if err := g.Wait(); err != nil {
		return WriteStats{}, err
	}

	if err := s.Out.Put(ctx, objstore.Join(def.Name, SuccessMarker), strings.NewReader("")); err != nil {
		return WriteStats{}, fmt.Errorf("lake: mark %s complete: %w", def.Name, err)
	}

	st := WriteStats{Rows: len(w.Rows), Files: len(parts)}
	if len(def.PartitionBy) > 0 {
		st.Partitions = len(parts)
	}
	s.verbosef("stage=write ok table=%s location=%s rows=%d files=%d duration=%s",
		def.Name, s.Out.URI(def.Name), st.Rows, st.Files, durMS(start))
	return st, nil
}

// groupPartitions buckets rows by partition directory, sorted by directory.
// An unpartitioned table always gets exactly one part file, empty or not.
func groupPartitions(def model.TableDef, rs []model.Row) ([]partition, error) {
	if len(def.PartitionBy) == 0 {
		p := partition{recs: make([]any, len(rs))}
		for i, r := range rs {
			p.recs[i] = r.FileRecord()
		}
		return []partition{p}, nil
	}

	byDir := make(map[string]*partition)
	for _, r := range rs {
		dir, err := PartitionPath(def.PartitionBy, r.PartitionValues())
		if err != nil {
			return nil, fmt.Errorf("lake: table %s: %w", def.Name, err)
		}
		p, ok := byDir[dir]
		if !ok {
			p = &partition{dir: dir}
			byDir[dir] = p
		}
		p.recs = append(p.recs, r.FileRecord())
	}

	out := make([]partition, 0, len(byDir))
	for _, p := range byDir {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].dir < out[j].dir })
	return out, nil
}

func (s *Session) writePart(ctx context.Context, def model.TableDef, i int, p partition) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name := fmt.Sprintf("part-%05d-%s-c000%s", i, s.RunID, s.codec.ext)
	tmp := filepath.Join(s.tempDir, fmt.Sprintf("%s-%s", def.Name, name))
	defer os.Remove(tmp)

	if err := writeParquetFile(tmp, def.NewFile(), p.recs, s.codec, s.cfg.ParquetParallelism); err != nil {
		return fmt.Errorf("lake: table %s: %w", def.Name, err)
	}

	f, err := os.Open(tmp)
	if err != nil {
		return fmt.Errorf("lake: reopen %s: %w", tmp, err)
	}
	defer f.Close()

	key := objstore.Join(def.Name, p.dir, name)
	if err := s.Out.Put(ctx, key, f); err != nil {
		return fmt.Errorf("lake: upload %s: %w", key, err)
	}
	s.verbosef("stage=write part table=%s key=%s rows=%d", def.Name, key, len(p.recs))
	return nil
}
