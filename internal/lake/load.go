package lake

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	parserjson "github.com/SumanthReddy1234/datalakes/internal/parser/json"
	"github.com/SumanthReddy1234/datalakes/internal/rows"
)

// ErrNoInput is returned when a load pattern matches no objects.
var ErrNoInput = errors.New("no input objects")

// LoadOptions tunes LoadJSON.
type LoadOptions struct {
	Parser parserjson.Options
	// Encoding is the source charset; empty means UTF-8.
	Encoding string
	// OnParseErr observes every skipped record. It is called from several
	// goroutines at once.
	OnParseErr func(source string, line int, err error)
}

// Dataset is the result of LoadJSON. Rows are ordered by source key, then by
// line. The caller owns the rows and should Free them once decoded.
type Dataset struct {
	Columns   []string
	Rows      []*rows.Row
	Objects   int
	Malformed int
}

// LoadJSON reads every input object matching pattern and decodes it into rows
// aligned to columns. Objects are read in parallel up to ReadWorkers.
func (s *Session) LoadJSON(ctx context.Context, pattern string, columns []string, opts LoadOptions) (*Dataset, error) {
	start := time.Now()

	keys, err := s.In.Glob(ctx, pattern)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("lake: %s: %w", s.In.URI(pattern), ErrNoInput)
	}

	var malformed atomic.Int64
	perObject := make([][]*rows.Row, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.ReadWorkers)
	for i, key := range keys {
		g.Go(func() error {
			onErr := func(line int, err error) {
				malformed.Add(1)
				if opts.OnParseErr != nil {
					opts.OnParseErr(key, line, err)
				}
			}
			rs, err := s.loadObject(gctx, key, columns, opts, onErr)
			if err != nil {
				return err
			}
			perObject[i] = rs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, rs := range perObject {
			for _, r := range rs {
				r.Drop()
			}
		}
		return nil, err
	}

	total := 0
	for _, rs := range perObject {
		total += len(rs)
	}
	ds := &Dataset{
		Columns:   columns,
		Rows:      make([]*rows.Row, 0, total),
		Objects:   len(keys),
		Malformed: int(malformed.Load()),
	}
	for _, rs := range perObject {
		ds.Rows = append(ds.Rows, rs...)
	}

	s.verbosef("stage=load ok pattern=%s objects=%d records=%d malformed=%d duration=%s",
		pattern, ds.Objects, len(ds.Rows), ds.Malformed, durMS(start))
	return ds, nil
}

func (s *Session) loadObject(
	ctx context.Context,
	key string,
	columns []string,
	opts LoadOptions,
	onParseErr func(line int, err error),
) ([]*rows.Row, error) {
	rc, err := s.In.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	r, err := parserjson.DecodeCharset(rc, opts.Encoding)
	if err != nil {
		return nil, err
	}

	out := make(chan *rows.Row, 64)
	errc := make(chan error, 1)
	go func() {
		errc <- parserjson.StreamJSONRows(ctx, r, columns, opts.Parser, out, onParseErr)
		close(out)
	}()

	var got []*rows.Row
	for row := range out {
		row.Source = key
		got = append(got, row)
	}
	if err := <-errc; err != nil {
		for _, row := range got {
			row.Drop()
		}
		return nil, fmt.Errorf("lake: load %s: %w", s.In.URI(key), err)
	}
	return got, nil
}
