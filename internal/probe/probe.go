// Package probe samples JSON source records and infers their schema.
//
// Sampling is bounded by a record count, objects are read in key order, and
// malformed records are counted rather than fatal. The inferred schema uses
// the same widening rules as the JSON reader that the output tables were
// modeled on: long and double widen to double, and any other conflict falls
// back to string.
package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	parserjson "github.com/SumanthReddy1234/datalakes/internal/parser/json"
	"github.com/SumanthReddy1234/datalakes/internal/rows"
)

const (
	DefaultMaxRecords  = 1000
	DefaultMaxDistinct = 10000
)

var ErrNoInput = errors.New("probe: no objects match pattern")

var errSampleFull = errors.New("probe: sample full")

// Source is the read side of an object store.
type Source interface {
	Glob(ctx context.Context, pattern string) ([]string, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// Options control sampling.
type Options struct {
	// Pattern selects objects (doublestar syntax, relative to the source).
	Pattern string
	// MaxRecords bounds the sample. Default DefaultMaxRecords.
	MaxRecords int
	// MaxDistinct caps distinct counting per field. Default DefaultMaxDistinct.
	MaxDistinct int
	// Encoding is the source charset; empty means UTF-8.
	Encoding string
}

// FieldStats describes one top-level field across the sample.
type FieldStats struct {
	Name string
	Type DataType
	// Nulls counts records where the field is absent or null.
	Nulls int
	// Values counts records with a non-null value.
	Values   int
	Distinct int
	// Capped is set when Distinct stopped counting at MaxDistinct.
	Capped bool
}

// DistinctRatio is Distinct over Values, 0 when no value was seen.
func (f FieldStats) DistinctRatio() float64 {
	if f.Values == 0 {
		return 0
	}
	return float64(f.Distinct) / float64(f.Values)
}

// Report is the result of Sample.
type Report struct {
	Pattern   string
	Objects   int // objects opened
	Records   int
	Malformed int
	Schema    DataType
	Fields    []FieldStats // sorted by name
}

type fieldAcc struct {
	typ      DataType
	values   int
	distinct map[rows.Key]struct{}
	capped   bool
}

// Sample reads records from src until MaxRecords is reached or the matching
// objects are exhausted.
func Sample(ctx context.Context, src Source, opt Options) (*Report, error) {
	if opt.MaxRecords <= 0 {
		opt.MaxRecords = DefaultMaxRecords
	}
	if opt.MaxDistinct <= 0 {
		opt.MaxDistinct = DefaultMaxDistinct
	}

	keys, err := src.Glob(ctx, opt.Pattern)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoInput, opt.Pattern)
	}

	rep := &Report{Pattern: opt.Pattern, Schema: DataType{Kind: KindStruct}}
	acc := map[string]*fieldAcc{}

	emit := func(obj map[string]any, _ int) error {
		rep.Records++
		rep.Schema = Merge(rep.Schema, structOf(obj))
		for name, v := range obj {
			a := acc[name]
			if a == nil {
				a = &fieldAcc{typ: DataType{Kind: KindNull}, distinct: map[rows.Key]struct{}{}}
				acc[name] = a
			}
			a.typ = Merge(a.typ, TypeOf(v))
			if v == nil {
				continue
			}
			a.values++
			if len(a.distinct) >= opt.MaxDistinct {
				a.capped = true
				continue
			}
			a.distinct[rows.KeyOf(v)] = struct{}{}
		}
		if rep.Records >= opt.MaxRecords {
			return errSampleFull
		}
		return nil
	}

	for _, key := range keys {
		rep.Objects++
		full, err := sampleObject(ctx, src, key, opt.Encoding, emit, func(int, error) { rep.Malformed++ })
		if err != nil {
			return nil, fmt.Errorf("probe: %s: %w", key, err)
		}
		if full {
			break
		}
	}

	rep.Fields = make([]FieldStats, 0, len(acc))
	for name, a := range acc {
		rep.Fields = append(rep.Fields, FieldStats{
			Name:     name,
			Type:     a.typ,
			Nulls:    rep.Records - a.values,
			Values:   a.values,
			Distinct: len(a.distinct),
			Capped:   a.capped,
		})
	}
	sort.Slice(rep.Fields, func(i, j int) bool { return rep.Fields[i].Name < rep.Fields[j].Name })
	return rep, nil
}

func sampleObject(
	ctx context.Context,
	src Source,
	key, encoding string,
	emit func(map[string]any, int) error,
	onParseErr func(int, error),
) (bool, error) {
	rc, err := src.Open(ctx, key)
	if err != nil {
		return false, err
	}
	defer rc.Close()

	r, err := parserjson.DecodeCharset(rc, encoding)
	if err != nil {
		return false, err
	}
	err = parserjson.StreamJSONObjects(ctx, r, emit, onParseErr)
	if errors.Is(err, errSampleFull) {
		return true, nil
	}
	return false, err
}

// FormatSchema renders the sampled schema as a printSchema tree.
func FormatSchema(rep *Report) string {
	var b strings.Builder
	b.WriteString("root\n")
	writeChildren(&b, rep.Schema, 0)
	return strings.TrimRight(b.String(), "\n")
}

// FormatReport renders the schema tree followed by per-field null and
// uniqueness stats, least unique first.
func FormatReport(rep *Report) string {
	if rep.Records == 0 {
		return fmt.Sprintf("pattern=%s objects=%d: no records sampled", rep.Pattern, rep.Objects)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "pattern=%s objects=%d records=%d malformed=%d\n", rep.Pattern, rep.Objects, rep.Records, rep.Malformed)
	b.WriteString(FormatSchema(rep))
	b.WriteString("\n\n")

	fields := append([]FieldStats(nil), rep.Fields...)
	sort.SliceStable(fields, func(i, j int) bool {
		ri, rj := fields[i].DistinctRatio(), fields[j].DistinctRatio()
		if ri == rj {
			return fields[i].Name < fields[j].Name
		}
		return ri < rj
	})

	fmt.Fprintf(&b, "%-18s\t%-8s\t%-6s\t%-7s\tratio\tcapped\n", "field", "type", "nulls", "unique")
	for _, f := range fields {
		fmt.Fprintf(&b, "%-18s\t%-8s\t%-6d\t%-7d\t%.1f%%\t%t\n",
			f.Name, f.Type.Kind, f.Nulls, f.Distinct, f.DistinctRatio()*100, f.Capped)
	}
	return strings.TrimRight(b.String(), "\n")
}
