package json

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/SumanthReddy1234/datalakes/internal/rows"
)

// Options controls how decoded objects become positional rows.
type Options struct {
	// HeaderMap maps an original JSON key to the column name it feeds.
	HeaderMap map[string]string
	// ArrayJoinSeparator flattens arrays of strings into one scalar. Default ",".
	ArrayJoinSeparator string
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// StreamJSONObjects decodes every JSON object in r and hands it to emit along
// with the 1-based line on which the object starts.
//
// Accepted layouts, in any mix within one input:
//   - one object per line (JSONL) or a single, possibly pretty-printed, object;
//   - a root array of objects, streamed element by element;
//   - an envelope object whose only role is to hold an array of objects.
//
// Decoding is lenient. A malformed record is reported through onParseErr with
// its line number and decoding resumes on the next line. Only context
// cancellation, read failures and errors returned by emit stop the stream.
func StreamJSONObjects(
	ctx context.Context,
	r io.Reader,
	emit func(obj map[string]any, line int) error,
	onParseErr func(line int, err error),
) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("json: read input: %w", err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)
	lines := newLineIndex(data)

	report := func(off int, err error) {
		if onParseErr != nil {
			onParseErr(lines.lineAt(off), err)
		}
	}

	pos := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		pos = skipSpace(data, pos)
		if pos >= len(data) {
			return nil
		}

		if data[pos] == '[' {
			next, err := streamArrayOfObjects(ctx, data, pos, lines, emit, report)
			if err != nil {
				return err
			}
			pos = next
			continue
		}

		dec := newDecoder(data[pos:])
		var raw any
		if err := dec.Decode(&raw); err != nil {
			report(pos, fmt.Errorf("json: decode record: %w", err))
			pos = nextLine(data, pos)
			continue
		}
		start := pos
		pos += int(dec.InputOffset())

		obj, ok := raw.(map[string]any)
		if !ok {
			report(start, fmt.Errorf("json: record is %T, want object", raw))
			continue
		}
		line := lines.lineAt(start)
		if elems, ok := envelopeRecords(obj); ok {
			for _, e := range elems {
				if err := emit(e, line); err != nil {
					return err
				}
			}
			continue
		}
		if err := emit(obj, line); err != nil {
			return err
		}
	}
}

// StreamJSONRows decodes r with StreamJSONObjects and streams each object as a
// *rows.Row aligned to columns into out. Row.Line carries the line on which
// the record starts. Keys missing from a record become nil values.
func StreamJSONRows(
	ctx context.Context,
	r io.Reader,
	columns []string,
	opts Options,
	out chan<- *rows.Row,
	onParseErr func(line int, err error),
) error {
	rev := reverseHeaderMap(opts.HeaderMap)
	sep := strings.TrimSpace(opts.ArrayJoinSeparator)
	if sep == "" {
		sep = ","
	}

	emit := func(obj map[string]any, line int) error {
		row := rows.GetRow(len(columns))
		row.Line = line
		recordToRow(obj, columns, rev, sep, row.V)

		select {
		case out <- row:
			return nil
		case <-ctx.Done():
			row.Drop()
			return ctx.Err()
		}
	}
	return StreamJSONObjects(ctx, r, emit, onParseErr)
}

// streamArrayOfObjects streams the elements of the root array starting at
// data[pos] == '['. It returns the offset just past the array. When an element
// fails to decode the rest of its line is skipped and line-wise decoding
// takes over.
func streamArrayOfObjects(
	ctx context.Context,
	data []byte,
	pos int,
	lines lineIndex,
	emit func(map[string]any, int) error,
	report func(off int, err error),
) (int, error) {
	dec := newDecoder(data[pos:])
	if _, err := dec.Token(); err != nil {
		report(pos, fmt.Errorf("json: read array start: %w", err))
		return nextLine(data, pos), nil
	}

	for dec.More() {
		if err := ctx.Err(); err != nil {
			return pos, err
		}
		elemStart := skipSpaceAndComma(data, pos+int(dec.InputOffset()))

		var raw any
		if err := dec.Decode(&raw); err != nil {
			report(elemStart, fmt.Errorf("json: decode array element: %w", err))
			return nextLine(data, elemStart), nil
		}
		if raw == nil {
			continue
		}
		obj, ok := raw.(map[string]any)
		if !ok {
			report(elemStart, fmt.Errorf("json: array element is %T, want object", raw))
			continue
		}
		if err := emit(obj, lines.lineAt(elemStart)); err != nil {
			return pos, err
		}
	}

	end := pos + int(dec.InputOffset())
	if tok, err := dec.Token(); err != nil || tok != json.Delim(']') {
		if err == nil {
			err = fmt.Errorf("got %v", tok)
		}
		report(end, fmt.Errorf("json: read array end: %w", err))
		return nextLine(data, end), nil
	}
	return pos + int(dec.InputOffset()), nil
}

// envelopeRecords reports whether obj is an envelope: exactly one field holds a
// non-empty array and every element of it is an object. Records with scalar
// fields next to the array still qualify; only the array is streamed.
func envelopeRecords(obj map[string]any) ([]map[string]any, bool) {
	var found []any
	for _, v := range obj {
		arr, ok := v.([]any)
		if !ok {
			continue
		}
		if found != nil {
			return nil, false
		}
		found = arr
	}
	if len(found) == 0 {
		return nil, false
	}
	out := make([]map[string]any, 0, len(found))
	for _, e := range found {
		m, ok := e.(map[string]any)
		if !ok {
			return nil, false
		}
		out = append(out, m)
	}
	return out, true
}

func newDecoder(b []byte) *json.Decoder {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	return dec
}

func skipSpace(data []byte, pos int) int {
	for pos < len(data) {
		switch data[pos] {
		case ' ', '\t', '\r', '\n':
			pos++
		default:
			return pos
		}
	}
	return pos
}

func skipSpaceAndComma(data []byte, pos int) int {
	for pos < len(data) {
		switch data[pos] {
		case ' ', '\t', '\r', '\n', ',':
			pos++
		default:
			return pos
		}
	}
	return pos
}

func nextLine(data []byte, pos int) int {
	if i := bytes.IndexByte(data[pos:], '\n'); i >= 0 {
		return pos + i + 1
	}
	return len(data)
}

// lineIndex holds the offsets of every '\n' in the input.
type lineIndex []int

func newLineIndex(data []byte) lineIndex {
	var idx lineIndex
	for i, c := range data {
		if c == '\n' {
			idx = append(idx, i)
		}
	}
	return idx
}

// lineAt returns the 1-based line containing offset off.
func (l lineIndex) lineAt(off int) int {
	return sort.SearchInts(l, off) + 1
}

// reverseHeaderMap builds column->original for lookup without per-record map copies.
func reverseHeaderMap(h map[string]string) map[string]string {
	out := make(map[string]string, len(h))
	for orig, norm := range h {
		if orig == "" || norm == "" {
			continue
		}
		out[norm] = orig
	}
	return out
}

// recordToRow fills dst (len(columns)) from obj. A column is looked up first
// under its own name, then under the original key mapped onto it.
func recordToRow(obj map[string]any, columns []string, rev map[string]string, sep string, dst []any) {
	for i, col := range columns {
		v, ok := obj[col]
		if !ok {
			if orig, ok2 := rev[col]; ok2 {
				v = obj[orig]
			}
		}
		dst[i] = normalizeScalarJSONValue(v, sep)
	}
}

// normalizeScalarJSONValue flattens array-of-strings to a joined string.
// Everything else passes through untouched.
func normalizeScalarJSONValue(v any, sep string) any {
	switch t := v.(type) {
	case nil:
		return nil

	case []any:
		if len(t) == 0 {
			return ""
		}
		ss := make([]string, 0, len(t))
		for _, it := range t {
			if it == nil {
				continue
			}
			s, ok := it.(string)
			if !ok {
				return v // mixed types; keep original
			}
			ss = append(ss, s)
		}
		return strings.Join(ss, sep)

	default:
		return v
	}
}
