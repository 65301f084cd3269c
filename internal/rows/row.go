// Package rows defines the positional row shared by the JSON loader and the
// record decoders, plus the canonical row keys used to drop duplicate rows.
package rows

import "sync"

// Row is a pooled positional record aligned to the column list it was decoded
// against.
//
// Ownership contract:
//   - Exactly one goroutine owns a Row at a time.
//   - A Row may be passed downstream via channels (ownership transfer).
//   - The final consumer (the record decoder) calls Free once it has copied
//     every value it needs out of r.V.
//
// On cancellation paths use Drop instead of Free so a row that may still be
// observed by an unwinding producer is never handed out again.
type Row struct {
	V      []any
	Line   int    // 1-based record number within Source
	Source string // object key the record came from
}

var rowPool sync.Pool

// GetRow returns a pooled Row with len(V) == colCount and every value nil.
func GetRow(colCount int) *Row {
	if v := rowPool.Get(); v != nil {
		r := v.(*Row)
		if cap(r.V) < colCount {
			r.V = make([]any, colCount)
		}
		r.V = r.V[:colCount]
		for i := range r.V {
			r.V[i] = nil
		}
		r.Line = 0
		r.Source = ""
		return r
	}
	return &Row{V: make([]any, colCount)}
}

// Free returns the Row to the pool.
func (r *Row) Free() {
	rowPool.Put(r)
}

// Drop discards the Row without returning it to the pool.
func (r *Row) Drop() {
	r.V = nil
	r.Line = 0
	r.Source = ""
}
