// Package metrics is the process-wide metrics facade. Pipeline code records
// through the package functions; cmd/ picks the backend once at startup.
package metrics

import (
	"sync"
	"time"
)

// Labels are metric dimensions, e.g. {"step": "songs", "status": "ok"}.
type Labels map[string]string

// Backend receives every observation. Implementations must be safe for
// concurrent use.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
}

// Metric names understood by the bundled backends.
const (
	StepTotal           = "etl_step_total"
	StepDurationSeconds = "etl_step_duration_seconds"
	RecordsTotal        = "etl_records_total"
	TableRowsTotal      = "etl_table_rows_total"
	JoinDroppedTotal    = "etl_join_dropped_total"
)

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs b. A nil b restores the no-op backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		b = nopBackend{}
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

func IncCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

// Flush pushes whatever the installed backend buffered.
func Flush() error { return current().Flush() }

// RecordStep counts one finished step and observes its duration.
// status is "ok" when err is nil, "error" otherwise.
func RecordStep(step string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	l := Labels{"step": step, "status": status}
	IncCounter(StepTotal, 1, l)
	ObserveHistogram(StepDurationSeconds, time.Since(start).Seconds(), l)
}

// RecordRecords counts records by kind: "catalog", "events", "malformed", ...
func RecordRecords(kind string, n int) {
	if n <= 0 {
		return
	}
	IncCounter(RecordsTotal, float64(n), Labels{"kind": kind})
}

// RecordTableRows counts rows written to one output table.
func RecordTableRows(table string, n int) {
	if n <= 0 {
		return
	}
	IncCounter(TableRowsTotal, float64(n), Labels{"table": table})
}
