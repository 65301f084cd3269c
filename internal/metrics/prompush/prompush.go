// Package prompush implements metrics.Backend on a private Prometheus
// registry that is pushed to a Pushgateway on Flush. Batch jobs never live
// long enough to be scraped.
package prompush

import (
	"errors"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/SumanthReddy1234/datalakes/internal/metrics"
)

type counterSpec struct {
	help   string
	labels []string
}

var counters = map[string]counterSpec{
	metrics.StepTotal:        {"Finished pipeline steps by status.", []string{"step", "status"}},
	metrics.RecordsTotal:     {"Source records by kind.", []string{"kind"}},
	metrics.TableRowsTotal:   {"Rows written per output table.", []string{"table"}},
	metrics.JoinDroppedTotal: {"Playback events with no catalog match.", nil},
}

// Backend pushes a private registry to a Pushgateway.
type Backend struct {
	reg        *prometheus.Registry
	pusher     *push.Pusher
	counters   map[string]*prometheus.CounterVec
	durations  *prometheus.HistogramVec
	labelNames map[string][]string
}

// NewBackend registers the lakeetl collectors on a fresh registry. The
// Pushgateway is contacted only on Flush.
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if strings.TrimSpace(gatewayURL) == "" {
		return nil, errors.New("prompush: empty pushgateway url")
	}
	if jobName == "" {
		jobName = "lakeetl"
	}

	b := &Backend{
		reg:        prometheus.NewRegistry(),
		counters:   make(map[string]*prometheus.CounterVec, len(counters)),
		labelNames: make(map[string][]string, len(counters)+1),
	}

	for name, def := range counters {
		cv := prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: def.help}, def.labels)
		if err := b.reg.Register(cv); err != nil {
			return nil, fmt.Errorf("prompush: register %s: %w", name, err)
		}
		b.counters[name] = cv
		b.labelNames[name] = def.labels
	}

	b.durations = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    metrics.StepDurationSeconds,
		Help:    "Pipeline step wall time.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
	}, []string{"step", "status"})
	if err := b.reg.Register(b.durations); err != nil {
		return nil, fmt.Errorf("prompush: register %s: %w", metrics.StepDurationSeconds, err)
	}
	b.labelNames[metrics.StepDurationSeconds] = []string{"step", "status"}

	b.pusher = push.New(gatewayURL, jobName).Gatherer(b.reg)
	return b, nil
}

// values orders labels to match the vec's label names; missing labels
// become "unknown".
func (b *Backend) values(name string, labels metrics.Labels) []string {
	names := b.labelNames[name]
	out := make([]string, len(names))
	for i, n := range names {
		v := labels[n]
		if v == "" {
			v = "unknown"
		}
		out[i] = v
	}
	return out
}

// IncCounter implements metrics.Backend. Unknown names are ignored.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	cv, ok := b.counters[name]
	if !ok || delta <= 0 {
		return
	}
	cv.WithLabelValues(b.values(name, labels)...).Add(delta)
}

// ObserveHistogram implements metrics.Backend. Unknown names are ignored.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != metrics.StepDurationSeconds || value < 0 {
		return
	}
	b.durations.WithLabelValues(b.values(name, labels)...).Observe(value)
}

// Flush replaces the job's metric group on the Pushgateway.
func (b *Backend) Flush() error {
	if err := b.pusher.Push(); err != nil {
		return fmt.Errorf("prompush: push: %w", err)
	}
	return nil
}

var _ metrics.Backend = (*Backend)(nil)
