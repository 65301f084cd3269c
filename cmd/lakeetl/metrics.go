package main

import (
	"context"
	"fmt"
	"log"

	"github.com/SumanthReddy1234/datalakes/internal/config"
	"github.com/SumanthReddy1234/datalakes/internal/metrics"
	"github.com/SumanthReddy1234/datalakes/internal/metrics/datadog"
	"github.com/SumanthReddy1234/datalakes/internal/metrics/prompush"
)

// metricsBackend is a backend that owns a background flush loop.
type metricsBackend interface {
	metrics.Backend
	Close() error
}

// Seams for tests.
var (
	newDatadogBackend = func(ctx context.Context, opts datadog.Options) (metricsBackend, error) {
		return datadog.NewBackend(ctx, opts)
	}
	newPushBackend = func(jobName, gatewayURL string) (metrics.Backend, error) {
		return prompush.NewBackend(jobName, gatewayURL)
	}
	setMetricsBackend = metrics.SetBackend
	flushMetrics      = metrics.Flush
	logPrintf         = log.Printf
)

// initMetrics wires the configured backend into the metrics package. The
// returned cleanup is never nil and must run once after the job.
func initMetrics(ctx context.Context, jobName string, m config.Metrics) (func(), error) {
	noop := func() {}

	switch m.Backend {
	case "", "none", "noop":
		return noop, nil

	case "pushgateway", "prom":
		b, err := newPushBackend(jobName, m.PushgatewayURL)
		if err != nil {
			return noop, fmt.Errorf("metrics: init pushgateway backend: %w", err)
		}
		setMetricsBackend(b)
		return func() {
			if err := flushMetrics(); err != nil {
				logPrintf("metrics: pushgateway flush error: %v", err)
			}
			setMetricsBackend(nil)
		}, nil

	case "datadog", "dd":
		b, err := newDatadogBackend(ctx, datadog.Options{
			JobName:    jobName,
			Tags:       datadog.ParseTagsCSV(m.Tags),
			FlushEvery: m.FlushEvery,
		})
		if err != nil {
			return noop, fmt.Errorf("metrics: init datadog backend: %w", err)
		}
		setMetricsBackend(b)
		return func() {
			// Close stops the flush loop and submits what is left.
			if err := b.Close(); err != nil {
				logPrintf("metrics: datadog close error: %v", err)
			}
			setMetricsBackend(nil)
		}, nil

	default:
		return noop, fmt.Errorf("unknown metrics backend %q (want none|pushgateway|datadog)", m.Backend)
	}
}
