// Package metrics exposes export counters on a private Prometheus registry.
//
// Metrics:
//   - ldifexport_entries_total: entries by decision (include, exclude, error)
//   - ldifexport_attributes_dropped_total: attributes removed by retention
//   - ldifexport_bytes_written_total: bytes accepted by the raw sink
//   - ldifexport_export_duration_seconds: wall time per export run
//   - ldifexport_last_export_timestamp_seconds: completion time of the last run
//   - ldifexport_build_info: constant 1, labelled with version and commit
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/ldifexport/internal/version"
)

const namespace = "ldifexport"

// Decision label values.
const (
	DecisionInclude = "include"
	DecisionExclude = "exclude"
	DecisionError   = "error"
)

// Collector records export metrics. A nil *Collector is valid and records
// nothing.
type Collector struct {
	registry *prometheus.Registry

	entriesTotal      *prometheus.CounterVec
	attributesDropped prometheus.Counter
	bytesWritten      prometheus.Counter
	duration          prometheus.Histogram
	lastExport        prometheus.Gauge
	buildInfo         *prometheus.GaugeVec
}

// NewCollector creates a collector and registers its metrics. If registry is
// nil a fresh registry is used.
func NewCollector(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	c := &Collector{
		registry: registry,
		entriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "entries_total",
				Help:      "Total number of entries processed, by selection decision",
			},
			[]string{"decision"},
		),
		attributesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attributes_dropped_total",
			Help:      "Total number of attributes removed by the retention rules",
		}),
		bytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_written_total",
			Help:      "Total number of bytes written to export destinations",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "export_duration_seconds",
			Help:      "Duration of export runs in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8), // 10ms to ~2.7min
		}),
		lastExport: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_export_timestamp_seconds",
			Help:      "Unix time of the last completed export",
		}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build information of the exporting binary",
		}, []string{"version", "commit", "goversion"}),
	}

	registry.MustRegister(
		c.entriesTotal,
		c.attributesDropped,
		c.bytesWritten,
		c.duration,
		c.lastExport,
		c.buildInfo,
	)

	info := version.GetInfo()
	c.buildInfo.WithLabelValues(info.Version, info.GitCommit, info.GoVersion).Set(1)

	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}

	return c.registry
}

// RecordDecision counts one entry under decision.
func (c *Collector) RecordDecision(decision string) {
	if c == nil {
		return
	}

	c.entriesTotal.WithLabelValues(decision).Inc()
}

// RecordDropped counts attributes removed from an included entry.
func (c *Collector) RecordDropped(n int) {
	if c == nil || n <= 0 {
		return
	}

	c.attributesDropped.Add(float64(n))
}

// RecordExport records a finished run.
func (c *Collector) RecordExport(bytes int64, took time.Duration, at time.Time) {
	if c == nil {
		return
	}

	if bytes > 0 {
		c.bytesWritten.Add(float64(bytes))
	}

	c.duration.Observe(took.Seconds())
	c.lastExport.Set(float64(at.Unix()))
}

// WriteTextfile writes the registry in the text exposition format for the
// node_exporter textfile collector.
func (c *Collector) WriteTextfile(path string) error {
	if c == nil {
		return nil
	}

	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}

	return nil
}
