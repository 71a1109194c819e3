// Package metrics collects per-stage mirroring counters and writes them in
// the Prometheus text exposition format for node_exporter's textfile
// collector.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/oskarbraten/squire/internal/downloader"
)

const metricsNamespace = "squire"

// Collector is a prometheus.Collector that collects metrics about a
// mirroring run.
type Collector struct {
	artifacts     *prometheus.CounterVec
	bytesWritten  *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
}

// NewCollector returns a new Collector.
func NewCollector() *Collector {
	return &Collector{
		artifacts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "artifacts_total",
				Help:      "The number of artifacts processed, by stage and outcome.",
			}, []string{"stage", "outcome"},
		),
		bytesWritten: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "bytes_written_total",
				Help:      "The number of bytes committed to the mirror.",
			}, []string{"stage"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "stage_duration_seconds",
				Help:      "The time taken to mirror a stage.",
				Buckets:   []float64{1, 10, 60, 300, 900, 1800, 3600, 7200, 14400},
			}, []string{"stage"},
		),
	}
}

// Observe records one artifact outcome.
func (c *Collector) Observe(stage string, o downloader.Outcome) {
	c.artifacts.WithLabelValues(stage, o.Status.String()).Inc()
	if o.Status == downloader.StatusWritten && o.Bytes > 0 {
		c.bytesWritten.WithLabelValues(stage).Add(float64(o.Bytes))
	}
}

// ObserveStage records how long a stage took.
func (c *Collector) ObserveStage(stage string, d time.Duration) {
	c.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.artifacts.Describe(ch)
	c.bytesWritten.Describe(ch)
	c.stageDuration.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.artifacts.Collect(ch)
	c.bytesWritten.Collect(ch)
	c.stageDuration.Collect(ch)
}

// WriteToTextfile writes the collected metrics to path. The file is replaced
// atomically.
func (c *Collector) WriteToTextfile(path string) error {
	reg := prometheus.NewRegistry()
	if err := reg.Register(c); err != nil {
		return fmt.Errorf("metrics: register: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return fmt.Errorf("metrics: write %s: %w", path, err)
	}
	return nil
}
