// Package metrics exposes Prometheus counters, gauges and histograms for the
// processing pipeline. Scraped from the worker service's /metrics endpoint.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the pipeline's Prometheus metrics.
type Collector struct {
	registry *prometheus.Registry

	JobsCompleted prometheus.Counter
	JobsRetried   prometheus.Counter
	JobsDead      prometheus.Counter
	JobsReaped    prometheus.Counter
	LeaseFenced   prometheus.Counter

	JobsInFlight prometheus.Gauge

	ProcessingDuration prometheus.Histogram
	PointsWritten      prometheus.Counter
}

// NewCollector creates and registers the pipeline metrics on a private
// registry so tests can build collectors independently.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		JobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fieldlens_jobs_completed_total",
			Help: "Number of jobs acked as succeeded.",
		}),
		JobsRetried: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fieldlens_jobs_retried_total",
			Help: "Number of retryable job failures.",
		}),
		JobsDead: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fieldlens_jobs_dead_total",
			Help: "Number of jobs dead-lettered after exhausting attempts or failing terminally.",
		}),
		JobsReaped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fieldlens_jobs_reaped_total",
			Help: "Number of expired leases reclaimed by the reaper.",
		}),
		LeaseFenced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fieldlens_lease_fenced_total",
			Help: "Number of completion reports rejected because the lease was no longer owned.",
		}),
		JobsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fieldlens_jobs_in_flight",
			Help: "Jobs currently being processed by this worker.",
		}),
		ProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fieldlens_job_processing_seconds",
			Help:    "Wall time of one job's processing, fetch through result write.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		PointsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fieldlens_points_written_total",
			Help: "Time-series points written to the result sink.",
		}),
	}

	registry.MustRegister(
		c.JobsCompleted,
		c.JobsRetried,
		c.JobsDead,
		c.JobsReaped,
		c.LeaseFenced,
		c.JobsInFlight,
		c.ProcessingDuration,
		c.PointsWritten,
	)

	return c
}

// Handler serves the collector's registry in Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
