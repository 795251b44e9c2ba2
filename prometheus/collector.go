// Package prometheus exports Retriever metrics through the Prometheus client
// library. Collector satisfies bowgo.MetricsCollector.
package prometheus

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records Retriever operations into Prometheus metrics.
type Collector struct {
	registry *prometheus.Registry

	operations     *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	results        *prometheus.HistogramVec
	batchKeyframes prometheus.Counter
	snapshotBytes  *prometheus.CounterVec
}

// Option configures a Collector.
type Option func(*options)

type options struct {
	namespace string
	registry  *prometheus.Registry
}

// WithNamespace prefixes every metric name. Defaults to "bowgo".
func WithNamespace(ns string) Option {
	return func(o *options) {
		o.namespace = ns
	}
}

// WithRegistry registers the metrics with reg instead of a fresh registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) {
		o.registry = reg
	}
}

// New creates a Collector and registers its metrics.
func New(opts ...Option) (*Collector, error) {
	o := options{namespace: "bowgo"}
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		o.registry = prometheus.NewRegistry()
	}

	c := &Collector{
		registry: o.registry,
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: o.namespace,
				Name:      "operations_total",
				Help:      "Total operations by operation and status (ok, error).",
			},
			[]string{"operation", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: o.namespace,
				Name:      "operation_duration_seconds",
				Help:      "Operation latency in seconds.",
				Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5},
			},
			[]string{"operation"},
		),
		results: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: o.namespace,
				Name:      "results_count",
				Help:      "Keyframes returned per retrieval and matches per match call.",
				Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100, 250, 500},
			},
			[]string{"operation"},
		),
		batchKeyframes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: o.namespace,
				Name:      "batch_keyframes_total",
				Help:      "Keyframes submitted through batch adds.",
			},
		),
		snapshotBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: o.namespace,
				Name:      "snapshot_bytes_total",
				Help:      "Snapshot bytes written and read.",
			},
			[]string{"operation"},
		),
	}

	for _, m := range []prometheus.Collector{c.operations, c.duration, c.results, c.batchKeyframes, c.snapshotBytes} {
		if err := c.registry.Register(m); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (c *Collector) observe(op string, d time.Duration, err error) {
	c.operations.WithLabelValues(op, status(err)).Inc()
	c.duration.WithLabelValues(op).Observe(d.Seconds())
}

// RecordAdd records a keyframe insertion.
func (c *Collector) RecordAdd(d time.Duration, err error) {
	c.observe("add", d, err)
}

// RecordBatchAdd records a batch insertion of count keyframes.
func (c *Collector) RecordBatchAdd(count int, d time.Duration, err error) {
	c.observe("batch_add", d, err)
	c.batchKeyframes.Add(float64(count))
}

// RecordRemove records a keyframe suppression.
func (c *Collector) RecordRemove(d time.Duration, err error) {
	c.observe("remove", d, err)
}

// RecordRetrieve records a retrieval query.
func (c *Collector) RecordRetrieve(results int, d time.Duration, err error) {
	c.observe("retrieve", d, err)
	c.results.WithLabelValues("retrieve").Observe(float64(results))
}

// RecordMatch records a matching call.
func (c *Collector) RecordMatch(matches int, d time.Duration, err error) {
	c.observe("match", d, err)
	c.results.WithLabelValues("match").Observe(float64(matches))
}

// RecordSnapshot records a snapshot save or load.
func (c *Collector) RecordSnapshot(op string, bytes int64, d time.Duration, err error) {
	c.observe("snapshot_"+op, d, err)
	c.snapshotBytes.WithLabelValues(op).Add(float64(bytes))
}

// Registry returns the registry the metrics are registered with.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns an HTTP handler that serves the metrics for scraping.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// WriteTextfile writes the metrics to path in the text exposition format,
// for collection by the node exporter textfile collector.
func (c *Collector) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, c.registry)
}
