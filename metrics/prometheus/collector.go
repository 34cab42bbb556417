// Package prometheus exports index metrics to Prometheus.
package prometheus

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/hnswtag"
)

var _ hnswtag.MetricsCollector = (*Collector)(nil)

var errBatchFailed = errors.New("batch insert failed")

// Collector implements hnswtag.MetricsCollector on Prometheus counters,
// histograms and a gauge.
type Collector struct {
	ops          *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	batchItems   *prometheus.CounterVec
	subgraphSize prometheus.Histogram
	lastSave     prometheus.Gauge
}

// New creates a Collector and registers it on reg. A nil reg uses the
// default registerer. namespace prefixes every metric name.
func New(reg prometheus.Registerer, namespace string) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Collector{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Index operations by kind and outcome.",
		}, []string{"op", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Latency of index operations.",
			Buckets:   []float64{0.00001, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}, []string{"op"}),
		batchItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_items_total",
			Help:      "Vectors passed to AddItems by outcome.",
		}, []string{"status"}),
		subgraphSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "subgraph_members",
			Help:      "Member count of materialized sub-graphs.",
			Buckets:   prometheus.ExponentialBuckets(4, 4, 10),
		}),
		lastSave: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_save_timestamp_seconds",
			Help:      "Unix time of the last successful save.",
		}),
	}

	for _, col := range []prometheus.Collector{c.ops, c.latency, c.batchItems, c.subgraphSize, c.lastSave} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew is like New but panics on registration errors.
func MustNew(reg prometheus.Registerer, namespace string) *Collector {
	c, err := New(reg, namespace)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Collector) observe(op string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.ops.WithLabelValues(op, status).Inc()
	c.latency.WithLabelValues(op).Observe(d.Seconds())
}

// RecordInsert implements hnswtag.MetricsCollector.
func (c *Collector) RecordInsert(d time.Duration, err error) { c.observe("insert", d, err) }

// RecordBatchInsert implements hnswtag.MetricsCollector.
func (c *Collector) RecordBatchInsert(count, failed int, d time.Duration) {
	var err error
	if failed > 0 {
		err = errBatchFailed
	}
	c.observe("batch_insert", d, err)
	c.batchItems.WithLabelValues("ok").Add(float64(count - failed))
	c.batchItems.WithLabelValues("failed").Add(float64(failed))
}

// RecordSearch implements hnswtag.MetricsCollector.
func (c *Collector) RecordSearch(_ int, d time.Duration, err error) { c.observe("search", d, err) }

// RecordDelete implements hnswtag.MetricsCollector.
func (c *Collector) RecordDelete(d time.Duration, err error) { c.observe("delete", d, err) }

// RecordMaterialize implements hnswtag.MetricsCollector.
func (c *Collector) RecordMaterialize(members int, d time.Duration, err error) {
	c.observe("materialize", d, err)
	if err == nil {
		c.subgraphSize.Observe(float64(members))
	}
}

// RecordSave implements hnswtag.MetricsCollector.
func (c *Collector) RecordSave(d time.Duration, err error) {
	c.observe("save", d, err)
	if err == nil {
		c.lastSave.SetToCurrentTime()
	}
}

// RecordLoad implements hnswtag.MetricsCollector.
func (c *Collector) RecordLoad(d time.Duration, err error) { c.observe("load", d, err) }
