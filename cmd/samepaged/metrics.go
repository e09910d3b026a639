package main

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/samepage"
)

// prometheusMetrics implements samepage.MetricsCollector.
type prometheusMetrics struct {
	opLatency    *prometheus.HistogramVec
	scanPasses   prometheus.Counter
	scannedPages prometheus.Counter
	mergedPages  prometheus.Counter
}

var _ samepage.MetricsCollector = (*prometheusMetrics)(nil)

func newPrometheusMetrics(reg prometheus.Registerer) *prometheusMetrics {
	m := &prometheusMetrics{
		opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "samepage_operation_latency_seconds",
			Help:    "Latency of merge and unmerge operations",
			Buckets: prometheus.ExponentialBuckets(1e-6, 4, 10),
		}, []string{"op", "status"}),
		scanPasses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "samepage_scan_passes_total",
			Help: "Total scan passes completed",
		}),
		scannedPages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "samepage_scanned_pages_total",
			Help: "Total pages inspected by the scanner",
		}),
		mergedPages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "samepage_merged_pages_total",
			Help: "Total pages merged by the scanner",
		}),
	}

	reg.MustRegister(m.opLatency, m.scanPasses, m.scannedPages, m.mergedPages)
	return m
}

func status(err error) string {
	switch {
	case err == nil:
		return "success"
	case samepage.IsRecoverable(err):
		return "missed"
	default:
		return "error"
	}
}

func (m *prometheusMetrics) RecordMerge(mode samepage.MergeMode, d time.Duration, err error) {
	m.opLatency.WithLabelValues("merge_"+mode.String(), status(err)).Observe(d.Seconds())
}

func (m *prometheusMetrics) RecordUnmerge(d time.Duration, err error) {
	m.opLatency.WithLabelValues("unmerge", status(err)).Observe(d.Seconds())
}

func (m *prometheusMetrics) RecordScanPass(scanned, merged int, _ time.Duration) {
	m.scanPasses.Inc()
	m.scannedPages.Add(float64(scanned))
	m.mergedPages.Add(float64(merged))
}
