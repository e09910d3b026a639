package samepage

import (
	"errors"
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    merges       *prometheus.CounterVec
//	    mergeSeconds prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordMerge(mode samepage.MergeMode, d time.Duration, err error) {
//	    p.merges.WithLabelValues(mode.String()).Inc()
//	    p.mergeSeconds.Observe(d.Seconds())
//	}
type MetricsCollector interface {
	// RecordMerge is called after each merge attempt, whether issued by the
	// scanner or by a caller. err is nil if the pages were merged.
	RecordMerge(mode MergeMode, duration time.Duration, err error)

	// RecordUnmerge is called after each unmerge of a merged page, including
	// unmerges triggered by client writes.
	RecordUnmerge(duration time.Duration, err error)

	// RecordScanPass is called after each scanner pass.
	// scanned is the number of pages inspected, merged the number merged.
	RecordScanPass(scanned, merged int, duration time.Duration)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordMerge(MergeMode, time.Duration, error) {}
func (NoopMetricsCollector) RecordUnmerge(time.Duration, error)          {}
func (NoopMetricsCollector) RecordScanPass(int, int, time.Duration)      {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	MergeCount        atomic.Int64
	MergeErrors       atomic.Int64
	MergeMismatches   atomic.Int64
	MergeTotalNanos   atomic.Int64
	UnmergeCount      atomic.Int64
	UnmergeErrors     atomic.Int64
	UnmergeTotalNanos atomic.Int64
	ScanPasses        atomic.Int64
	ScannedPages      atomic.Int64
	MergedPages       atomic.Int64
}

// RecordMerge implements MetricsCollector.
func (b *BasicMetricsCollector) RecordMerge(_ MergeMode, duration time.Duration, err error) {
	b.MergeCount.Add(1)
	b.MergeTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.MergeErrors.Add(1)
		if errors.Is(err, ErrContentMismatch) {
			b.MergeMismatches.Add(1)
		}
	}
}

// RecordUnmerge implements MetricsCollector.
func (b *BasicMetricsCollector) RecordUnmerge(duration time.Duration, err error) {
	b.UnmergeCount.Add(1)
	b.UnmergeTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.UnmergeErrors.Add(1)
	}
}

// RecordScanPass implements MetricsCollector.
func (b *BasicMetricsCollector) RecordScanPass(scanned, merged int, _ time.Duration) {
	b.ScanPasses.Add(1)
	b.ScannedPages.Add(int64(scanned))
	b.MergedPages.Add(int64(merged))
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		MergeCount:      b.MergeCount.Load(),
		MergeErrors:     b.MergeErrors.Load(),
		MergeMismatches: b.MergeMismatches.Load(),
		MergeAvgNanos:   avg(b.MergeTotalNanos.Load(), b.MergeCount.Load()),
		UnmergeCount:    b.UnmergeCount.Load(),
		UnmergeErrors:   b.UnmergeErrors.Load(),
		UnmergeAvgNanos: avg(b.UnmergeTotalNanos.Load(), b.UnmergeCount.Load()),
		ScanPasses:      b.ScanPasses.Load(),
		ScannedPages:    b.ScannedPages.Load(),
		MergedPages:     b.MergedPages.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	MergeCount      int64
	MergeErrors     int64
	MergeMismatches int64
	MergeAvgNanos   int64
	UnmergeCount    int64
	UnmergeErrors   int64
	UnmergeAvgNanos int64
	ScanPasses      int64
	ScannedPages    int64
	MergedPages     int64
}
