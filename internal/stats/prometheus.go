package stats

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exports the counters of a Source as Prometheus gauges.
type Collector struct {
	src Source

	unshared  *prometheus.Desc
	sharing   *prometheus.Desc
	shared    *prometheus.Desc
	saved     *prometheus.Desc
	fullScans *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates a Collector with metric names under namespace.
func NewCollector(src Source, namespace string) *Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, nil)
	}
	return &Collector{
		src:       src,
		unshared:  desc("pages_unshared", "Registered pages that are not merged."),
		sharing:   desc("pages_sharing", "Pages currently displaying a shared backing page."),
		shared:    desc("pages_shared", "Live shared backing pages."),
		saved:     desc("pages_saved", "Pages saved by deduplication."),
		fullScans: desc("full_scans_total", "Completed traversals of the candidate queue."),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.unshared
	ch <- c.sharing
	ch <- c.shared
	ch <- c.saved
	ch <- c.fullScans
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.src.Snapshot()
	ch <- prometheus.MustNewConstMetric(c.unshared, prometheus.GaugeValue, float64(s.Unshared))
	ch <- prometheus.MustNewConstMetric(c.sharing, prometheus.GaugeValue, float64(s.Sharing))
	ch <- prometheus.MustNewConstMetric(c.shared, prometheus.GaugeValue, float64(s.Shared))
	ch <- prometheus.MustNewConstMetric(c.saved, prometheus.GaugeValue, float64(s.Saved()))
	ch <- prometheus.MustNewConstMetric(c.fullScans, prometheus.CounterValue, float64(s.FullScans))
}
