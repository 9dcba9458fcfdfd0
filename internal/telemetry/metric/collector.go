package metric

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/urbanketl/vendcore/internal/storage/memory"
)

// SessionCollector exports the live handshake session population,
// grouped by protocol state, straight from the session store at
// scrape time.
type SessionCollector struct {
	stats func() memory.Stats
	desc  *prometheus.Desc
}

// NewSessionCollector creates a collector over the given stats source.
func NewSessionCollector(stats func() memory.Stats) *SessionCollector {
	return &SessionCollector{
		stats: stats,
		desc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "sessions", "live"),
			"Live handshake sessions by state.",
			[]string{"state"},
			nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *SessionCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

// Collect implements prometheus.Collector.
func (c *SessionCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.stats()
	for state, count := range stats.ByState {
		ch <- prometheus.MustNewConstMetric(
			c.desc,
			prometheus.GaugeValue,
			float64(count),
			string(state),
		)
	}
}
