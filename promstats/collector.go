// Package promstats exports segmap statistics as Prometheus metrics.
//
// Metrics are read on every scrape through Stats, so scraping takes each
// segment's read lock once:
//
//	m := segmap.New[string, int]()
//	prometheus.MustRegister(promstats.NewCollector("sessions", m))
package promstats

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/homier/segmap"
)

const namespace = "segmap"

// StatsSource is implemented by segmap.Map and segmap.Set.
type StatsSource interface {
	Stats() segmap.Stats
}

// Collector implements prometheus.Collector for a single map or set.
type Collector struct {
	source StatsSource

	entries     *prometheus.Desc
	tombstones  *prometheus.Desc
	capacity    *prometheus.Desc
	segments    *prometheus.Desc
	segEntries  *prometheus.Desc
	grows       *prometheus.Desc
	compactions *prometheus.Desc
}

// NewCollector returns a collector whose metrics carry a constant "map"
// label set to name.
func NewCollector(name string, source StatsSource) *Collector {
	labels := prometheus.Labels{"map": name}

	return &Collector{
		source: source,
		entries: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "entries"),
			"Number of live entries.",
			nil, labels,
		),
		tombstones: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "tombstones"),
			"Number of deleted slots awaiting compaction.",
			nil, labels,
		),
		capacity: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "capacity_slots"),
			"Total number of slots across all segment tables.",
			nil, labels,
		),
		segments: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "segments"),
			"Number of segments.",
			nil, labels,
		),
		segEntries: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "segment", "entries"),
			"Number of live entries per segment.",
			[]string{"segment"}, labels,
		),
		grows: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "segment", "grows_total"),
			"Number of times a segment table doubled its capacity.",
			[]string{"segment"}, labels,
		),
		compactions: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "segment", "compactions_total"),
			"Number of in-place tombstone compactions of a segment table.",
			[]string{"segment"}, labels,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.entries
	ch <- c.tombstones
	ch <- c.capacity
	ch <- c.segments
	ch <- c.segEntries
	ch <- c.grows
	ch <- c.compactions
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	st := c.source.Stats()

	ch <- prometheus.MustNewConstMetric(c.entries, prometheus.GaugeValue, float64(st.Size))
	ch <- prometheus.MustNewConstMetric(c.tombstones, prometheus.GaugeValue, float64(st.Tombstones))
	ch <- prometheus.MustNewConstMetric(c.capacity, prometheus.GaugeValue, float64(st.Capacity))
	ch <- prometheus.MustNewConstMetric(c.segments, prometheus.GaugeValue, float64(len(st.Segments)))

	for _, seg := range st.Segments {
		idx := strconv.Itoa(seg.Index)

		ch <- prometheus.MustNewConstMetric(c.segEntries, prometheus.GaugeValue, float64(seg.Size), idx)
		ch <- prometheus.MustNewConstMetric(c.grows, prometheus.CounterValue, float64(seg.Grows), idx)
		ch <- prometheus.MustNewConstMetric(c.compactions, prometheus.CounterValue, float64(seg.Compactions), idx)
	}
}
