// Package metrics exports link counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/robotalks/framelink/pkg/l0/frame"
)

// Source provides link counters, e.g. comm.Conn or uart.Port.
type Source interface {
	Stats() frame.StatsSnapshot
}

// SourceFunc is the func form of Source.
type SourceFunc func() frame.StatsSnapshot

// Stats implements Source.
func (f SourceFunc) Stats() frame.StatsSnapshot {
	return f()
}

// Namespace prefixes all metric names.
const Namespace = "framelink"

// Collector implements prometheus.Collector for the counters of one link.
type Collector struct {
	source Source
	descs  []*prometheus.Desc
}

// NewCollector creates a Collector. Metrics are labeled with the link ID.
func NewCollector(linkID string, source Source) *Collector {
	var snap frame.StatsSnapshot
	fields := snap.Fields()
	c := &Collector{source: source, descs: make([]*prometheus.Desc, len(fields))}
	for n, f := range fields {
		c.descs[n] = prometheus.NewDesc(
			prometheus.BuildFQName(Namespace, "link", f.Name+"_total"),
			f.Help, nil, prometheus.Labels{"link": linkID})
	}
	return c
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, desc := range c.descs {
		ch <- desc
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.source.Stats()
	for n, f := range snap.Fields() {
		ch <- prometheus.MustNewConstMetric(c.descs[n], prometheus.CounterValue, float64(*f.Value))
	}
}
