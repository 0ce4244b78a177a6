package telemetry

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/roach88/layoutdb/internal/query"
)

// StatsSource is implemented by *query.Database.
type StatsSource interface {
	Stats() query.Stats
}

// StatsCollector exports query statistics at scrape time.
type StatsCollector struct {
	src StatsSource

	revision   *prometheus.Desc
	entries    *prometheus.Desc
	patterns   *prometheus.Desc
	inputs     *prometheus.Desc
	hits       *prometheus.Desc
	misses     *prometheus.Desc
	recomputes *prometheus.Desc
	cycles     *prometheus.Desc
}

// NewStatsCollector creates a collector over src. constLabels are attached
// to every series, e.g. to tell several databases apart.
func NewStatsCollector(src StatsSource, constLabels prometheus.Labels) *StatsCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc("layoutdb_query_"+name, help, nil, constLabels)
	}
	return &StatsCollector{
		src:        src,
		revision:   desc("revision", "Current revision of the database clock."),
		entries:    desc("cache_entries", "Live memoized cache entries."),
		patterns:   desc("patterns", "Unique interned dependency patterns."),
		inputs:     desc("inputs", "Input records ever written."),
		hits:       desc("hits_total", "Evaluations answered from a valid entry."),
		misses:     desc("misses_total", "Evaluations that ran a query body."),
		recomputes: desc("recomputes_total", "Query bodies that completed and stored an entry."),
		cycles:     desc("cycles_total", "Dependency cycles detected."),
	}
}

// Describe implements prometheus.Collector.
func (c *StatsCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.revision, c.entries, c.patterns, c.inputs,
		c.hits, c.misses, c.recomputes, c.cycles,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *StatsCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.src.Stats()
	gauge := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v)
	}
	counter := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, v)
	}

	gauge(c.revision, float64(s.Revision))
	gauge(c.entries, float64(s.Entries))
	gauge(c.patterns, float64(s.Patterns))
	gauge(c.inputs, float64(s.Inputs))
	counter(c.hits, float64(s.Hits))
	counter(c.misses, float64(s.Misses))
	counter(c.recomputes, float64(s.Recomputes))
	counter(c.cycles, float64(s.Cycles))
}

// WriteText gathers g and writes it in the Prometheus text format.
func WriteText(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
