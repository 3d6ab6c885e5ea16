package sql

import (
	"github.com/prometheus/client_golang/prometheus"
)

// StatsCollector exposes QueryStats as Prometheus metrics.
type StatsCollector struct {
	stats    *QueryStats
	queries  *prometheus.Desc
	execs    *prometheus.Desc
	duration *prometheus.Desc
	slow     *prometheus.Desc
	errors   *prometheus.Desc
}

// NewStatsCollector returns a collector reading from stats. Metric names are
// prefixed with namespace when it is not empty.
//
//	stats := sql.NewStatsDriver(drv)
//	prometheus.MustRegister(sql.NewStatsCollector("app", stats.QueryStats()))
func NewStatsCollector(namespace string, stats *QueryStats) *StatsCollector {
	name := func(n string) string {
		return prometheus.BuildFQName(namespace, "db", n)
	}
	return &StatsCollector{
		stats:    stats,
		queries:  prometheus.NewDesc(name("queries_total"), "Number of row returning queries executed.", nil, nil),
		execs:    prometheus.NewDesc(name("execs_total"), "Number of statements executed.", nil, nil),
		duration: prometheus.NewDesc(name("query_duration_seconds_total"), "Total time spent executing statements.", nil, nil),
		slow:     prometheus.NewDesc(name("slow_queries_total"), "Number of statements above the slow threshold.", nil, nil),
		errors:   prometheus.NewDesc(name("query_errors_total"), "Number of failed statements.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *StatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.queries
	ch <- c.execs
	ch <- c.duration
	ch <- c.slow
	ch <- c.errors
}

// Collect implements prometheus.Collector.
func (c *StatsCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats.Stats()
	ch <- prometheus.MustNewConstMetric(c.queries, prometheus.CounterValue, float64(s.TotalQueries))
	ch <- prometheus.MustNewConstMetric(c.execs, prometheus.CounterValue, float64(s.TotalExecs))
	ch <- prometheus.MustNewConstMetric(c.duration, prometheus.CounterValue, s.TotalDuration.Seconds())
	ch <- prometheus.MustNewConstMetric(c.slow, prometheus.CounterValue, float64(s.SlowQueries))
	ch <- prometheus.MustNewConstMetric(c.errors, prometheus.CounterValue, float64(s.Errors))
}

var _ prometheus.Collector = (*StatsCollector)(nil)
