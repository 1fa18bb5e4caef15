// Package metrics exposes dispatcher statistics as Prometheus metrics. The
// collector reads a stats snapshot on every scrape, so counters stay
// consistent with what Stats() reports without duplicating bookkeeping.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/inference-dispatch/inference-dispatch/dispatch"
)

// StatsSource is anything that can produce a dispatch.Stats snapshot.
// *dispatch.Dispatcher satisfies it.
type StatsSource interface {
	Stats() dispatch.Stats
}

// DispatcherCollector implements prometheus.Collector over a StatsSource.
type DispatcherCollector struct {
	source StatsSource

	totalRequests *prometheus.Desc
	cacheHits     *prometheus.Desc
	cacheMisses   *prometheus.Desc
	totalTokens   *prometheus.Desc
	errors        *prometheus.Desc
	batches       *prometheus.Desc
	cacheSize     *prometheus.Desc
	latencyMs     *prometheus.Desc
}

// NewDispatcherCollector creates a collector reading from source.
func NewDispatcherCollector(source StatsSource) *DispatcherCollector {
	return &DispatcherCollector{
		source: source,
		totalRequests: prometheus.NewDesc(
			"dispatch_requests_total",
			"Total inference requests dispatched (hits and misses)",
			nil, nil),
		cacheHits: prometheus.NewDesc(
			"dispatch_cache_hits_total",
			"Requests served from the result cache",
			nil, nil),
		cacheMisses: prometheus.NewDesc(
			"dispatch_cache_misses_total",
			"Requests that went to the model runtime with caching active",
			nil, nil),
		totalTokens: prometheus.NewDesc(
			"dispatch_output_tokens_total",
			"Total output tokens produced by the model runtime",
			nil, nil),
		errors: prometheus.NewDesc(
			"dispatch_errors_total",
			"Failed generation calls (timeouts and runtime failures)",
			nil, nil),
		batches: prometheus.NewDesc(
			"dispatch_batches_total",
			"Batch chunks dispatched",
			nil, nil),
		cacheSize: prometheus.NewDesc(
			"dispatch_cache_entries",
			"Current result cache size",
			nil, nil),
		latencyMs: prometheus.NewDesc(
			"dispatch_latency_ms",
			"Generation latency summary in milliseconds",
			[]string{"stat"}, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *DispatcherCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.totalRequests
	ch <- c.cacheHits
	ch <- c.cacheMisses
	ch <- c.totalTokens
	ch <- c.errors
	ch <- c.batches
	ch <- c.cacheSize
	ch <- c.latencyMs
}

// Collect implements prometheus.Collector. Each scrape takes one consistent
// stats snapshot.
func (c *DispatcherCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.source.Stats()
	ch <- prometheus.MustNewConstMetric(c.totalRequests, prometheus.CounterValue, float64(s.TotalRequests))
	ch <- prometheus.MustNewConstMetric(c.cacheHits, prometheus.CounterValue, float64(s.CacheHits))
	ch <- prometheus.MustNewConstMetric(c.cacheMisses, prometheus.CounterValue, float64(s.CacheMisses))
	ch <- prometheus.MustNewConstMetric(c.totalTokens, prometheus.CounterValue, float64(s.TotalTokens))
	ch <- prometheus.MustNewConstMetric(c.errors, prometheus.CounterValue, float64(s.Errors))
	ch <- prometheus.MustNewConstMetric(c.batches, prometheus.CounterValue, float64(s.Batches))
	ch <- prometheus.MustNewConstMetric(c.cacheSize, prometheus.GaugeValue, float64(s.CacheSize))
	ch <- prometheus.MustNewConstMetric(c.latencyMs, prometheus.GaugeValue, s.AvgLatencyMs, "avg")
	ch <- prometheus.MustNewConstMetric(c.latencyMs, prometheus.GaugeValue, s.P50LatencyMs, "p50")
	ch <- prometheus.MustNewConstMetric(c.latencyMs, prometheus.GaugeValue, s.P90LatencyMs, "p90")
	ch <- prometheus.MustNewConstMetric(c.latencyMs, prometheus.GaugeValue, s.P99LatencyMs, "p99")
}
