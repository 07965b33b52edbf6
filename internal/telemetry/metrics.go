package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Package-level metrics (registered once)
var (
	metricsOnce sync.Once

	searchesTotal        *prometheus.CounterVec
	searchDuration       *prometheus.HistogramVec
	partialSearchesTotal prometheus.Counter
	pagesTotal           *prometheus.CounterVec
	remoteFailuresTotal  prometheus.Counter
	samplerFindsTotal    prometheus.Counter
	cacheEntriesGauge    prometheus.Gauge
	streamClientsGauge   prometheus.Gauge
)

func initMetrics() {
	metricsOnce.Do(func() {
		searchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "babel_engine_searches_total",
				Help: "Completed search requests by mode and cache outcome",
			},
			[]string{"mode", "cache"},
		)

		searchDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "babel_engine_search_duration_seconds",
				Help:    "End-to-end search latency by mode",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"mode"},
		)

		partialSearchesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "babel_engine_partial_searches_total",
				Help: "Searches that hit the pipeline deadline and returned partial results",
			},
		)

		pagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "babel_engine_pages_total",
				Help: "Pages materialized by source",
			},
			[]string{"source"},
		)

		remoteFailuresTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "babel_engine_remote_fetch_failures_total",
				Help: "Remote page fetches that failed and were skipped",
			},
		)

		samplerFindsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "babel_engine_sampler_finds_total",
				Help: "Background sampler pages above the broadcast threshold",
			},
		)

		cacheEntriesGauge = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "babel_engine_cache_entries",
				Help: "Live entries in the search cache",
			},
		)

		streamClientsGauge = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "babel_engine_stream_clients",
				Help: "Connected websocket stream clients",
			},
		)
	})
}

// ObserveSearch records one completed search.
func ObserveSearch(mode string, cacheHit bool, seconds float64, partial bool) {
	initMetrics()
	outcome := "miss"
	if cacheHit {
		outcome = "hit"
	}
	searchesTotal.WithLabelValues(mode, outcome).Inc()
	searchDuration.WithLabelValues(mode).Observe(seconds)
	if partial {
		partialSearchesTotal.Inc()
	}
}

// RecordPage counts one materialized page from "local" or "remote".
func RecordPage(source string) {
	initMetrics()
	pagesTotal.WithLabelValues(source).Inc()
}

// RecordRemoteFailure counts one skipped candidate.
func RecordRemoteFailure() {
	initMetrics()
	remoteFailuresTotal.Inc()
}

// RecordSamplerFind counts one broadcast-worthy sampled page.
func RecordSamplerFind() {
	initMetrics()
	samplerFindsTotal.Inc()
}

// SetCacheEntries publishes current cache occupancy.
func SetCacheEntries(n int) {
	initMetrics()
	cacheEntriesGauge.Set(float64(n))
}

// StreamClientConnected adjusts the live websocket client gauge.
func StreamClientConnected(delta int) {
	initMetrics()
	streamClientsGauge.Add(float64(delta))
}
