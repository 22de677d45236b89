package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cardcat_cache_lookups_total",
		Help: "Cache lookups by cache name and result",
	}, []string{"cache", "result"})

	cacheEvictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cardcat_cache_evictions_total",
		Help: "Entries evicted from bounded caches",
	}, []string{"cache"})

	cachePurgesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cardcat_cache_purges_total",
		Help: "Wholesale cache clears",
	}, []string{"cache"})

	upstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cardcat_upstream_requests_total",
		Help: "Outbound catalog requests by lane and outcome",
	}, []string{"lane", "outcome"})

	upstreamRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cardcat_upstream_request_duration_seconds",
		Help:    "Duration of outbound catalog requests",
		Buckets: []float64{.025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	}, []string{"lane"})

	upstreamRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cardcat_upstream_retries_total",
		Help: "Retries of outbound catalog requests by reason",
	}, []string{"reason"})

	resolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cardcat_resolutions_total",
		Help: "Query resolutions by tier",
	}, []string{"tier"})

	streamsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cardcat_streams_active",
		Help: "Enrichment streams currently running",
	})

	streamEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cardcat_stream_events_total",
		Help: "Stream events emitted by type",
	}, []string{"event"})
)

// CacheHit records a successful lookup on the named cache.
func CacheHit(cache string) { cacheLookupsTotal.WithLabelValues(cache, "hit").Inc() }

// CacheMiss records a failed lookup on the named cache.
func CacheMiss(cache string) { cacheLookupsTotal.WithLabelValues(cache, "miss").Inc() }

// CacheEvicted records n evictions on the named cache.
func CacheEvicted(cache string, n int) {
	if n <= 0 {
		return
	}
	cacheEvictionsTotal.WithLabelValues(cache).Add(float64(n))
}

// CachePurged records a wholesale clear of the named cache.
func CachePurged(cache string) { cachePurgesTotal.WithLabelValues(cache).Inc() }

// ObserveUpstream records one outbound request.
func ObserveUpstream(lane, outcome string, elapsed time.Duration) {
	upstreamRequestsTotal.WithLabelValues(lane, outcome).Inc()
	upstreamRequestDuration.WithLabelValues(lane).Observe(elapsed.Seconds())
}

// UpstreamRetry records a retry caused by reason (rate_limited, upstream).
func UpstreamRetry(reason string) { upstreamRetriesTotal.WithLabelValues(reason).Inc() }

// Resolved records a query answered by tier (local, batch, fallback, missing).
func Resolved(tier string) { resolutionsTotal.WithLabelValues(tier).Inc() }

// StreamStarted marks a stream as running and returns a func that marks it finished.
func StreamStarted() func() {
	streamsActive.Inc()
	return streamsActive.Dec
}

// StreamEvent counts one emitted stream event.
func StreamEvent(event string) { streamEventsTotal.WithLabelValues(event).Inc() }
