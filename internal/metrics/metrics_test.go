package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCacheCounters(t *testing.T) {
	before := testutil.ToFloat64(cacheLookupsTotal.WithLabelValues("test", "hit"))
	CacheHit("test")
	CacheHit("test")
	CacheMiss("test")
	if got := testutil.ToFloat64(cacheLookupsTotal.WithLabelValues("test", "hit")) - before; got != 2 {
		t.Fatalf("expected 2 hits, got %v", got)
	}

	evictBefore := testutil.ToFloat64(cacheEvictionsTotal.WithLabelValues("test"))
	CacheEvicted("test", 0)
	CacheEvicted("test", 3)
	if got := testutil.ToFloat64(cacheEvictionsTotal.WithLabelValues("test")) - evictBefore; got != 3 {
		t.Fatalf("expected 3 evictions, got %v", got)
	}
}

func TestStreamGauge(t *testing.T) {
	base := testutil.ToFloat64(streamsActive)
	done := StreamStarted()
	if got := testutil.ToFloat64(streamsActive); got != base+1 {
		t.Fatalf("expected gauge %v, got %v", base+1, got)
	}
	done()
	if got := testutil.ToFloat64(streamsActive); got != base {
		t.Fatalf("expected gauge back at %v, got %v", base, got)
	}
}

func TestObserveUpstream(t *testing.T) {
	before := testutil.ToFloat64(upstreamRequestsTotal.WithLabelValues("search", "ok"))
	ObserveUpstream("search", "ok", 15*time.Millisecond)
	if got := testutil.ToFloat64(upstreamRequestsTotal.WithLabelValues("search", "ok")) - before; got != 1 {
		t.Fatalf("expected one request, got %v", got)
	}
}
