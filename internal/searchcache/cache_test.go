package searchcache_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"cardcat/internal/searchcache"
	"cardcat/internal/testsupport"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type result struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

func newCache(t *testing.T, opts ...searchcache.Option) (*searchcache.Cache, *fakeClock) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	opts = append([]searchcache.Option{searchcache.WithClock(clock.Now)}, opts...)
	return searchcache.New(st.DB(), opts...), clock
}

func TestGetHonoursTTLBoundary(t *testing.T) {
	tests := []struct {
		name    string
		advance time.Duration
		wantHit bool
	}{
		{"just inside lifetime", 23*time.Hour + 59*time.Minute, true},
		{"just past lifetime", 24*time.Hour + time.Minute, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cache, clock := newCache(t)
			ctx := context.Background()

			if err := cache.Put(ctx, "Sol Ring", "card", []result{{ID: "1", Title: "Sol Ring alt"}}); err != nil {
				t.Fatalf("Put: %v", err)
			}
			clock.Advance(tc.advance)

			var got []result
			hit, err := cache.GetInto(ctx, "sol  ring", "CARD", &got)
			if err != nil {
				t.Fatalf("GetInto: %v", err)
			}
			if hit != tc.wantHit {
				t.Fatalf("hit = %v, want %v", hit, tc.wantHit)
			}
			if hit && (len(got) != 1 || got[0].ID != "1") {
				t.Fatalf("unexpected results %+v", got)
			}

			stats, err := cache.Stats(ctx)
			if err != nil {
				t.Fatalf("Stats: %v", err)
			}
			wantRows := 0
			if tc.wantHit {
				wantRows = 1
			}
			if stats.Rows != wantRows {
				t.Fatalf("expected %d rows after read, got %d", wantRows, stats.Rows)
			}
		})
	}
}

func TestPutTrimsToLowerWatermark(t *testing.T) {
	cache, clock := newCache(t, searchcache.WithLimits(10, 6))
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if err := cache.Put(ctx, fmt.Sprintf("query %02d", i), "CARD", []result{{ID: fmt.Sprint(i)}}); err != nil {
			t.Fatalf("Put %d: %v", i, err)
		}
		clock.Advance(time.Second)
	}
	stats, _ := cache.Stats(ctx)
	if stats.Rows != 10 {
		t.Fatalf("expected no trim at the cap, got %d rows", stats.Rows)
	}

	if err := cache.Put(ctx, "query 10", "CARD", []result{{ID: "10"}}); err != nil {
		t.Fatalf("Put overflow: %v", err)
	}
	stats, _ = cache.Stats(ctx)
	if stats.Rows != 6 {
		t.Fatalf("expected trim to 6 rows, got %d", stats.Rows)
	}
	for i := 0; i < 5; i++ {
		if _, hit, _ := cache.Get(ctx, fmt.Sprintf("query %02d", i), "CARD"); hit {
			t.Fatalf("expected oldest row %d evicted", i)
		}
	}
	if _, hit, _ := cache.Get(ctx, "query 10", "CARD"); !hit {
		t.Fatal("expected newest row kept")
	}
}

func TestMalformedRowIsMissAndDeleted(t *testing.T) {
	tests := []struct {
		name    string
		results string
	}{
		{"broken json", "{broken"},
		{"null results", "null"},
		{"object instead of list", `{"id":"1"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testsupport.NewConfig(t)
			st := testsupport.MustOpenStore(t, cfg)
			cache := searchcache.New(st.DB())
			ctx := context.Background()

			if _, err := st.DB().ExecContext(ctx,
				`INSERT INTO search_cache (query, category, results, cached_at) VALUES ('opt', 'CARD', ?, ?)`,
				tc.results, time.Now().UnixMilli()); err != nil {
				t.Fatalf("seed row: %v", err)
			}
			if _, hit, err := cache.Get(ctx, "Opt", "card"); hit || err != nil {
				t.Fatalf("expected clean miss, got hit=%v err=%v", hit, err)
			}
			stats, _ := cache.Stats(ctx)
			if stats.Rows != 0 {
				t.Fatalf("expected malformed row deleted, got %d rows", stats.Rows)
			}
		})
	}
}

func TestEmptyResultListIsHit(t *testing.T) {
	cache, _ := newCache(t)
	ctx := context.Background()

	var none []result
	if err := cache.Put(ctx, "nothing", "CARD", none); err != nil {
		t.Fatalf("Put: %v", err)
	}
	results, hit, err := cache.Get(ctx, "nothing", "CARD")
	if err != nil || !hit || len(results) != 0 {
		t.Fatalf("expected empty cached list, got %v hit=%v err=%v", results, hit, err)
	}
}

func TestPurgeExpiredAndClear(t *testing.T) {
	cache, clock := newCache(t)
	ctx := context.Background()

	_ = cache.Put(ctx, "old", "CARD", []result{{ID: "old"}})
	clock.Advance(25 * time.Hour)
	_ = cache.Put(ctx, "new", "CARD", []result{{ID: "new"}})

	removed, err := cache.PurgeExpired(ctx)
	if err != nil {
		t.Fatalf("PurgeExpired: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 expired row removed, got %d", removed)
	}
	if err := cache.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	stats, _ := cache.Stats(ctx)
	if stats.Rows != 0 || !stats.Oldest.IsZero() {
		t.Fatalf("expected empty stats, got %+v", stats)
	}
}

func TestNormalizeQuery(t *testing.T) {
	if got := searchcache.NormalizeQuery("  Jötun   GRUNT "); got != "jotun grunt" {
		t.Fatalf("unexpected normalized query %q", got)
	}
}
