package artsearch_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"cardcat/internal/artsearch"
	"cardcat/internal/searchcache"
	"cardcat/internal/testsupport"
)

func newArtServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		if r.URL.Path != "/search" {
			http.NotFound(w, r)
			return
		}
		if n == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"results":[{"id":"art-1","name":%q,"imageUrl":"https://art.example/1.png"}]}`,
			r.URL.Query().Get("q")+"/"+r.URL.Query().Get("category"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSearchUsesCacheAfterFirstLookup(t *testing.T) {
	var hits atomic.Int32
	srv := newArtServer(t, &hits)
	cfg := testsupport.NewConfig(t, testsupport.WithArtSearchURL(srv.URL))
	st := testsupport.MustOpenStore(t, cfg)
	client := artsearch.NewFromConfig(cfg, searchcache.New(st.DB()), nil)
	ctx := context.Background()

	results, err := client.Search(ctx, "Sol Ring", "card")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Name != "Sol Ring/CARD" {
		t.Fatalf("unexpected results %+v", results)
	}
	if hits.Load() != 2 {
		t.Fatalf("expected rate limit then success, got %d requests", hits.Load())
	}

	again, err := client.Search(ctx, "  sol ring ", "CARD")
	if err != nil {
		t.Fatalf("cached Search: %v", err)
	}
	if len(again) != 1 || hits.Load() != 2 {
		t.Fatalf("expected cached result without a request, hits=%d", hits.Load())
	}
}

func TestSearchRejectsUnknownCategory(t *testing.T) {
	var hits atomic.Int32
	srv := newArtServer(t, &hits)
	cfg := testsupport.NewConfig(t, testsupport.WithArtSearchURL(srv.URL))
	client := artsearch.NewFromConfig(cfg, nil, nil)

	if _, err := client.Search(context.Background(), "Sol Ring", "playmat"); !errors.Is(err, artsearch.ErrInvalidCategory) {
		t.Fatalf("expected ErrInvalidCategory, got %v", err)
	}
}

func TestDisabledClient(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	client := artsearch.NewFromConfig(cfg, nil, nil)
	if client.Enabled() {
		t.Fatal("expected disabled client")
	}
	if _, err := client.Search(context.Background(), "Sol Ring", ""); !errors.Is(err, artsearch.ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
}
