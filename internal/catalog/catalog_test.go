package catalog_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"cardcat/internal/card"
	"cardcat/internal/catalog"
	"cardcat/internal/testsupport"
)

func newClient(t *testing.T, baseURL string, opts ...catalog.Option) *catalog.Client {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithCatalogURL(baseURL))
	return catalog.NewClient(catalog.NewFetcher(catalog.SettingsFromConfig(cfg), opts...), nil)
}

func TestCollectionReportsNotFound(t *testing.T) {
	fake := testsupport.NewFakeCatalog(t,
		testsupport.Card("opt", "Opt", "xln", "65"),
		testsupport.Card("delver", "", "isd", "51", testsupport.Faces("Delver of Secrets", "Insectile Aberration")),
	)
	client := newClient(t, fake.URL())

	res, err := client.Collection(context.Background(), []catalog.Identifier{
		catalog.IdentifierFor(card.Query{Name: "Opt"}),
		catalog.IdentifierFor(card.Query{Name: "Delver of Secrets"}),
		catalog.IdentifierFor(card.Query{Name: "Nonexistent Card"}),
	})
	if err != nil {
		t.Fatalf("Collection: %v", err)
	}
	if len(res.Data) != 2 || len(res.NotFound) != 1 || res.NotFound[0].Name != "Nonexistent Card" {
		t.Fatalf("unexpected collection result %+v", res)
	}
	for _, rec := range res.Data {
		if !rec.HasRelations() {
			t.Fatalf("expected catalog records marked enriched, got %+v", rec)
		}
	}
}

func TestCollectionRejectsOversizedBatch(t *testing.T) {
	client := newClient(t, "http://127.0.0.1:1")
	ids := make([]catalog.Identifier, catalog.MaxCollectionSize+1)
	if _, err := client.Collection(context.Background(), ids); err == nil {
		t.Fatal("expected error for oversized collection")
	}
}

func TestSearchAllFollowsPages(t *testing.T) {
	fake := testsupport.NewFakeCatalog(t)
	for i := 0; i < 5; i++ {
		fake.Add(testsupport.Card(fmt.Sprintf("opt-%d", i), "Opt", fmt.Sprintf("s%d", i), "1",
			testsupport.Released(fmt.Sprintf("202%d-01-01", i))))
	}
	fake.PageSize = 2
	client := newClient(t, fake.URL())

	recs, err := client.SearchAll(context.Background(), catalog.ExactQuery("Opt", "", "", ""), catalog.PrintsNewestFirst)
	if err != nil {
		t.Fatalf("SearchAll: %v", err)
	}
	if len(recs) != 5 {
		t.Fatalf("expected 5 records across pages, got %d", len(recs))
	}
	if recs[0].ID != "opt-4" {
		t.Fatalf("expected newest first, got %s", recs[0].ID)
	}
	if got := fake.Calls("/cards/search"); got != 3 {
		t.Fatalf("expected 3 page requests, got %d", got)
	}
}

func TestSearchWithoutMatchesIsEmpty(t *testing.T) {
	fake := testsupport.NewFakeCatalog(t)
	client := newClient(t, fake.URL())

	page, err := client.Search(context.Background(), catalog.ExactQuery("Missing", "", "", ""), catalog.SearchOptions{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(page.Data) != 0 {
		t.Fatalf("expected empty page, got %d", len(page.Data))
	}
	recs, err := client.SearchAll(context.Background(), catalog.ExactQuery("Missing", "", "", ""), catalog.SearchOptions{})
	if err != nil || len(recs) != 0 {
		t.Fatalf("expected empty SearchAll, got %d %v", len(recs), err)
	}
}

func TestPaginateKeepsPartialResultsOnLaterFailure(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("page") == "2" {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"object":"error"}`)
			return
		}
		fmt.Fprintf(w, `{"data":[{"id":"a","name":"Opt","set":"xln","collector_number":"65","lang":"en"}],"has_more":true,"next_page":"%s/cards/search?q=x&page=2"}`, srv.URL)
	}))
	defer srv.Close()

	client := newClient(t, srv.URL)
	recs, err := client.SearchAll(context.Background(), "x", catalog.SearchOptions{})
	if err != nil {
		t.Fatalf("expected partial success, got %v", err)
	}
	if len(recs) != 1 || recs[0].ID != "a" {
		t.Fatalf("expected first page kept, got %+v", recs)
	}
}

func TestPrintingLookups(t *testing.T) {
	fake := testsupport.NewFakeCatalog(t,
		testsupport.Card("opt-en", "Opt", "xln", "65"),
		testsupport.Card("opt-ja", "Opt", "xln", "65", testsupport.Lang("ja")),
	)
	client := newClient(t, fake.URL())
	ctx := context.Background()

	rec, err := client.Printing(ctx, "XLN", "65")
	if err != nil || rec.ID != "opt-en" {
		t.Fatalf("Printing: %+v %v", rec, err)
	}
	rec, err = client.LocalizedPrinting(ctx, "xln", "65", "ja")
	if err != nil || rec.ID != "opt-ja" {
		t.Fatalf("LocalizedPrinting: %+v %v", rec, err)
	}
	rec, err = client.Named(ctx, "opt")
	if err != nil || rec.ID != "opt-en" {
		t.Fatalf("Named: %+v %v", rec, err)
	}
	_, err = client.Printing(ctx, "xln", "999")
	if !errors.Is(err, catalog.ErrNotFound) || !errors.Is(err, catalog.ErrClientError) {
		t.Fatalf("expected not found client error, got %v", err)
	}
}

func TestRetryClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		times     int
		wantErr   error
		wantCalls int
	}{
		{"server errors are retried", http.StatusServiceUnavailable, 2, nil, 3},
		{"server errors exhaust attempts", http.StatusBadGateway, 10, catalog.ErrUpstream, 4},
		{"client errors fail fast", http.StatusBadRequest, 1, catalog.ErrClientError, 1},
		{"rate limits consume attempts", http.StatusTooManyRequests, 10, catalog.ErrRateLimited, 4},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fake := testsupport.NewFakeCatalog(t, testsupport.Card("opt", "Opt", "xln", "65"))
			fake.Fail("/cards/named", tc.status, tc.times, "0")
			client := newClient(t, fake.URL())

			_, err := client.Named(context.Background(), "Opt")
			if tc.wantErr == nil && err != nil {
				t.Fatalf("expected success, got %v", err)
			}
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				var statusErr *catalog.StatusError
				if !errors.As(err, &statusErr) || statusErr.StatusCode != tc.status {
					t.Fatalf("expected *StatusError with %d, got %v", tc.status, err)
				}
			}
			if got := fake.Calls("/cards/named"); got != tc.wantCalls {
				t.Fatalf("expected %d calls, got %d", tc.wantCalls, got)
			}
		})
	}
}

type recordingSleeper struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *recordingSleeper) Sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waits = append(s.waits, d)
	return nil
}

func TestImagePolicyRateLimitWaitsAreFree(t *testing.T) {
	fake := testsupport.NewFakeCatalog(t, testsupport.Card("opt", "Opt", "xln", "65"))
	fake.Fail("/cards/named", http.StatusTooManyRequests, 5, "2")
	sleeper := &recordingSleeper{}
	cfg := testsupport.NewConfig(t, testsupport.WithCatalogURL(fake.URL()))
	fetcher := catalog.NewFetcher(catalog.SettingsFromConfig(cfg), catalog.WithSleeper(sleeper.Sleep))

	resp, err := fetcher.Do(context.Background(), catalog.Request{
		Path:  "/cards/named",
		Query: map[string]string{"exact": "Opt"},
	}, catalog.Policy{MaxAttempts: 1, FreeRateLimitWaits: true})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	if len(sleeper.waits) != 5 {
		t.Fatalf("expected 5 free waits, got %d", len(sleeper.waits))
	}
	for _, wait := range sleeper.waits {
		if wait != 2*time.Second {
			t.Fatalf("expected Retry-After honoured, got %v", wait)
		}
	}
}

func TestFreeRateLimitWaitsAreBounded(t *testing.T) {
	fake := testsupport.NewFakeCatalog(t, testsupport.Card("opt", "Opt", "xln", "65"))
	fake.Fail("/cards/named", http.StatusTooManyRequests, 100, "1")
	sleeper := &recordingSleeper{}
	cfg := testsupport.NewConfig(t, testsupport.WithCatalogURL(fake.URL()))
	fetcher := catalog.NewFetcher(catalog.SettingsFromConfig(cfg), catalog.WithSleeper(sleeper.Sleep))

	_, err := fetcher.Do(context.Background(), catalog.Request{Path: "/cards/named"}, catalog.Policy{MaxAttempts: 1, FreeRateLimitWaits: true})
	if !errors.Is(err, catalog.ErrRateLimited) {
		t.Fatalf("expected rate limit error after ceiling, got %v", err)
	}
	if got := fake.Calls("/cards/named"); got != 21 {
		t.Fatalf("expected 21 dispatches, got %d", got)
	}
}

func TestSearchLaneIsPaced(t *testing.T) {
	fake := testsupport.NewFakeCatalog(t, testsupport.Card("opt", "Opt", "xln", "65"))
	cfg := testsupport.NewConfig(t, testsupport.WithCatalogURL(fake.URL()))
	settings := catalog.SettingsFromConfig(cfg)
	settings.SearchInterval = 25 * time.Millisecond
	client := catalog.NewClient(catalog.NewFetcher(settings), nil)

	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = client.Search(context.Background(), catalog.ExactQuery("Opt", "", "", ""), catalog.SearchOptions{})
		}()
	}
	wg.Wait()
	if elapsed := time.Since(start); elapsed < 70*time.Millisecond {
		t.Fatalf("expected searches spaced by the interval, finished in %v", elapsed)
	}
}

func TestDoStopsOnCancellation(t *testing.T) {
	fake := testsupport.NewFakeCatalog(t)
	fake.Fail("/cards/named", http.StatusServiceUnavailable, 100, "")
	client := newClient(t, fake.URL())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := client.Named(ctx, "Opt"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestExactQuery(t *testing.T) {
	tests := []struct {
		name, set, number, lang string
		want                    string
	}{
		{"Opt", "", "", "", `!"Opt"`},
		{"Opt", "XLN", "65", "", `!"Opt" set:xln cn:65`},
		{"Opt", "xln", "", "ja", `!"Opt" set:xln lang:ja`},
		{`Kongming, "Sleeping Dragon"`, "", "", "", `!"Kongming, \"Sleeping Dragon\""`},
	}
	for _, tc := range tests {
		if got := catalog.ExactQuery(tc.name, tc.set, tc.number, tc.lang); got != tc.want {
			t.Errorf("ExactQuery(%q) = %q, want %q", tc.name, got, tc.want)
		}
	}
}
