package resolve_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"cardcat/internal/card"
	"cardcat/internal/resolve"
	"cardcat/internal/store"
	"cardcat/internal/testsupport"
)

func newService(t *testing.T, recs ...card.Record) (*resolve.Service, *testsupport.FakeCatalog, *store.Store) {
	t.Helper()
	fake := testsupport.NewFakeCatalog(t, recs...)
	cfg := testsupport.NewConfig(t, testsupport.WithCatalogURL(fake.URL()))
	st := testsupport.MustOpenStore(t, cfg)
	return testsupport.NewResolver(t, cfg, st), fake, st
}

func optPrintings() []card.Record {
	return []card.Record{
		testsupport.Card("opt-xln", "Opt", "xln", "65", testsupport.Released("2017-09-29")),
		testsupport.Card("opt-dom", "Opt", "dom", "60", testsupport.Released("2018-04-27")),
		testsupport.Card("opt-sta", "Opt", "sta", "18", testsupport.Released("2021-04-23")),
	}
}

func TestSetAndNumberQueryReturnsExactPrinting(t *testing.T) {
	tests := []struct {
		name           string
		failCollection bool
	}{
		{"collection tier", false},
		{"fallback tier", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc, fake, _ := newService(t, optPrintings()...)
			if tc.failCollection {
				fake.Fail("/cards/collection", http.StatusBadRequest, 1, "")
			}

			rec, err := svc.ResolveOne(context.Background(), card.Query{Name: "Opt", Set: "DOM", Number: "60"})
			if err != nil {
				t.Fatalf("ResolveOne: %v", err)
			}
			if rec.ID != "opt-dom" || rec.Set != "dom" || rec.CollectorNumber != "60" {
				t.Fatalf("expected exact printing dom/60, got %s %s/%s", rec.ID, rec.Set, rec.CollectorNumber)
			}
		})
	}
}

func TestPrintingEndpointBacksMisnamedPrintingQueries(t *testing.T) {
	svc, fake, _ := newService(t, optPrintings()...)
	fake.Fail("/cards/collection", http.StatusBadRequest, 1, "")

	rec, err := svc.ResolveOne(context.Background(), card.Query{Name: "Opt (Showcase)", Set: "xln", Number: "65"})
	if err != nil {
		t.Fatalf("ResolveOne: %v", err)
	}
	if rec.ID != "opt-xln" {
		t.Fatalf("expected printing endpoint result, got %s", rec.ID)
	}
	if fake.Calls("/cards/printing") != 1 {
		t.Fatalf("expected one printing lookup, got %d", fake.Calls("/cards/printing"))
	}
}

func TestFrontFaceQueryResolvesCombinedCard(t *testing.T) {
	for _, failCollection := range []bool{false, true} {
		svc, fake, _ := newService(t,
			testsupport.Card("delver", "", "isd", "51", testsupport.Faces("Delver of Secrets", "Insectile Aberration")),
		)
		if failCollection {
			fake.Fail("/cards/collection", http.StatusBadRequest, 1, "")
		}

		rec, err := svc.ResolveOne(context.Background(), card.Query{Name: "delver of secrets"})
		if err != nil {
			t.Fatalf("ResolveOne (fail collection %v): %v", failCollection, err)
		}
		if rec.Name != "Delver of Secrets // Insectile Aberration" {
			t.Fatalf("expected combined card, got %q", rec.Name)
		}
	}
}

func TestNeverEnrichedLocalRecordIsMiss(t *testing.T) {
	svc, fake, st := newService(t,
		testsupport.Card("krenko", "Krenko, Mob Boss", "m13", "139",
			testsupport.Parts(card.RelatedPart{ID: "gob", Component: "token", Name: "Goblin", TypeLine: "Token Creature — Goblin"})),
	)
	testsupport.MustUpsert(t, st, testsupport.Card("krenko", "Krenko, Mob Boss", "m13", "139", testsupport.NeverEnriched()))

	rec, err := svc.ResolveOne(context.Background(), card.Query{Name: "Krenko, Mob Boss", Set: "m13", Number: "139"})
	if err != nil {
		t.Fatalf("ResolveOne: %v", err)
	}
	if fake.TotalCalls() == 0 {
		t.Fatal("expected never-enriched record to trigger a catalog lookup")
	}
	if len(rec.AllParts) != 1 {
		t.Fatalf("expected enriched relations, got %+v", rec.AllParts)
	}
	stored, _ := st.CardByID(context.Background(), "krenko")
	if stored == nil || len(stored.AllParts) != 1 {
		t.Fatalf("expected enriched record persisted, got %+v", stored)
	}
}

func TestEnrichedEmptyLocalRecordIsHit(t *testing.T) {
	svc, fake, st := newService(t)
	testsupport.MustUpsert(t, st, testsupport.Card("opt-xln", "Opt", "xln", "65"))

	for _, q := range []card.Query{{Name: "Opt"}, {Name: "opt", Set: "XLN"}, {Name: "Opt", Set: "xln", Number: "65"}} {
		rec, err := svc.ResolveOne(context.Background(), q)
		if err != nil {
			t.Fatalf("ResolveOne(%v): %v", q, err)
		}
		if rec.ID != "opt-xln" {
			t.Fatalf("unexpected record %s", rec.ID)
		}
	}
	if fake.TotalCalls() != 0 {
		t.Fatalf("expected local hits only, got %d catalog calls", fake.TotalCalls())
	}
}

func TestResolveBatchIsPartialSuccess(t *testing.T) {
	svc, _, st := newService(t, optPrintings()...)
	queries := []card.Query{
		{Name: "Opt", Set: "xln"},
		{Name: "Opt", Set: "dom"},
		{Name: "Definitely Not A Card"},
		{Name: ""},
	}

	found, err := svc.ResolveBatch(context.Background(), queries)
	if err != nil {
		t.Fatalf("ResolveBatch: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("expected 2 resolved queries, got %d", len(found))
	}
	if rec := found[queries[0].Normalize().Key()]; rec.ID != "opt-xln" {
		t.Fatalf("expected xln printing for xln query, got %s", rec.ID)
	}
	if rec := found[queries[1].Normalize().Key()]; rec.ID != "opt-dom" {
		t.Fatalf("expected dom printing for dom query, got %s", rec.ID)
	}
	if count, _ := st.CardCount(context.Background()); count != 2 {
		t.Fatalf("expected remote results persisted, got %d rows", count)
	}

	_, err = svc.ResolveOne(context.Background(), queries[2])
	if !errors.Is(err, resolve.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	_, err = svc.ResolveOne(context.Background(), queries[3])
	if !errors.Is(err, resolve.ErrInvalidQuery) {
		t.Fatalf("expected ErrInvalidQuery, got %v", err)
	}
}

func TestNonEnglishQueryIsLocalized(t *testing.T) {
	svc, _, _ := newService(t,
		testsupport.Card("opt-xln", "Opt", "xln", "65"),
		testsupport.Card("opt-xln-ja", "Opt", "xln", "65", testsupport.Lang("ja")),
	)

	rec, err := svc.ResolveOne(context.Background(), card.Query{Name: "Opt", Lang: "JA"})
	if err != nil {
		t.Fatalf("ResolveOne: %v", err)
	}
	if rec.ID != "opt-xln-ja" || rec.Lang != "ja" {
		t.Fatalf("expected localized printing, got %s (%s)", rec.ID, rec.Lang)
	}
}

func TestNonEnglishSearchRetriesInEnglish(t *testing.T) {
	svc, fake, _ := newService(t, testsupport.Card("opt-xln", "Opt", "xln", "65"))
	fake.Fail("/cards/collection", http.StatusBadRequest, 1, "")

	rec, err := svc.ResolveOne(context.Background(), card.Query{Name: "Opt", Lang: "de"})
	if err != nil {
		t.Fatalf("ResolveOne: %v", err)
	}
	if rec.ID != "opt-xln" {
		t.Fatalf("expected English record kept, got %s", rec.ID)
	}
	searches := fake.Searches()
	if len(searches) != 2 || !strings.Contains(searches[0], "lang:de") || !strings.Contains(searches[1], "lang:en") {
		t.Fatalf("expected lang:de then lang:en searches, got %v", searches)
	}
}

func TestRepeatQueriesAreServedLocally(t *testing.T) {
	svc, fake, _ := newService(t, optPrintings()...)
	ctx := context.Background()

	first, err := svc.ResolveOne(ctx, card.Query{Name: "Opt"})
	if err != nil {
		t.Fatalf("ResolveOne: %v", err)
	}
	calls := fake.TotalCalls()
	second, err := svc.ResolveOne(ctx, card.Query{Name: " OPT "})
	if err != nil {
		t.Fatalf("repeat ResolveOne: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected stable answer, got %s then %s", first.ID, second.ID)
	}
	if fake.TotalCalls() != calls {
		t.Fatalf("expected no further catalog calls, got %d more", fake.TotalCalls()-calls)
	}
}

func TestResolvePrintsListsEveryPrinting(t *testing.T) {
	svc, _, st := newService(t, optPrintings()...)

	recs, err := svc.ResolvePrints(context.Background(), card.Query{Name: "Opt"})
	if err != nil {
		t.Fatalf("ResolvePrints: %v", err)
	}
	if len(recs) != 3 || recs[0].ID != "opt-sta" {
		t.Fatalf("expected 3 printings newest first, got %d (first %s)", len(recs), recs[0].ID)
	}
	if count, _ := st.CardCount(context.Background()); count != 3 {
		t.Fatalf("expected printings persisted, got %d", count)
	}

	if _, err := svc.ResolvePrints(context.Background(), card.Query{Name: "Nothing"}); !errors.Is(err, resolve.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResolveBatchStopsOnCancellation(t *testing.T) {
	svc, _, _ := newService(t, optPrintings()...)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := svc.ResolveBatch(ctx, []card.Query{{Name: "Opt"}}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestStoreWriteInvalidatesHotAndScoringCaches(t *testing.T) {
	tests := []struct {
		name   string
		write  card.Record
		wantID string
		check  func(t *testing.T, rec card.Record)
	}{
		{
			name:   "updated winner is reread",
			write:  testsupport.Card("opt-sta", "Opt", "sta", "18", testsupport.Released("2021-04-23"), testsupport.TypeLine("Instant (Reprinted)")),
			wantID: "opt-sta",
			check: func(t *testing.T, rec card.Record) {
				if rec.TypeLine != "Instant (Reprinted)" {
					t.Fatalf("expected stored update after write, got stale type line %q", rec.TypeLine)
				}
			},
		},
		{
			name:   "new better printing replaces scoring decision",
			write:  testsupport.Card("opt-promo", "Opt", "pxln", "1", testsupport.Released("2017-09-29")),
			wantID: "opt-promo",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc, fake, st := newService(t, optPrintings()...)
			fake.Fail("/cards/collection", http.StatusBadRequest, 1, "")
			ctx := context.Background()

			// The search fallback scores every printing and records the winner.
			first, err := svc.ResolveOne(ctx, card.Query{Name: "Opt"})
			if err != nil {
				t.Fatalf("ResolveOne: %v", err)
			}
			if first.ID != "opt-sta" {
				t.Fatalf("expected opt-sta to win initially, got %s", first.ID)
			}
			calls := fake.TotalCalls()

			testsupport.MustUpsert(t, st, tc.write)

			rec, err := svc.ResolveOne(ctx, card.Query{Name: "Opt"})
			if err != nil {
				t.Fatalf("ResolveOne after write: %v", err)
			}
			if rec.ID != tc.wantID {
				t.Fatalf("expected %s after store write, got %s", tc.wantID, rec.ID)
			}
			if tc.check != nil {
				tc.check(t, rec)
			}
			if fake.TotalCalls() != calls {
				t.Fatalf("expected the store to answer, got %d more catalog calls", fake.TotalCalls()-calls)
			}
		})
	}
}

func TestNamedEndpointIsLastResortForNameQueries(t *testing.T) {
	svc, fake, st := newService(t, testsupport.Card("opt-xln", "Opt", "xln", "65"))
	fake.Fail("/cards/collection", http.StatusBadRequest, 1, "")
	fake.Fail("/cards/search", http.StatusBadRequest, 1, "")

	rec, err := svc.ResolveOne(context.Background(), card.Query{Name: "Opt"})
	if err != nil {
		t.Fatalf("ResolveOne: %v", err)
	}
	if rec.ID != "opt-xln" {
		t.Fatalf("expected named lookup result, got %s", rec.ID)
	}
	if fake.Calls("/cards/named") != 1 {
		t.Fatalf("expected one named lookup, got %d", fake.Calls("/cards/named"))
	}
	if stored, _ := st.CardByID(context.Background(), "opt-xln"); stored == nil {
		t.Fatal("expected named result persisted")
	}

	if _, err := svc.ResolveOne(context.Background(), card.Query{Name: "Nowhere"}); !errors.Is(err, resolve.ErrNotFound) {
		t.Fatalf("expected ErrNotFound when the named lookup misses, got %v", err)
	}
}
