package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"

	"cardcat/internal/card"
	"cardcat/internal/store"
	"cardcat/internal/testsupport"
)

func TestOpenFreshDatabaseRecordsCurrentVersion(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ctx := context.Background()

	st, err := store.Open(ctx, cfg.DatabasePath())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	version, err := st.SchemaVersion(ctx)
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if version != store.CurrentVersion {
		t.Fatalf("expected version %d, got %d", store.CurrentVersion, version)
	}
	testsupport.MustUpsert(t, st, testsupport.Card("a1", "Opt", "xln", "65"))
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := store.Open(ctx, cfg.DatabasePath())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	count, err := reopened.CardCount(ctx)
	if err != nil {
		t.Fatalf("CardCount: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 card after reopen, got %d", count)
	}
}

func TestUpsertAndLookups(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	writes := 0
	unregister := st.OnWrite(func() { writes++ })

	testsupport.MustUpsert(t, st,
		testsupport.Card("sol-c21", "Sol Ring", "C21", "263"),
		testsupport.Card("bala", "", "znr", "180", testsupport.Faces("Bala Ged Recovery", "Bala Ged Sanctuary")),
	)
	if writes != 1 {
		t.Fatalf("expected one write notification per batch, got %d", writes)
	}

	byID, err := st.CardByID(ctx, "sol-c21")
	if err != nil || byID == nil {
		t.Fatalf("CardByID: %v %v", byID, err)
	}
	if byID.Set != "c21" || byID.UpdatedAt.IsZero() {
		t.Fatalf("unexpected stored record %+v", byID)
	}

	byPrinting, err := st.CardByPrinting(ctx, "C21", "263", "")
	if err != nil || byPrinting == nil || byPrinting.ID != "sol-c21" {
		t.Fatalf("CardByPrinting: %v %v", byPrinting, err)
	}
	missing, err := st.CardByPrinting(ctx, "c21", "263", "ja")
	if err != nil || missing != nil {
		t.Fatalf("expected miss for other language, got %v %v", missing, err)
	}

	for _, name := range []string{"sol ring", "Bala Ged Recovery", "bala ged sanctuary", "Bala Ged Recovery // Bala Ged Sanctuary"} {
		recs, err := st.CardsByName(ctx, name, "en")
		if err != nil {
			t.Fatalf("CardsByName(%q): %v", name, err)
		}
		if len(recs) != 1 {
			t.Fatalf("CardsByName(%q) returned %d records", name, len(recs))
		}
	}
	if recs, _ := st.CardsByName(ctx, "Bala Ged", "en"); len(recs) != 0 {
		t.Fatalf("expected partial name to miss, got %d", len(recs))
	}

	unregister()
	testsupport.MustUpsert(t, st, testsupport.Card("opt", "Opt", "xln", "65"))
	if writes != 1 {
		t.Fatalf("expected unregistered listener to stay silent, got %d", writes)
	}
}

func TestRelationListTriStateSurvivesRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.MustUpsert(t, st,
		testsupport.Card("never", "Opt", "xln", "65", testsupport.NeverEnriched()),
		testsupport.Card("empty", "Shock", "m19", "156"),
		testsupport.Card("parts", "Krenko, Mob Boss", "m13", "139",
			testsupport.Parts(card.RelatedPart{ID: "gob", Component: "token", Name: "Goblin", TypeLine: "Token Creature — Goblin"})),
	)

	never, _ := st.CardByID(ctx, "never")
	if never == nil || never.HasRelations() {
		t.Fatalf("expected never-enriched record, got %+v", never)
	}
	empty, _ := st.CardByID(ctx, "empty")
	if empty == nil || !empty.HasRelations() || len(empty.AllParts) != 0 {
		t.Fatalf("expected enriched empty relations, got %+v", empty)
	}
	parts, _ := st.CardByID(ctx, "parts")
	if parts == nil || len(parts.AllParts) != 1 || parts.AllParts[0].Name != "Goblin" {
		t.Fatalf("unexpected relations %+v", parts)
	}

	// A later write without relations keeps what was learned earlier.
	testsupport.MustUpsert(t, st, testsupport.Card("parts", "Krenko, Mob Boss", "m13", "139", testsupport.NeverEnriched()))
	parts, _ = st.CardByID(ctx, "parts")
	if parts == nil || len(parts.AllParts) != 1 {
		t.Fatalf("expected relations preserved, got %+v", parts)
	}
}

func TestUpsertReplacesStalePrintingSlot(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.MustUpsert(t, st, testsupport.Card("old-id", "Opt", "xln", "65"))
	testsupport.MustUpsert(t, st, testsupport.Card("new-id", "Opt", "xln", "65"))

	rec, err := st.CardByPrinting(ctx, "xln", "65", "en")
	if err != nil || rec == nil || rec.ID != "new-id" {
		t.Fatalf("expected new id to own the printing, got %v %v", rec, err)
	}
	if count, _ := st.CardCount(ctx); count != 1 {
		t.Fatalf("expected one row, got %d", count)
	}
}

func TestMalformedRowIsQuarantinedAsMiss(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	tests := []struct {
		name   string
		column string
		value  string
	}{
		{"broken json", "colors", "{not json"},
		{"invalid relation", "all_parts", `[{"id":"x","component":"token"}]`},
		{"invalid face", "card_faces", `[{"mana_cost":"{1}"}]`},
	}
	for i, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			id := "bad-" + tc.column
			testsupport.MustUpsert(t, st, testsupport.Card(id, "Opt", "set"+string(rune('a'+i)), "1"))
			if _, err := st.DB().ExecContext(ctx, `UPDATE cards SET `+tc.column+` = ? WHERE id = ?`, tc.value, id); err != nil {
				t.Fatalf("corrupt row: %v", err)
			}
			rec, err := st.CardByID(ctx, id)
			if err != nil {
				t.Fatalf("expected no error for malformed row, got %v", err)
			}
			if rec != nil {
				t.Fatalf("expected miss for malformed row, got %+v", rec)
			}
		})
	}
}

func TestOpenUpgradesLegacyDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.db")
	ctx := context.Background()

	legacy, err := sqlx.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open legacy: %v", err)
	}
	stmts := []string{
		`CREATE TABLE metadata (key TEXT PRIMARY KEY, value TEXT NOT NULL)`,
		`CREATE TABLE cards (id TEXT PRIMARY KEY, oracle_id TEXT, name TEXT NOT NULL, set_code TEXT NOT NULL,
            collector_number TEXT NOT NULL, lang TEXT NOT NULL DEFAULT 'en', colors TEXT, mana_cost TEXT,
            cmc REAL NOT NULL DEFAULT 0, type_line TEXT, rarity TEXT, layout TEXT, image_uris TEXT,
            card_faces TEXT, updated_at TEXT NOT NULL)`,
		`CREATE TABLE search_cache (query TEXT NOT NULL, category TEXT NOT NULL, results TEXT NOT NULL,
            cached_at INTEGER NOT NULL, PRIMARY KEY (query, category))`,
		`INSERT INTO metadata (key, value) VALUES ('schema_version', '1')`,
		`INSERT INTO cards (id, name, set_code, collector_number, updated_at)
            VALUES ('legacy', 'Opt', 'xln', '65', '2024-01-01T00:00:00Z')`,
	}
	for _, stmt := range stmts {
		if _, err := legacy.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("seed legacy: %v", err)
		}
	}
	legacy.Close()

	st, err := store.Open(ctx, path)
	if err != nil {
		t.Fatalf("Open legacy: %v", err)
	}
	defer st.Close()

	version, _ := st.SchemaVersion(ctx)
	if version != store.CurrentVersion {
		t.Fatalf("expected upgrade to %d, got %d", store.CurrentVersion, version)
	}
	rec, err := st.CardByID(ctx, "legacy")
	if err != nil || rec == nil {
		t.Fatalf("legacy row unreadable: %v %v", rec, err)
	}
	if rec.HasRelations() {
		t.Fatal("legacy rows must read as never enriched")
	}
	var indexes int
	if err := st.DB().GetContext(ctx, &indexes,
		`SELECT COUNT(1) FROM sqlite_master WHERE type = 'index' AND name IN ('idx_cards_name_lang', 'idx_search_cache_cached_at')`); err != nil {
		t.Fatalf("count indexes: %v", err)
	}
	if indexes != 2 {
		t.Fatalf("expected migrated indexes, got %d", indexes)
	}
}

func TestOpenRefusesNewerSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ctx := context.Background()

	st := testsupport.MustOpenStore(t, cfg)
	if _, err := st.DB().ExecContext(ctx, `UPDATE metadata SET value = '99' WHERE key = 'schema_version'`); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	st.Close()

	_, err := store.Open(ctx, cfg.DatabasePath())
	if !errors.Is(err, store.ErrSchemaTooNew) {
		t.Fatalf("expected ErrSchemaTooNew, got %v", err)
	}
}

func TestInspectDoesNotCreateOrMigrate(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "inspect.db")

	version, exists, err := store.Inspect(ctx, path)
	if err != nil || exists || version != 0 {
		t.Fatalf("expected absent database, got version=%d exists=%v err=%v", version, exists, err)
	}

	st, err := store.Open(ctx, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	st.Close()

	version, exists, err = store.Inspect(ctx, path)
	if err != nil || !exists || version != store.CurrentVersion {
		t.Fatalf("expected version %d, got version=%d exists=%v err=%v", store.CurrentVersion, version, exists, err)
	}
}
