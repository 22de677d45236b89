package testsupport

import (
	"context"
	"testing"

	"cardcat/internal/card"
	"cardcat/internal/config"
	"cardcat/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(context.Background(), cfg.DatabasePath())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// MustUpsert stores records or fails the test.
func MustUpsert(t testing.TB, st *store.Store, recs ...card.Record) {
	t.Helper()

	if err := st.UpsertCards(context.Background(), recs); err != nil {
		t.Fatalf("store.UpsertCards: %v", err)
	}
}
