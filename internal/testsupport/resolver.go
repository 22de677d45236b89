package testsupport

import (
	"testing"

	"cardcat/internal/catalog"
	"cardcat/internal/config"
	"cardcat/internal/resolve"
	"cardcat/internal/store"
)

// NewCatalogClient builds a catalog client for cfg.
func NewCatalogClient(cfg *config.Config) *catalog.Client {
	return catalog.NewClient(catalog.NewFetcher(catalog.SettingsFromConfig(cfg)), nil)
}

// NewResolver wires a resolver over st and the catalog named by cfg and
// closes it when the test ends.
func NewResolver(t testing.TB, cfg *config.Config, st *store.Store) *resolve.Service {
	t.Helper()

	svc := resolve.New(st, NewCatalogClient(cfg),
		resolve.WithCapacities(cfg.Cache.HotCapacity, cfg.Cache.ScoringCapacity),
		resolve.WithBatchSize(cfg.Catalog.BatchSize),
	)
	t.Cleanup(svc.Close)
	return svc
}
