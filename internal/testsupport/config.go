package testsupport

import (
	"path/filepath"
	"testing"

	"cardcat/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Retry delays are shortened so failure paths finish quickly.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Catalog.BaseURL = "http://127.0.0.1:0"
	cfgVal.Catalog.SearchIntervalMS = 1
	cfgVal.Catalog.RetryBaseMS = 1
	cfgVal.Catalog.RetryMaxMS = 5
	cfgVal.Catalog.TimeoutSeconds = 5
	cfgVal.Server.Bind = "127.0.0.1:0"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithCatalogURL points the catalog client at a fake server.
func WithCatalogURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Catalog.BaseURL = url
	}
}

// WithArtSearchURL enables the secondary catalog at url.
func WithArtSearchURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.ArtSearch.Enabled = true
		b.cfg.ArtSearch.BaseURL = url
	}
}

// WithCacheCapacity overrides both in-memory cache capacities.
func WithCacheCapacity(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Cache.HotCapacity = n
		b.cfg.Cache.ScoringCapacity = n
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
