package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"cardcat/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "cardcat")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.DatabasePath() != filepath.Join(wantData, "cards.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
	if cfg.Catalog.BatchSize != 75 {
		t.Fatalf("expected batch size 75, got %d", cfg.Catalog.BatchSize)
	}
	if cfg.SearchInterval().Milliseconds() != 100 {
		t.Fatalf("expected 100ms search interval, got %s", cfg.SearchInterval())
	}
	if cfg.Cache.SearchMaxRows != 10000 || cfg.Cache.SearchTrimRows != 9000 {
		t.Fatalf("unexpected search cache watermarks: %+v", cfg.Cache)
	}
	if cfg.ArtSearch.Enabled {
		t.Fatal("expected art search disabled by default")
	}
	if cfg.Logging.Format != "console" {
		t.Fatalf("unexpected log format %q", cfg.Logging.Format)
	}
}

func TestLoadHonoursEnvironmentFallbacks(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())
	t.Setenv("CARDCAT_CATALOG_URL", "http://127.0.0.1:9999/")
	t.Setenv("CARDCAT_ART_SEARCH_URL", "http://127.0.0.1:9998")

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Catalog.BaseURL != "http://127.0.0.1:9999" {
		t.Fatalf("expected env catalog url without trailing slash, got %q", cfg.Catalog.BaseURL)
	}
	if !cfg.ArtSearch.Enabled || cfg.ArtSearch.BaseURL != "http://127.0.0.1:9998" {
		t.Fatalf("expected art search enabled from env, got %+v", cfg.ArtSearch)
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	configPath := filepath.Join(t.TempDir(), "config.toml")
	payload := map[string]any{
		"paths": map[string]any{
			"data_dir": "~/cards",
		},
		"catalog": map[string]any{
			"search_concurrency": 3,
			"max_attempts":       2,
		},
		"logging": map[string]any{
			"format": "JSON",
			"level":  "Debug",
		},
	}
	data, err := toml.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected custom config to be used, got %q exists=%v", resolved, exists)
	}
	if cfg.Paths.DataDir != filepath.Join(tempHome, "cards") {
		t.Fatalf("unexpected data dir: %q", cfg.Paths.DataDir)
	}
	if cfg.Catalog.SearchConcurrency != 3 || cfg.Catalog.MaxAttempts != 2 {
		t.Fatalf("unexpected catalog overrides: %+v", cfg.Catalog)
	}
	if cfg.Catalog.BulkConcurrency != 10 {
		t.Fatalf("expected default bulk concurrency, got %d", cfg.Catalog.BulkConcurrency)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected logging config: %+v", cfg.Logging)
	}
}

func TestValidateRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{
			name:    "batch too large",
			mutate:  func(c *config.Config) { c.Catalog.BatchSize = 200 },
			wantErr: "catalog.batch_size",
		},
		{
			name:    "bad catalog scheme",
			mutate:  func(c *config.Config) { c.Catalog.BaseURL = "ftp://example.com" },
			wantErr: "catalog.base_url",
		},
		{
			name:    "trim above max",
			mutate:  func(c *config.Config) { c.Cache.SearchTrimRows = c.Cache.SearchMaxRows + 1 },
			wantErr: "cache.search_trim_rows",
		},
		{
			name:    "unknown level",
			mutate:  func(c *config.Config) { c.Logging.Level = "loud" },
			wantErr: "logging.level",
		},
		{
			name: "art search enabled without url",
			mutate: func(c *config.Config) {
				c.ArtSearch.Enabled = true
				c.ArtSearch.BaseURL = ""
			},
			wantErr: "art_search.base_url",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error mentioning %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestCreateSampleRoundTripsThroughLoad(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	if cfg.Server.PurgeSchedule != "@every 1h" {
		t.Fatalf("unexpected purge schedule %q", cfg.Server.PurgeSchedule)
	}
}
