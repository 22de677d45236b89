package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// Catalog contains configuration for the primary card catalog API.
type Catalog struct {
	BaseURL           string `toml:"base_url"`
	UserAgent         string `toml:"user_agent"`
	TimeoutSeconds    int    `toml:"timeout_seconds"`
	SearchIntervalMS  int    `toml:"search_interval_ms"`
	SearchConcurrency int    `toml:"search_concurrency"`
	BulkConcurrency   int    `toml:"bulk_concurrency"`
	BatchSize         int    `toml:"batch_size"`
	MaxAttempts       int    `toml:"max_attempts"`
	RetryBaseMS       int    `toml:"retry_base_ms"`
	RetryMaxMS        int    `toml:"retry_max_ms"`
}

// ArtSearch contains configuration for the secondary fan-art catalog.
type ArtSearch struct {
	Enabled bool   `toml:"enabled"`
	BaseURL string `toml:"base_url"`
}

// Cache contains capacities and lifetimes for the layered caches.
type Cache struct {
	HotCapacity     int `toml:"hot_capacity"`
	ScoringCapacity int `toml:"scoring_capacity"`
	SearchTTLHours  int `toml:"search_ttl_hours"`
	SearchMaxRows   int `toml:"search_max_rows"`
	SearchTrimRows  int `toml:"search_trim_rows"`
}

// Stream contains timing for streaming enrichment sessions.
type Stream struct {
	HeartbeatSeconds   int `toml:"heartbeat_seconds"`
	ItemTimeoutSeconds int `toml:"item_timeout_seconds"`
}

// Server contains configuration for the serve process.
type Server struct {
	Bind          string `toml:"bind"`
	PurgeSchedule string `toml:"purge_schedule"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for cardcat.
//
// Configuration sections by subsystem:
//   - Paths: database and log locations
//   - Catalog: primary catalog endpoint, pacing, concurrency, and retries
//   - ArtSearch: secondary fan-art catalog
//   - Cache: hot/scoring LRU capacities and the search cache TTL and watermarks
//   - Stream: heartbeat cadence and per-item timeout for enrichment streams
//   - Server: HTTP bind address and scheduled cache purge
//   - Logging: log format and level
type Config struct {
	Paths     Paths     `toml:"paths"`
	Catalog   Catalog   `toml:"catalog"`
	ArtSearch ArtSearch `toml:"art_search"`
	Cache     Cache     `toml:"cache"`
	Stream    Stream    `toml:"stream"`
	Server    Server    `toml:"server"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("cardcat.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the data and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite file backing the card store and search cache.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "cards.db")
}

// LogPath returns the log file written alongside stderr output.
func (c *Config) LogPath() string {
	return filepath.Join(c.Paths.LogDir, "cardcat.log")
}

// LockPath returns the lock file guarding a single serve process.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "cardcat.lock")
}

// CatalogTimeout returns the per-request timeout for catalog calls.
func (c *Config) CatalogTimeout() time.Duration {
	return time.Duration(c.Catalog.TimeoutSeconds) * time.Second
}

// SearchInterval returns the minimum spacing between search dispatches.
func (c *Config) SearchInterval() time.Duration {
	return time.Duration(c.Catalog.SearchIntervalMS) * time.Millisecond
}

// RetryBackoff returns the base and maximum retry delays.
func (c *Config) RetryBackoff() (time.Duration, time.Duration) {
	return time.Duration(c.Catalog.RetryBaseMS) * time.Millisecond,
		time.Duration(c.Catalog.RetryMaxMS) * time.Millisecond
}

// SearchTTL returns the lifetime of secondary search cache rows.
func (c *Config) SearchTTL() time.Duration {
	return time.Duration(c.Cache.SearchTTLHours) * time.Hour
}

// HeartbeatInterval returns the cadence of stream heartbeat frames.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Stream.HeartbeatSeconds) * time.Second
}

// ItemTimeout returns the per-item resolution timeout for streams.
func (c *Config) ItemTimeout() time.Duration {
	return time.Duration(c.Stream.ItemTimeoutSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
