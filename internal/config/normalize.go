package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeCatalog()
	c.normalizeArtSearch()
	c.normalizeCache()
	c.normalizeStream()
	c.normalizeServer()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeCatalog() {
	if value, ok := os.LookupEnv("CARDCAT_CATALOG_URL"); ok && strings.TrimSpace(value) != "" {
		c.Catalog.BaseURL = value
	}
	c.Catalog.BaseURL = strings.TrimRight(strings.TrimSpace(c.Catalog.BaseURL), "/")
	if c.Catalog.BaseURL == "" {
		c.Catalog.BaseURL = defaultCatalogBaseURL
	}
	c.Catalog.UserAgent = strings.TrimSpace(c.Catalog.UserAgent)
	if c.Catalog.UserAgent == "" {
		c.Catalog.UserAgent = defaultCatalogUserAgent
	}
	if c.Catalog.TimeoutSeconds <= 0 {
		c.Catalog.TimeoutSeconds = defaultCatalogTimeout
	}
	if c.Catalog.SearchIntervalMS <= 0 {
		c.Catalog.SearchIntervalMS = defaultSearchIntervalMS
	}
	if c.Catalog.SearchConcurrency <= 0 {
		c.Catalog.SearchConcurrency = defaultSearchConcurrency
	}
	if c.Catalog.BulkConcurrency <= 0 {
		c.Catalog.BulkConcurrency = defaultBulkConcurrency
	}
	if c.Catalog.BatchSize <= 0 {
		c.Catalog.BatchSize = defaultBatchSize
	}
	if c.Catalog.MaxAttempts <= 0 {
		c.Catalog.MaxAttempts = defaultMaxAttempts
	}
	if c.Catalog.RetryBaseMS <= 0 {
		c.Catalog.RetryBaseMS = defaultRetryBaseMS
	}
	if c.Catalog.RetryMaxMS <= 0 {
		c.Catalog.RetryMaxMS = defaultRetryMaxMS
	}
}

func (c *Config) normalizeArtSearch() {
	if value, ok := os.LookupEnv("CARDCAT_ART_SEARCH_URL"); ok && strings.TrimSpace(value) != "" {
		c.ArtSearch.BaseURL = value
		c.ArtSearch.Enabled = true
	}
	c.ArtSearch.BaseURL = strings.TrimRight(strings.TrimSpace(c.ArtSearch.BaseURL), "/")
	if c.ArtSearch.BaseURL == "" {
		c.ArtSearch.BaseURL = defaultArtSearchBaseURL
	}
}

func (c *Config) normalizeCache() {
	if c.Cache.HotCapacity <= 0 {
		c.Cache.HotCapacity = defaultHotCapacity
	}
	if c.Cache.ScoringCapacity <= 0 {
		c.Cache.ScoringCapacity = defaultScoringCapacity
	}
	if c.Cache.SearchTTLHours <= 0 {
		c.Cache.SearchTTLHours = defaultSearchTTLHours
	}
	if c.Cache.SearchMaxRows <= 0 {
		c.Cache.SearchMaxRows = defaultSearchMaxRows
	}
	if c.Cache.SearchTrimRows <= 0 {
		c.Cache.SearchTrimRows = c.Cache.SearchMaxRows * 9 / 10
	}
}

func (c *Config) normalizeStream() {
	if c.Stream.HeartbeatSeconds <= 0 {
		c.Stream.HeartbeatSeconds = defaultHeartbeatSeconds
	}
	if c.Stream.ItemTimeoutSeconds <= 0 {
		c.Stream.ItemTimeoutSeconds = defaultItemTimeout
	}
}

func (c *Config) normalizeServer() {
	c.Server.Bind = strings.TrimSpace(c.Server.Bind)
	if c.Server.Bind == "" {
		c.Server.Bind = defaultServerBind
	}
	c.Server.PurgeSchedule = strings.TrimSpace(c.Server.PurgeSchedule)
	if c.Server.PurgeSchedule == "" {
		c.Server.PurgeSchedule = defaultPurgeSchedule
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
