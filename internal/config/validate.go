package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateCatalog(); err != nil {
		return err
	}
	if err := c.validateArtSearch(); err != nil {
		return err
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateCatalog() error {
	if err := validateURL("catalog.base_url", c.Catalog.BaseURL); err != nil {
		return err
	}
	if c.Catalog.BatchSize > maxCatalogBatchSize {
		return fmt.Errorf("catalog.batch_size must not exceed %d", maxCatalogBatchSize)
	}
	if c.Catalog.RetryMaxMS < c.Catalog.RetryBaseMS {
		return errors.New("catalog.retry_max_ms must be greater than or equal to catalog.retry_base_ms")
	}
	return nil
}

func (c *Config) validateArtSearch() error {
	if !c.ArtSearch.Enabled {
		return nil
	}
	return validateURL("art_search.base_url", c.ArtSearch.BaseURL)
}

func (c *Config) validateCache() error {
	if c.Cache.SearchTrimRows > c.Cache.SearchMaxRows {
		return errors.New("cache.search_trim_rows must not exceed cache.search_max_rows")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
}

func validateURL(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s must be set", field)
	}
	parsed, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s must use http or https", field)
	}
	return nil
}
