package artsearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"cardcat/internal/catalog"
	"cardcat/internal/config"
	"cardcat/internal/logging"
	"cardcat/internal/searchcache"
)

// Categories accepted by the secondary catalog.
const (
	CategoryCard     = "CARD"
	CategoryCardBack = "CARDBACK"
	CategoryToken    = "TOKEN"
)

var (
	// ErrDisabled is returned when no secondary catalog is configured.
	ErrDisabled = errors.New("art search disabled")
	// ErrInvalidCategory is returned for categories outside the known set.
	ErrInvalidCategory = errors.New("invalid art category")
)

// Result is one artwork returned by the secondary catalog.
type Result struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	ImageURL     string   `json:"imageUrl"`
	ThumbnailURL string   `json:"thumbnailUrl,omitempty"`
	Artist       string   `json:"artist,omitempty"`
	Tags         []string `json:"tags,omitempty"`
}

type searchResponse struct {
	Results []Result `json:"results"`
}

// Client searches the secondary catalog.
type Client struct {
	fetcher *catalog.Fetcher
	cache   *searchcache.Cache
	logger  *slog.Logger
	enabled bool
}

// New wraps fetcher, whose base URL must point at the secondary catalog.
// cache may be nil.
func New(fetcher *catalog.Fetcher, cache *searchcache.Cache, logger *slog.Logger) *Client {
	return &Client{
		fetcher: fetcher,
		cache:   cache,
		logger:  logging.NewComponentLogger(logger, "artsearch"),
		enabled: fetcher != nil,
	}
}

// NewFromConfig builds a client for the [art_search] section. The returned
// client reports ErrDisabled when the section is disabled.
func NewFromConfig(cfg *config.Config, cache *searchcache.Cache, logger *slog.Logger) *Client {
	if !cfg.ArtSearch.Enabled {
		return New(nil, cache, logger)
	}
	settings := catalog.SettingsFromConfig(cfg)
	settings.BaseURL = cfg.ArtSearch.BaseURL
	return New(catalog.NewFetcher(settings, catalog.WithLogger(logger)), cache, logger)
}

// Enabled reports whether a secondary catalog is configured.
func (c *Client) Enabled() bool {
	return c.enabled
}

// NormalizeCategory uppercases category and checks it, defaulting to CARD.
func NormalizeCategory(category string) (string, error) {
	category = strings.ToUpper(strings.TrimSpace(category))
	switch category {
	case "":
		return CategoryCard, nil
	case CategoryCard, CategoryCardBack, CategoryToken:
		return category, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidCategory, category)
	}
}

// Search returns artwork matching query in category.
func (c *Client) Search(ctx context.Context, query, category string) ([]Result, error) {
	if !c.enabled {
		return nil, ErrDisabled
	}
	category, err := NormalizeCategory(category)
	if err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return []Result{}, nil
	}

	if c.cache != nil {
		var cached []Result
		hit, err := c.cache.GetInto(ctx, query, category, &cached)
		if err != nil {
			logging.WarnWithContext(c.logger, "art search cache read failed", "art_cache_read_failed",
				logging.String("query", query),
				logging.Error(err),
				logging.String(logging.FieldImpact, "search sent to the secondary catalog"),
			)
		} else if hit {
			return cached, nil
		}
	}

	resp, err := c.fetcher.Do(ctx, catalog.Request{
		Lane:  catalog.LaneBulk,
		Path:  "/search",
		Query: map[string]string{"q": query, "category": category},
	}, catalog.ImagePolicy)
	if err != nil {
		if catalog.IsNotFound(err) {
			return []Result{}, nil
		}
		return nil, fmt.Errorf("art search %q: %w", query, err)
	}
	var decoded searchResponse
	if err := json.Unmarshal(resp.Body, &decoded); err != nil {
		return nil, fmt.Errorf("decode art search %q: %w", query, err)
	}
	results := decoded.Results
	if results == nil {
		results = []Result{}
	}

	if c.cache != nil {
		if err := c.cache.Put(ctx, query, category, results); err != nil {
			logging.WarnWithContext(c.logger, "art search cache write failed", "art_cache_write_failed",
				logging.String("query", query),
				logging.Error(err),
				logging.String(logging.FieldImpact, "next identical search repeats the request"),
			)
		}
	}
	return results, nil
}
