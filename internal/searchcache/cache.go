package searchcache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"cardcat/internal/card"
	"cardcat/internal/logging"
	"cardcat/internal/metrics"
)

const (
	DefaultTTL     = 24 * time.Hour
	DefaultMaxRows = 10000
	DefaultTrimTo  = 9000

	metricsName = "search"
)

// Stats summarizes the table contents.
type Stats struct {
	Rows   int
	Oldest time.Time
	Newest time.Time
}

// Cache is the TTL and size bounded secondary search cache.
type Cache struct {
	db      *sqlx.DB
	ttl     time.Duration
	maxRows int
	trimTo  int
	now     func() time.Time
	logger  *slog.Logger
}

// Option customizes a Cache.
type Option func(*Cache)

// WithTTL overrides the row lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithLimits overrides the row cap and the watermark trimmed down to.
func WithLimits(maxRows, trimTo int) Option {
	return func(c *Cache) {
		if maxRows > 0 {
			c.maxRows = maxRows
		}
		if trimTo > 0 && trimTo <= c.maxRows {
			c.trimTo = trimTo
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logging.NewComponentLogger(logger, "searchcache")
		}
	}
}

// New constructs a cache over db, which must carry the search_cache table.
func New(db *sqlx.DB, opts ...Option) *Cache {
	c := &Cache{
		db:      db,
		ttl:     DefaultTTL,
		maxRows: DefaultMaxRows,
		trimTo:  DefaultTrimTo,
		now:     time.Now,
		logger:  logging.NewComponentLogger(nil, "searchcache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.trimTo > c.maxRows {
		c.trimTo = c.maxRows
	}
	return c
}

// NormalizeQuery folds free text so equivalent searches share a row.
func NormalizeQuery(query string) string {
	return card.NormalizeName(query)
}

type row struct {
	Results  string `db:"results"`
	CachedAt int64  `db:"cached_at"`
}

// Get returns the cached result list for query and category.
func (c *Cache) Get(ctx context.Context, query, category string) ([]json.RawMessage, bool, error) {
	key, cat := NormalizeQuery(query), normalizeCategory(category)

	var r row
	err := c.db.GetContext(ctx, &r, `SELECT results, cached_at FROM search_cache WHERE query = ? AND category = ?`, key, cat)
	if errors.Is(err, sql.ErrNoRows) {
		metrics.CacheMiss(metricsName)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read search cache: %w", err)
	}

	cachedAt := time.UnixMilli(r.CachedAt)
	if c.now().Sub(cachedAt) > c.ttl {
		metrics.CacheMiss(metricsName)
		return nil, false, c.delete(ctx, key, cat)
	}

	var results []json.RawMessage
	err = json.Unmarshal([]byte(r.Results), &results)
	if err == nil && results == nil {
		err = errors.New("results are not a list")
	}
	if err != nil {
		logging.WarnWithContext(c.logger, "dropping malformed search cache row", "search_cache_malformed",
			logging.String("query", key),
			logging.String("category", cat),
			logging.Error(err),
			logging.String(logging.FieldImpact, "search repeated against the secondary catalog"),
		)
		metrics.CacheMiss(metricsName)
		return nil, false, c.delete(ctx, key, cat)
	}
	metrics.CacheHit(metricsName)
	return results, true, nil
}

// GetInto decodes a cached result list into dst.
func (c *Cache) GetInto(ctx context.Context, query, category string, dst any) (bool, error) {
	results, ok, err := c.Get(ctx, query, category)
	if err != nil || !ok {
		return false, err
	}
	data, err := json.Marshal(results)
	if err != nil {
		return false, fmt.Errorf("re-encode cached results: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		key, cat := NormalizeQuery(query), normalizeCategory(category)
		logging.WarnWithContext(c.logger, "cached results do not match requested shape", "search_cache_malformed",
			logging.String("query", key),
			logging.Error(err),
		)
		return false, c.delete(ctx, key, cat)
	}
	return true, nil
}

// Put stores results and trims the table when it exceeds the row cap.
func (c *Cache) Put(ctx context.Context, query, category string, results any) error {
	data, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("encode search results: %w", err)
	}
	if string(data) == "null" {
		data = []byte("[]")
	}
	key, cat := NormalizeQuery(query), normalizeCategory(category)
	_, err = c.db.ExecContext(ctx,
		`INSERT INTO search_cache (query, category, results, cached_at) VALUES (?, ?, ?, ?)
         ON CONFLICT(query, category) DO UPDATE SET results = excluded.results, cached_at = excluded.cached_at`,
		key, cat, string(data), c.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("write search cache: %w", err)
	}
	return c.trim(ctx)
}

func (c *Cache) trim(ctx context.Context) error {
	var rows int
	if err := c.db.GetContext(ctx, &rows, `SELECT COUNT(1) FROM search_cache`); err != nil {
		return fmt.Errorf("count search cache: %w", err)
	}
	if rows <= c.maxRows {
		return nil
	}
	excess := rows - c.trimTo
	res, err := c.db.ExecContext(ctx,
		`DELETE FROM search_cache WHERE rowid IN (
            SELECT rowid FROM search_cache ORDER BY cached_at ASC, rowid ASC LIMIT ?)`,
		excess,
	)
	if err != nil {
		return fmt.Errorf("trim search cache: %w", err)
	}
	removed, _ := res.RowsAffected()
	metrics.CacheEvicted(metricsName, int(removed))
	c.logger.Debug("search cache trimmed",
		logging.Int("removed", int(removed)),
		logging.Int("remaining", rows-int(removed)),
	)
	return nil
}

// PurgeExpired deletes every row past the lifetime and reports how many were removed.
func (c *Cache) PurgeExpired(ctx context.Context) (int, error) {
	cutoff := c.now().Add(-c.ttl).UnixMilli()
	res, err := c.db.ExecContext(ctx, `DELETE FROM search_cache WHERE cached_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge search cache: %w", err)
	}
	removed, _ := res.RowsAffected()
	return int(removed), nil
}

// Clear deletes every row.
func (c *Cache) Clear(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM search_cache`); err != nil {
		return fmt.Errorf("clear search cache: %w", err)
	}
	metrics.CachePurged(metricsName)
	return nil
}

// Stats reports row count and age bounds.
func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	var raw struct {
		Rows   int           `db:"row_count"`
		Oldest sql.NullInt64 `db:"oldest"`
		Newest sql.NullInt64 `db:"newest"`
	}
	if err := c.db.GetContext(ctx, &raw,
		`SELECT COUNT(1) AS row_count, MIN(cached_at) AS oldest, MAX(cached_at) AS newest FROM search_cache`); err != nil {
		return Stats{}, fmt.Errorf("search cache stats: %w", err)
	}
	stats := Stats{Rows: raw.Rows}
	if raw.Oldest.Valid {
		stats.Oldest = time.UnixMilli(raw.Oldest.Int64).UTC()
	}
	if raw.Newest.Valid {
		stats.Newest = time.UnixMilli(raw.Newest.Int64).UTC()
	}
	return stats, nil
}

func (c *Cache) delete(ctx context.Context, query, category string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM search_cache WHERE query = ? AND category = ?`, query, category); err != nil {
		return fmt.Errorf("delete search cache row: %w", err)
	}
	return nil
}

func normalizeCategory(category string) string {
	return strings.ToUpper(strings.TrimSpace(category))
}
