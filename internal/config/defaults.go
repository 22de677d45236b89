package config

const (
	defaultConfigPath        = "~/.config/cardcat/config.toml"
	defaultDataDir           = "~/.local/share/cardcat"
	defaultLogDir            = "~/.local/share/cardcat/logs"
	defaultCatalogBaseURL    = "https://api.scryfall.com"
	defaultCatalogUserAgent  = "cardcat/dev"
	defaultCatalogTimeout    = 30
	defaultSearchIntervalMS  = 100
	defaultSearchConcurrency = 6
	defaultBulkConcurrency   = 10
	defaultBatchSize         = 75
	defaultMaxAttempts       = 4
	defaultRetryBaseMS       = 250
	defaultRetryMaxMS        = 8000
	defaultArtSearchBaseURL  = "https://art.cardcat.invalid/api"
	defaultHotCapacity       = 500
	defaultScoringCapacity   = 500
	defaultSearchTTLHours    = 24
	defaultSearchMaxRows     = 10000
	defaultSearchTrimRows    = 9000
	defaultHeartbeatSeconds  = 15
	defaultItemTimeout       = 30
	defaultServerBind        = "127.0.0.1:7788"
	defaultPurgeSchedule     = "@every 1h"
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"

	// maxCatalogBatchSize is the catalog's cap on identifiers per collection call.
	maxCatalogBatchSize = 75
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Catalog: Catalog{
			BaseURL:           defaultCatalogBaseURL,
			UserAgent:         defaultCatalogUserAgent,
			TimeoutSeconds:    defaultCatalogTimeout,
			SearchIntervalMS:  defaultSearchIntervalMS,
			SearchConcurrency: defaultSearchConcurrency,
			BulkConcurrency:   defaultBulkConcurrency,
			BatchSize:         defaultBatchSize,
			MaxAttempts:       defaultMaxAttempts,
			RetryBaseMS:       defaultRetryBaseMS,
			RetryMaxMS:        defaultRetryMaxMS,
		},
		ArtSearch: ArtSearch{
			BaseURL: defaultArtSearchBaseURL,
		},
		Cache: Cache{
			HotCapacity:     defaultHotCapacity,
			ScoringCapacity: defaultScoringCapacity,
			SearchTTLHours:  defaultSearchTTLHours,
			SearchMaxRows:   defaultSearchMaxRows,
			SearchTrimRows:  defaultSearchTrimRows,
		},
		Stream: Stream{
			HeartbeatSeconds:   defaultHeartbeatSeconds,
			ItemTimeoutSeconds: defaultItemTimeout,
		},
		Server: Server{
			Bind:          defaultServerBind,
			PurgeSchedule: defaultPurgeSchedule,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
