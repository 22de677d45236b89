package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"cardcat/internal/artsearch"
	"cardcat/internal/catalog"
	"cardcat/internal/config"
	"cardcat/internal/logging"
	"cardcat/internal/resolve"
	"cardcat/internal/searchcache"
	"cardcat/internal/store"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

type commandContext struct {
	configFlag *string
	jsonFlag   *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error
}

func newCommandContext(configFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		jsonFlag:   jsonFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureLogger(cfg *config.Config) (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		c.logger, c.loggerErr = logging.NewFromConfig(cfg)
	})
	return c.logger, c.loggerErr
}

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

// services bundles the components a command needs against one database.
type services struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *store.Store
	search   *searchcache.Cache
	catalog  *catalog.Client
	resolver *resolve.Service
	art      *artsearch.Client
}

func (c *commandContext) openServices(ctx context.Context) (*services, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := c.ensureLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	st, err := store.Open(ctx, cfg.DatabasePath(), store.WithLogger(logger))
	if err != nil {
		if errors.Is(err, store.ErrMigration) {
			return nil, fmt.Errorf("database %s could not be upgraded: %w", cfg.DatabasePath(), err)
		}
		return nil, fmt.Errorf("open store: %w", err)
	}

	search := searchcache.New(st.DB(),
		searchcache.WithTTL(cfg.SearchTTL()),
		searchcache.WithLimits(cfg.Cache.SearchMaxRows, cfg.Cache.SearchTrimRows),
		searchcache.WithLogger(logger),
	)
	client := catalog.NewClient(catalog.NewFetcher(catalog.SettingsFromConfig(cfg), catalog.WithLogger(logger)), logger)
	resolver := resolve.New(st, client,
		resolve.WithLogger(logger),
		resolve.WithCapacities(cfg.Cache.HotCapacity, cfg.Cache.ScoringCapacity),
		resolve.WithBatchSize(cfg.Catalog.BatchSize),
	)

	return &services{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		search:   search,
		catalog:  client,
		resolver: resolver,
		art:      artsearch.NewFromConfig(cfg, search, logger),
	}, nil
}

func (s *services) Close() {
	if s == nil {
		return
	}
	s.resolver.Close()
	_ = s.store.Close()
}

func (c *commandContext) withServices(cmd *cobra.Command, fn func(*services) error) error {
	svc, err := c.openServices(cmd.Context())
	if err != nil {
		return err
	}
	defer svc.Close()
	return fn(svc)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
