package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"cardcat/internal/artsearch"
	"cardcat/internal/config"
	"cardcat/internal/enrich"
	"cardcat/internal/logging"
	"cardcat/internal/resolve"
	"cardcat/internal/searchcache"
	"cardcat/internal/store"
)

// ErrAlreadyRunning is returned when another server holds the lock.
var ErrAlreadyRunning = errors.New("another cardcat server is already running")

// Deps are the services a Server exposes.
type Deps struct {
	Config   *config.Config
	Store    *store.Store
	Resolver *resolve.Service
	Art      *artsearch.Client
	Search   *searchcache.Cache
	Logger   *slog.Logger
	Version  string
}

// Server serves the HTTP API.
type Server struct {
	cfg      *config.Config
	store    *store.Store
	resolver *resolve.Service
	art      *artsearch.Client
	search   *searchcache.Cache
	logger   *slog.Logger
	base     *slog.Logger
	version  string
	started  time.Time

	handler  http.Handler
	server   *http.Server
	listener net.Listener
	lock     *flock.Flock
	cron     *cron.Cron

	mu      sync.Mutex
	running bool
}

// New constructs a server. Nothing listens until Start.
func New(deps Deps) (*Server, error) {
	if deps.Config == nil || deps.Store == nil || deps.Resolver == nil {
		return nil, errors.New("server requires config, store, and resolver")
	}
	s := &Server{
		cfg:      deps.Config,
		store:    deps.Store,
		resolver: deps.Resolver,
		art:      deps.Art,
		search:   deps.Search,
		logger:   logging.NewComponentLogger(deps.Logger, "api-server"),
		base:     deps.Logger,
		version:  deps.Version,
		lock:     flock.New(deps.Config.LockPath()),
		started:  time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/resolve", s.handleResolve)
	mux.HandleFunc("POST /api/tokens", s.handleTokens)
	mux.HandleFunc("POST /api/enrich", s.handleEnrichSSE)
	mux.HandleFunc("GET /api/enrich/ws", s.handleEnrichWebsocket)
	mux.HandleFunc("GET /api/art", s.handleArt)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.Handle("GET /metrics", promhttp.Handler())
	s.handler = s.withRequestID(mux)

	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Addr returns the listening address once started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Start acquires the instance lock, schedules the cache purge, and begins
// serving. The server stops when ctx ends or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("server already running")
	}

	ok, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrAlreadyRunning
	}

	if err := s.schedulePurge(); err != nil {
		_ = s.lock.Unlock()
		return err
	}

	listener, err := net.Listen("tcp", strings.TrimSpace(s.cfg.Server.Bind))
	if err != nil {
		s.stopCron()
		_ = s.lock.Unlock()
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener
	s.running = true

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info("api server listening",
		logging.String("address", listener.Addr().String()),
		logging.String("lock", s.cfg.LockPath()),
	)
	return nil
}

// Stop shuts the server down and releases the lock.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
	s.stopCron()
	if err := s.lock.Unlock(); err != nil {
		s.logger.Warn("failed to release server lock", logging.Error(err))
	}
	s.listener = nil
	s.logger.Info("api server stopped")
}

func (s *Server) schedulePurge() error {
	if s.search == nil || strings.TrimSpace(s.cfg.Server.PurgeSchedule) == "" {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(s.cfg.Server.PurgeSchedule, s.purgeSearchCache); err != nil {
		return fmt.Errorf("schedule search cache purge %q: %w", s.cfg.Server.PurgeSchedule, err)
	}
	c.Start()
	s.cron = c
	return nil
}

func (s *Server) stopCron() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.cron = nil
}

func (s *Server) purgeSearchCache() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	removed, err := s.search.PurgeExpired(ctx)
	if err != nil {
		logging.WarnWithContext(s.logger, "search cache purge failed", "search_cache_purge_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "expired rows remain until read or the next purge"),
		)
		return
	}
	s.logger.Debug("search cache purged", logging.Int("removed", removed))
}

// withRequestID tags every request with a correlation id.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), id)))
	})
}

func (s *Server) runner(mode enrich.Mode) *enrich.Runner {
	opts := enrich.OptionsFromConfig(s.cfg)
	opts.Mode = mode
	return &enrich.Runner{Resolver: s.resolver, Options: opts, Logger: s.base}
}
