package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"cardcat/internal/logging"
)

// Store manages card persistence backed by SQLite.
type Store struct {
	db     *sqlx.DB
	path   string
	logger *slog.Logger

	schema         string
	migrations     []Migration
	currentVersion int

	mu        sync.RWMutex
	listeners map[int]func()
	nextID    int
}

// Option customizes Open.
type Option func(*Store)

// WithLogger sets the logger used for quarantine and migration messages.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logging.NewComponentLogger(logger, "store")
		}
	}
}

// Open initializes or connects to the card database and brings its schema up to date.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure database directory: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{
		db:             db,
		path:           path,
		logger:         logging.NewComponentLogger(nil, "store"),
		schema:         currentSchema,
		migrations:     migrations,
		currentVersion: CurrentVersion,
		listeners:      make(map[int]func()),
	}
	for _, opt := range opts {
		opt(store)
	}

	if err := store.initialize(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// DB exposes the shared handle for tables owned by other packages.
func (s *Store) DB() *sqlx.DB { return s.db }

// OnWrite registers fn to run after every committed card upsert and returns a
// func that unregisters it.
func (s *Store) OnWrite(fn func()) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Store) notifyWrite() {
	s.mu.RLock()
	fns := make([]func(), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()
	for _, fn := range fns {
		fn()
	}
}
