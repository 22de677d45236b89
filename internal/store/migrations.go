package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/jmoiron/sqlx"

	"cardcat/internal/logging"
)

var (
	// ErrMigration marks a failed schema migration. The database is left at the
	// last successfully applied version and must not be used.
	ErrMigration = errors.New("schema migration failed")
	// ErrSchemaTooNew reports a database written by a newer build.
	ErrSchemaTooNew = errors.New("database schema is newer than this build")
)

// MigrationError describes the migration that failed.
type MigrationError struct {
	Version int
	Name    string
	Err     error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("apply migration %d (%s): %v", e.Version, e.Name, e.Err)
}

func (e *MigrationError) Unwrap() error { return e.Err }

func (e *MigrationError) Is(target error) bool { return target == ErrMigration }

// Migration is one forward-only schema step.
type Migration struct {
	Version    int
	Name       string
	Statements []string
}

// migrations upgrade databases written by earlier builds. Version 1 is the
// original shape; fresh databases skip the chain and get currentSchema.
var migrations = []Migration{
	{
		Version: 1,
		Name:    "base tables",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS metadata (key TEXT PRIMARY KEY, value TEXT NOT NULL)`,
			`CREATE TABLE IF NOT EXISTS cards (
                id TEXT PRIMARY KEY,
                oracle_id TEXT,
                name TEXT NOT NULL,
                set_code TEXT NOT NULL,
                collector_number TEXT NOT NULL,
                lang TEXT NOT NULL DEFAULT 'en',
                colors TEXT,
                mana_cost TEXT,
                cmc REAL NOT NULL DEFAULT 0,
                type_line TEXT,
                rarity TEXT,
                layout TEXT,
                image_uris TEXT,
                card_faces TEXT,
                updated_at TEXT NOT NULL
            )`,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_cards_printing ON cards(set_code, collector_number, lang)`,
			`CREATE TABLE IF NOT EXISTS search_cache (
                query TEXT NOT NULL,
                category TEXT NOT NULL,
                results TEXT NOT NULL,
                cached_at INTEGER NOT NULL,
                PRIMARY KEY (query, category)
            )`,
		},
	},
	{
		Version:    2,
		Name:       "relation list",
		Statements: []string{`ALTER TABLE cards ADD COLUMN all_parts TEXT`},
	},
	{
		Version: 3,
		Name:    "release date and name index",
		Statements: []string{
			`ALTER TABLE cards ADD COLUMN released_at TEXT`,
			`CREATE INDEX IF NOT EXISTS idx_cards_name_lang ON cards(name COLLATE NOCASE, lang)`,
		},
	},
	{
		Version:    4,
		Name:       "search cache age index",
		Statements: []string{`CREATE INDEX IF NOT EXISTS idx_search_cache_cached_at ON search_cache(cached_at)`},
	},
}

func (s *Store) initialize(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS metadata (key TEXT PRIMARY KEY, value TEXT NOT NULL)`); err != nil {
		return fmt.Errorf("ensure metadata table: %w", err)
	}

	version, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	switch {
	case version == 0:
		return s.createSchema(ctx)
	case version > s.currentVersion:
		return fmt.Errorf("%w: database has version %d, build supports %d", ErrSchemaTooNew, version, s.currentVersion)
	case version == s.currentVersion:
		return nil
	}

	for _, m := range s.migrations {
		if m.Version <= version {
			continue
		}
		if err := s.applyMigration(ctx, m); err != nil {
			return &MigrationError{Version: m.Version, Name: m.Name, Err: err}
		}
		s.logger.Info("schema migration applied",
			logging.Int("schema_version", m.Version),
			logging.String("migration", m.Name),
			logging.String(logging.FieldEventType, "schema_migrated"),
		)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, s.schema); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		return setVersion(ctx, tx, s.currentVersion)
	})
}

func (s *Store) applyMigration(ctx context.Context, m Migration) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, stmt := range m.Statements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		return setVersion(ctx, tx, m.Version)
	})
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func setVersion(ctx context.Context, tx *sqlx.Tx, version int) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO metadata (key, value) VALUES (?, ?)
         ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		schemaVersionKey, strconv.Itoa(version),
	)
	if err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return nil
}

// SchemaVersion reads the recorded schema version; 0 means an uninitialized database.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var raw string
	err := s.db.GetContext(ctx, &raw, `SELECT value FROM metadata WHERE key = ?`, schemaVersionKey)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	version, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse schema version %q: %w", raw, err)
	}
	return version, nil
}

// Inspect reports the schema version recorded in the database at path without
// creating or migrating it. exists is false when no file is present.
func Inspect(ctx context.Context, path string) (version int, exists bool, err error) {
	if _, statErr := os.Stat(path); statErr != nil {
		if errors.Is(statErr, os.ErrNotExist) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("stat database: %w", statErr)
	}
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return 0, true, fmt.Errorf("open sqlite db: %w", err)
	}
	defer db.Close()

	var tables int
	if err := db.GetContext(ctx, &tables,
		`SELECT COUNT(1) FROM sqlite_master WHERE type = 'table' AND name = 'metadata'`); err != nil {
		return 0, true, fmt.Errorf("inspect schema: %w", err)
	}
	if tables == 0 {
		return 0, true, nil
	}
	s := &Store{db: db}
	version, err = s.SchemaVersion(ctx)
	return version, true, err
}
