package store

// CurrentVersion is the schema version this build writes.
const CurrentVersion = 4

const schemaVersionKey = "schema_version"

// currentSchema is applied to fresh databases in place of the migration chain.
const currentSchema = `
CREATE TABLE IF NOT EXISTS metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS cards (
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
    all_parts TEXT,
    released_at TEXT,
    updated_at TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_cards_printing ON cards(set_code, collector_number, lang);
CREATE INDEX IF NOT EXISTS idx_cards_name_lang ON cards(name COLLATE NOCASE, lang);

CREATE TABLE IF NOT EXISTS search_cache (
    query TEXT NOT NULL,
    category TEXT NOT NULL,
    results TEXT NOT NULL,
    cached_at INTEGER NOT NULL,
    PRIMARY KEY (query, category)
);

CREATE INDEX IF NOT EXISTS idx_search_cache_cached_at ON search_cache(cached_at);
`
