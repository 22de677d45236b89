// Package store persists canonical card records in SQLite and owns the
// schema migration runner.
//
// Open creates or upgrades the database file: a fresh file receives the
// current schema directly, an older file is walked forward one migration per
// transaction, and a file written by a newer build is refused. The store
// keeps a single connection so writers serialize while WAL keeps readers
// unblocked.
//
// JSON columns are decoded and validated at the read boundary. Rows that fail
// either step are logged and reported as a miss so callers fall through to
// live resolution instead of seeing decode errors. Write listeners registered
// with OnWrite run after every committed upsert; the resolver uses them to
// clear its in-memory caches.
package store
