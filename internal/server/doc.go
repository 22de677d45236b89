// Package server exposes resolution and enrichment over HTTP.
//
// Enrichment streams are served as server-sent events on POST /api/enrich
// and as websocket frames on /api/enrich/ws. The server also runs the
// scheduled search cache purge and holds a file lock so only one instance
// serves a data directory at a time.
package server
