// Package searchcache stores secondary catalog search results in the
// search_cache table with a fixed lifetime and a row cap.
//
// Reads past the lifetime are misses and delete the stale row. Writes trim the
// table back to a lower watermark once it grows past the cap, oldest rows
// first, so trimming runs occasionally rather than on every insert.
package searchcache
