// Package hotcache provides the bounded in-memory LRU caches that sit in
// front of the card store. Entries never expire by age; owners purge them
// wholesale when the store changes.
package hotcache
