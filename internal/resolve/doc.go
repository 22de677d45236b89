// Package resolve turns loose card queries into canonical records.
//
// Resolution walks three tiers. The local tier consults the in-memory hot
// cache, the scoring cache of earlier name decisions, and the persistent
// store. Queries still unresolved are batched into collection lookups, and
// whatever remains falls back to individual searches ranked by a scoring
// function. Every remote result is written to the store before it is cached
// in memory; store writes purge both in-memory caches.
//
// A record whose relation list was never populated is treated as a miss so
// token derivation always sees enriched data.
package resolve
