// Package artsearch queries the secondary fan-art catalog. Results are
// served from the search cache when fresh and stored after every
// successful lookup.
package artsearch
