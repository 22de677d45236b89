// Package card defines the catalog record and query types shared by every
// cardcat layer, plus the pure helpers that operate on them: cache keys,
// name normalization, image URL selection, and related-token derivation.
//
// Records mirror the catalog's JSON field names so payloads decode directly.
// The relation list is tri-state: nil means the record was never enriched,
// an empty slice means it was enriched and has no relations. Callers use
// HasRelations to tell the two apart.
package card
