// Package config loads, normalizes, and validates cardcat configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// CARDCAT_CATALOG_URL. The Config type centralizes every knob the CLI and the
// serve process need: storage locations, catalog pacing and retry limits,
// cache capacities, stream timing, and the HTTP bind address.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
