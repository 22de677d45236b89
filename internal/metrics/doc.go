// Package metrics declares the Prometheus collectors shared by cardcat
// components.
//
// Collectors are registered on the default registry through promauto so the
// serve process can expose them with promhttp. Helper functions keep label
// values consistent across packages.
package metrics
