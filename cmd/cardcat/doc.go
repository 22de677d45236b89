// Package main hosts the cardcat CLI entrypoint and command graph.
//
// The Cobra command tree resolves card queries against the local store and the
// remote catalog, streams enrichment events, inspects and maintains the card
// database and search cache, scaffolds configuration, and runs the HTTP server.
// Heavy lifting lives in the internal packages; commands here only wire them
// together and render results.
package main
