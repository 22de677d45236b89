// Package enrich streams resolution results for a list of queries.
//
// A Runner walks the queries in order and reports each one to a Sink as it
// completes: a handshake first, one found or error event per query followed
// by a progress event, heartbeats while work is outstanding, and exactly one
// terminal event. Cancellation by the caller or a failing sink ends the
// stream without a terminal event.
package enrich
