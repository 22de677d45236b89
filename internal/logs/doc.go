// Package logs reads the cardcat log file for `cardcat logs`.
//
// It returns the last N lines with bounded memory, follows the file as the
// server appends to it, and restarts from the top when the file is truncated.
// Lines can be narrowed to one component in either log format.
package logs
