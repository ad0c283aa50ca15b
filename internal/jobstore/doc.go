// Package jobstore records the terminal outcome of every encode job in a
// SQLite database so callers can look up a request after its progress
// stream has closed.
//
// The database runs in WAL mode. Records are keyed by job id; saving the
// same job twice replaces the earlier row.
package jobstore
