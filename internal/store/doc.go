// Package store persists filing records looked up from the registry.
//
// Four backends share one Store interface: SQLite (the default, via
// modernc.org/sqlite), PostgreSQL (pgx pool), Redis and an in-process
// go-cache store. SQL backends carry embedded migrations applied on open.
//
// Rows are never updated. Find returns the oldest row for a domain; the
// domain column is indexed but not unique.
package store
