// Package logging assembles structured slog loggers and formatting helpers used
// across icpquery.
//
// It owns the configurable console/JSON handlers, mirrors records into a JSON
// log file when a log directory is configured, and exposes context-aware
// helpers so request handlers and the solver tag log lines with correlation
// IDs and the domain being looked up. The package also provides a no-op
// logger for tests and wiring code that cannot fail.
package logging
