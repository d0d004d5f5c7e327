// Package daemon coordinates the long-running icpquery process.
//
// It owns the record store, the credential pool and the HTTP API server, and
// holds a flock-based lock so only one instance serves from a data
// directory. Lookup logic lives in the query package; the daemon focuses on
// startup, shutdown and exposing the service over HTTP.
package daemon
