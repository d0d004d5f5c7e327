// Package services defines shared error markers and context helpers consumed
// by the solve pipeline, the credential pool and the HTTP surface.
//
// Key responsibilities:
//   - Context helpers that stamp correlation identifiers and the looked-up
//     domain for logging and tracing.
//   - Structured error markers plus the Wrap helper, so callers can classify
//     failures with errors.Is and translate them into HTTP status codes or
//     retry decisions.
package services
