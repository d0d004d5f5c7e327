// Package main hosts the icpquery CLI entrypoint and command graph.
//
// The Cobra command tree runs the HTTP service (serve), performs one-shot
// lookups and challenge solves against the registry, lists cached records and
// the loaded background templates, and scaffolds configuration. Heavy lifting
// lives in the internal packages; commands here only resolve configuration,
// assemble components and render output.
package main
