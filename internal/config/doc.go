// Package config loads, normalizes, and validates icpquery configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and layers ICPQUERY_* environment variables on
// top of file values. The Config type centralizes every knob the daemon and CLI
// need: registry endpoints, the captcha pipeline assets, and the record store.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
