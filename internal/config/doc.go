// Package config loads, normalizes, and validates cardcast configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment overrides such as
// CARDCAST_GENERATOR_API_KEY. The Config type centralizes every knob the CLI
// and the export server need: recording geometry and timing, storage
// directories, the generative content endpoint, and notification settings.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
