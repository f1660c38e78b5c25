// Package api defines wire-format types and converters for the HTTP API.
// It translates export history rows, capture session snapshots and log
// events into transport-friendly DTOs that the CLI and browser clients can
// render without coupling to internal types.
//
// # Key Types
//
// Export: transport representation of an export history row, including the
// artifact link once the recording is done.
//
// Session: the live capture session (state, frame progress).
//
// ServerStatus: server running state, active session, export counts,
// dependency and readiness checks.
//
// LogEvent/LogStreamResponse: structured log payloads for live tailing.
//
// # Design Notes
//
// DTOs use camelCase JSON tags for JavaScript consumers. Timestamps use
// RFC3339 with milliseconds. Artifact links point at the server's /blobs
// route so clients never see blob store paths.
package api
