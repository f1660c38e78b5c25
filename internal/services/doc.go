// Package services defines shared utilities consumed by the capture pipeline
// and its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp capture session IDs, export IDs, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper that classify failures
//     (external tool, validation, configuration, not found, timeout) so the
//     CLI and HTTP surface can report them consistently.
//
// Use these helpers when wiring new components so error handling and
// observability stay uniform.
package services
