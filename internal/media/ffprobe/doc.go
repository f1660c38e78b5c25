// Package ffprobe wraps ffprobe's JSON output and checks finished exports
// against what the recorder was asked to produce.
//
// Inspect runs ffprobe and returns the parsed Result; Verify compares a
// Result with an Expectation (one video track, an audio track only when a
// soundtrack was mixed in, geometry, and duration within a tolerance).
package ffprobe
