// Package preflight provides readiness checks for the binaries, directories
// and services cardcast depends on.
//
// These checks run in two contexts:
//   - "cardcast serve" calls RunAll before accepting exports and refuses to
//     start when a required check fails.
//   - "cardcast status" and GET /api/status show the individual results.
package preflight
