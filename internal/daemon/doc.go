// Package daemon runs the long-lived cardcast export server.
//
// It wires configuration, the export service and the log stream hub into a
// single lifecycle with flock-based locking so only one server owns a data
// directory. The HTTP surface starts exports, lists history, serves finished
// artifacts and reports readiness.
//
// Keep orchestration here: recording and history live in their own packages
// while the daemon focuses on startup, shutdown and request routing.
package daemon
