// Package exports persists the history of capture sessions in SQLite.
//
// Each Record mirrors one recording attempt: it is created in the recording
// state when a session starts and moves exactly once to done (with the blob
// URL of the artifact) or error (with the failure message). ResetStuck fails
// rows a previous process left in recording so the history never shows a
// session that can no longer finish.
package exports
