// Package exportsvc runs one card export end to end.
//
// A Spec names the scene, overlay and soundtrack by reference (URL, data URI,
// blob URL or path). The service resolves them, opens the overlay clip,
// starts a capture session, records the export in history, verifies the
// artifact with ffprobe when configured, and publishes a notification.
//
// Begin returns as soon as the session is recording; Export blocks until the
// export is terminal. The CLI uses Export and the HTTP API uses Begin.
package exportsvc
