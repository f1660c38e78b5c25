// Package encoding provides the recorder sinks that turn composited frames into
// a single media container.
//
// A Sink is started against a Stream description, receives raw RGBA frames in
// order, and reports muxed bytes back through Events as they become available.
// OnStop fires after the final OnData once the container is complete; OnError
// fires instead when encoding fails. Exactly one of the two is delivered per
// started sink, and neither is delivered after Abort.
//
// FFmpegSink pipes frames into an ffmpeg child process and streams its stdout.
// MemorySink is an in-process container used for dry runs and tests.
package encoding
