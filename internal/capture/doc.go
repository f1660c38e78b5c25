// Package capture records composited frames into a downloadable artifact.
//
// A Recorder runs at most one Session at a time. Each session moves through
// idle -> recording -> done or idle -> recording -> error (initialization
// failures go straight from idle to error) and never leaves a terminal state;
// retrying means starting a new session.
//
// Per session the Callbacks contract is:
//
//   - OnRecordingStart fires once, after the capture stream and recorder sink
//     are acquired and before the first frame is rendered.
//   - Exactly one of OnRecordingComplete or OnRecordingError fires, after the
//     render surface has been disposed and the recorder slot released.
//
// Recording stops by itself once the frame timeline reaches the configured
// duration. There is no stop control: cancelling the start context is treated
// as a runtime failure and produces no artifact.
package capture
