// Package overlay serves the frames of a looping effect clip to the render
// loop.
//
// Sources are indexed by render frame: FrameAt(n) returns the overlay frame
// visible at n / fps seconds, wrapping around the clip length so the effect
// loops for as long as the recording runs. Video clips are decoded by an
// ffmpeg child process; animated GIFs and still images are decoded in process.
package overlay
