// Package compositor owns the render surface and the fixed-rate render loop
// used by capture sessions.
//
// A Surface is a fixed-size canvas backed by gogpu/gg. Each frame it draws the
// static scene stretched to the canvas bounds, layers the current overlay frame
// on top with an additive blend (screen by default), and restores normal
// blending before handing the composite to the caller. A Loop calls back once
// per frame at the target rate; elapsed time is derived from the frame index so
// two runs with the same inputs produce the same frame timeline.
//
// Surfaces are single-owner resources: Dispose releases the gg context and any
// later Compose call fails with ErrDisposed.
package compositor
