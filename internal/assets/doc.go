// Package assets resolves the scene, overlay and soundtrack references an
// export is built from.
//
// References may be http(s) URLs, data: URIs as returned by the generator,
// local paths (file:// or plain, with ~ expansion) or blob URLs issued by the
// blob store. Resolved assets are held in memory; Materialize spills them to
// disk when an external decoder needs a file path.
package assets
