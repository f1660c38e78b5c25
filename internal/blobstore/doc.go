// Package blobstore keeps finished recordings on disk and addresses them with
// blob URLs of the form blob:cardcast/<uuid>.
//
// A blob URL stays valid until it is revoked. Artifacts are written to a
// temporary file and renamed into place, so a URL never points at a partial
// recording.
package blobstore
