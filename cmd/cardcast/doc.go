// Command cardcast records animated greeting cards to downloadable video.
//
// Subcommands record locally (export), call the generation endpoint
// (generate), run the HTTP export server (serve) and inspect history and
// readiness (exports, status). Commands that read history talk to a running
// server when one answers and fall back to the local database otherwise.
package main
