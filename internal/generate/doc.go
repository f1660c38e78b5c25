// Package generate talks to the hosted generative content service that
// produces card scenes and overlay clips.
//
// The service is reached through one JSON POST per asset. The request carries
// the card's master and personalized text plus an optional reference image;
// the response carries the generated asset as a data URI. The client performs
// no retries: a failed generation is reported to the caller, who decides
// whether to try again.
//
// Errors are classified with the services markers so the HTTP API and CLI can
// map them onto status codes and exit messages.
package generate
