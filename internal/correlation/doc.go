// Package correlation tracks commands that are waiting for an asynchronous
// answer from a site's Bluetooth adapter or from the speech recognizer.
//
// The bus has no request/response primitive. A command registers a
// PendingRequest and gets a fresh token; the answer is matched either by
// that token (vocabulary injection echoes it as requestId) or by site and
// kind for adapter answers, which carry no token. Device answers echo the
// address, so they only match a request for the same device. Matching
// removes the entry, so an answer is never processed twice.
//
// Scan and injection requests that stay unanswered for the scan window
// (30s by default) are evicted silently by Sweep, which Run calls once per
// second.
package correlation
