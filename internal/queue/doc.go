// Package queue implements the candidate registry the scanner walks.
//
// The registry is a round-robin list with a persistent cursor. Registering and
// unregistering pages never disturbs the cursor's position relative to the
// remaining pages, and every time the cursor wraps back to the first page a
// full scan is reported to the configured counter.
package queue
