// Package refresher runs the acquisition loop. Each cycle opens the fetcher
// session, loads the source page, extracts the catalog and writes the outcome
// to the store; the loop then sleeps for an interval chosen by the schedule
// policy (after success) or the backoff (after failure) and repeats until its
// context is cancelled.
//
// Cycles never overlap and nothing a cycle does, including a panic, stops the
// loop. Once cancellation is observed no further store writes are made and
// the fetcher session is closed within the configured shutdown grace.
package refresher
