// Package types defines the shared quote data model used by the refresher,
// the cache store and the HTTP API.
//
// Top-level types:
//   - Price: a decimal value that may be unavailable; "N/A" only at the JSON boundary
//   - QuoteRecord: bid/offer for one catalog symbol, captured at one instant
//   - Status: initializing | success | partial | error
//   - Snapshot: the single current cache value; never mutated after publication
//
// SnapshotJSON is the exact wire shape served to API clients.
package types
