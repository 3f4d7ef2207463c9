// Package store holds the current quote snapshot. It has a single writer
// (the refresher) and any number of concurrent readers. Writers build a new
// snapshot and swap it in atomically, so readers never block and never see
// a half-applied update.
package store
