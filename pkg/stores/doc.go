// Package stores provides the SQLite-backed run-history store.
//
// Every plan run can append one RunRecord capturing the plan fingerprint,
// requested phases, per-op results and the terminal status. The history is
// an append-only audit trail; nothing in the pipeline ever reads it back to
// make decisions.
//
// The store uses modernc.org/sqlite (pure Go, no cgo) with migrations
// embedded via golang-migrate's iofs source.
package stores
