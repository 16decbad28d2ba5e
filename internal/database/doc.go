// Package database implements the durable store for the media organizer:
// file records produced by the scanner, cache entries owned by the cache
// manager, and the batch/operation/undo history written by the commit engine.
//
// Storage is a single SQLite file in WAL mode. All writers serialize through
// one mutex so a crash mid-batch leaves a consistent record of which
// operations completed. A failed integrity check at open time puts the store
// into a degraded read-only mode in which commits are refused; user data is
// never auto-deleted or reinitialized.
package database
