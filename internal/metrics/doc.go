// Package metrics defines Prometheus collectors for every subsystem of the
// media organizer: scanner, metadata probing, cache, database, filesystem
// operations and the batch commit/undo engine.
//
// All collectors are registered with the default registry via promauto and
// exported through the /metrics endpoint set up in main.
package metrics
