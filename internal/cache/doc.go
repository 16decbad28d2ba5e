// Package cache provides a byte-bounded LRU cache for derived media
// artifacts such as thumbnails.
//
// Payloads live in the database so they survive restarts; the manager keeps
// an in-memory index (key, size, recency) rebuilt from the store at startup.
// When the total payload size exceeds the budget, least recently used entries
// are evicted down to a low watermark so every insert doesn't trigger another
// eviction. Ties on access time break by insertion order, oldest first.
package cache
