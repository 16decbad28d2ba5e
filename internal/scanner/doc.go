// Package scanner discovers media files and enriches them with probed
// metadata.
//
// Discovery is progressive: each file is recorded and emitted as soon as the
// walk sees it, then emitted again once a worker pool has probed it. Files
// unchanged since the last scan (same path, size and mtime) are not probed
// again, and files that have disappeared are marked stale rather than
// deleted. A filesystem watcher keeps the store current between scans.
package scanner
