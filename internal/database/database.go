package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"media-organizer/internal/logging"
	"media-organizer/internal/metrics"
)

// Default timeout for database operations
const defaultTimeout = 5 * time.Second

// ErrCorrupt is returned for mutating calls while the store is in degraded
// mode after a failed integrity check.
var ErrCorrupt = errors.New("database failed integrity check; commits refused until resolved")

// Store manages all durable state for the organizer.
type Store struct {
	db      *sql.DB
	dbPath  string
	mu      sync.Mutex // serializes all writers
	corrupt bool
}

// Open opens (creating if necessary) the SQLite store at dbPath. The parent
// directory must already exist and be writable; use config.Load for that
// validation.
//
// If the existing database fails its integrity check, Open still succeeds but
// the store is marked corrupt: reads work, mutations return ErrCorrupt. The
// data is never auto-deleted.
func Open(ctx context.Context, dbPath string) (*Store, error) {
	logging.Info("Database path: %s", dbPath)

	// busy_timeout prevents "database is locked" errors under WAL
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=10000&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db, dbPath: dbPath}

	corrupt, err := s.checkIntegrity(ctx)
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after integrity check error: %v", closeErr)
		}
		return nil, fmt.Errorf("integrity check failed to run: %w", err)
	}
	if corrupt {
		logging.Error("Database integrity check FAILED for %s; opening in degraded read-only mode", dbPath)
		s.corrupt = true
		return s, nil
	}

	if err := s.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after initialization failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	logging.Info("Database initialized successfully at %s", dbPath)
	return s, nil
}

// checkIntegrity runs PRAGMA integrity_check and reports whether the store
// is corrupt.
func (s *Store) checkIntegrity(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var result string
	if err := s.db.QueryRowContext(ctx, "PRAGMA integrity_check(1)").Scan(&result); err != nil {
		return false, err
	}
	return result != "ok", nil
}

func (s *Store) initialize(ctx context.Context) error {
	schema := `
	-- Files known to the organizer; path is the natural key.
	CREATE TABLE IF NOT EXISTS file_records (
		path TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		size INTEGER NOT NULL DEFAULT 0,
		mod_time INTEGER NOT NULL,
		fingerprint TEXT NOT NULL,
		scan_state TEXT NOT NULL DEFAULT 'pending',
		stale INTEGER NOT NULL DEFAULT 0,
		duration REAL,
		width INTEGER,
		height INTEGER,
		codec TEXT,
		subtitles TEXT,
		scanned_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	CREATE INDEX IF NOT EXISTS idx_file_records_state ON file_records(scan_state);
	CREATE INDEX IF NOT EXISTS idx_file_records_fingerprint ON file_records(fingerprint);

	-- Cache payloads keyed by file fingerprint.
	CREATE TABLE IF NOT EXISTS cache_entries (
		key TEXT PRIMARY KEY,
		payload BLOB NOT NULL,
		size_bytes INTEGER NOT NULL,
		last_access INTEGER NOT NULL,
		seq INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_cache_entries_access ON cache_entries(last_access, seq);

	-- Batch and operation history; retained even after supersession.
	CREATE TABLE IF NOT EXISTS batches (
		id TEXT PRIMARY KEY,
		state TEXT NOT NULL,
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	CREATE TABLE IF NOT EXISTS staged_operations (
		id TEXT PRIMARY KEY,
		batch_id TEXT NOT NULL REFERENCES batches(id),
		position INTEGER NOT NULL,
		kind TEXT NOT NULL,
		source_path TEXT NOT NULL,
		dest_path TEXT,
		status TEXT NOT NULL,
		error TEXT,
		UNIQUE(batch_id, position)
	);

	CREATE INDEX IF NOT EXISTS idx_staged_operations_batch ON staged_operations(batch_id);

	CREATE TABLE IF NOT EXISTS undo_records (
		batch_id TEXT PRIMARY KEY REFERENCES batches(id),
		entries TEXT NOT NULL,
		consumed INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	-- Small key/value table for engine state (e.g. the undoable batch id).
	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT
	);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Corrupt reports whether the store is in degraded mode.
func (s *Store) Corrupt() bool {
	return s.corrupt
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Vacuum reclaims unused space.
func (s *Store) Vacuum(ctx context.Context) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("vacuum", start, err) }()

	if s.corrupt {
		err = ErrCorrupt
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	_, err = s.db.ExecContext(ctx, "VACUUM")
	return err
}

// exec runs a mutating statement under the writer lock.
func (s *Store) exec(ctx context.Context, operation, query string, args ...interface{}) (sql.Result, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery(operation, start, err) }()

	if s.corrupt {
		err = ErrCorrupt
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var res sql.Result
	res, err = s.db.ExecContext(ctx, query, args...)
	return res, err
}

// getValue reads a metadata key; missing keys return "".
func (s *Store) getValue(ctx context.Context, key string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var value sql.NullString
	err := s.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value.String, nil
}

// setValue writes a metadata key.
func (s *Store) setValue(ctx context.Context, key, value string) error {
	_, err := s.exec(ctx, "set_metadata",
		"INSERT INTO metadata (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value)
	return err
}

// recordQuery records database query metrics
func recordQuery(operation string, start time.Time, err error) {
	duration := time.Since(start).Seconds()
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.DBQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(duration)
}
