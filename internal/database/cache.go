package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PutCacheEntry stores a cache payload under key, replacing any prior entry.
func (s *Store) PutCacheEntry(ctx context.Context, key string, payload []byte, lastAccess, seq int64) error {
	query := `
	INSERT INTO cache_entries (key, payload, size_bytes, last_access, seq)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
		payload = excluded.payload,
		size_bytes = excluded.size_bytes,
		last_access = excluded.last_access,
		seq = excluded.seq
	`
	_, err := s.exec(ctx, "put_cache_entry", query, key, payload, int64(len(payload)), lastAccess, seq)
	return err
}

// GetCachePayload returns the payload stored under key.
func (s *Store) GetCachePayload(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_cache_payload", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var payload []byte
	err = s.db.QueryRowContext(ctx,
		"SELECT payload FROM cache_entries WHERE key = ?", key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrNotFound
		return nil, fmt.Errorf("cache entry %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// TouchCacheEntry updates an entry's last access time.
func (s *Store) TouchCacheEntry(ctx context.Context, key string, lastAccess int64) error {
	_, err := s.exec(ctx, "touch_cache_entry",
		"UPDATE cache_entries SET last_access = ? WHERE key = ?", lastAccess, key)
	return err
}

// DeleteCacheEntry removes an entry; deleting a missing key is not an error.
func (s *Store) DeleteCacheEntry(ctx context.Context, key string) error {
	_, err := s.exec(ctx, "delete_cache_entry",
		"DELETE FROM cache_entries WHERE key = ?", key)
	return err
}

// ListCacheEntries returns the index view of all entries, ordered by
// last access then insertion sequence (eviction order).
func (s *Store) ListCacheEntries(ctx context.Context) ([]CacheEntryInfo, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_cache_entries", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, qErr := s.db.QueryContext(ctx,
		"SELECT key, size_bytes, last_access, seq FROM cache_entries ORDER BY last_access, seq")
	if qErr != nil {
		err = qErr
		return nil, err
	}
	defer rows.Close()

	var entries []CacheEntryInfo
	for rows.Next() {
		var e CacheEntryInfo
		if scanErr := rows.Scan(&e.Key, &e.SizeBytes, &e.LastAccess, &e.Seq); scanErr != nil {
			err = scanErr
			return nil, err
		}
		entries = append(entries, e)
	}
	err = rows.Err()
	return entries, err
}
