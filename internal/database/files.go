package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("record not found")

// UpsertFileRecord inserts or updates a file record by path. Re-scanning a
// known path updates in place rather than duplicating.
func (s *Store) UpsertFileRecord(ctx context.Context, rec *FileRecord) error {
	subtitles, err := json.Marshal(rec.Subtitles)
	if err != nil {
		return fmt.Errorf("failed to encode subtitle streams: %w", err)
	}
	if rec.Subtitles == nil {
		subtitles = nil
	}

	query := `
	INSERT INTO file_records (path, name, size, mod_time, fingerprint, scan_state, stale,
		duration, width, height, codec, subtitles, scanned_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, strftime('%s', 'now'))
	ON CONFLICT(path) DO UPDATE SET
		name = excluded.name,
		size = excluded.size,
		mod_time = excluded.mod_time,
		fingerprint = excluded.fingerprint,
		scan_state = excluded.scan_state,
		stale = excluded.stale,
		duration = excluded.duration,
		width = excluded.width,
		height = excluded.height,
		codec = excluded.codec,
		subtitles = excluded.subtitles,
		scanned_at = strftime('%s', 'now')
	`

	_, err = s.exec(ctx, "upsert_file", query,
		rec.Path, rec.Name, rec.Size, rec.ModTime.Unix(), rec.Fingerprint,
		string(rec.ScanState), boolToInt(rec.Stale),
		nullFloat(rec.Duration), nullInt(rec.Width), nullInt(rec.Height),
		nullString(rec.Codec), nullBytes(subtitles))
	return err
}

// GetFileRecord retrieves a single record by path.
func (s *Store) GetFileRecord(ctx context.Context, path string) (*FileRecord, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_file", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	row := s.db.QueryRowContext(ctx, `
	SELECT path, name, size, mod_time, fingerprint, scan_state, stale,
		duration, width, height, codec, subtitles, scanned_at
	FROM file_records WHERE path = ?`, path)

	rec, scanErr := scanFileRecord(row)
	if errors.Is(scanErr, sql.ErrNoRows) {
		err = ErrNotFound
		return nil, fmt.Errorf("file record %q: %w", path, ErrNotFound)
	}
	err = scanErr
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListPendingRecords returns all records still awaiting enrichment, so a
// killed process can resume a half-finished pass.
func (s *Store) ListPendingRecords(ctx context.Context) ([]FileRecord, error) {
	return s.listRecords(ctx, "list_pending",
		"WHERE scan_state = ? AND stale = 0", string(ScanStatePending))
}

// ListRecordsUnder returns all non-stale records whose path begins with dir.
func (s *Store) ListRecordsUnder(ctx context.Context, dir string) ([]FileRecord, error) {
	if dir != "" && dir[len(dir)-1] != '/' {
		dir += "/"
	}
	return s.listRecords(ctx, "list_under",
		"WHERE path LIKE ? AND stale = 0 ORDER BY path", dir+"%")
}

func (s *Store) listRecords(ctx context.Context, operation, where string, args ...interface{}) ([]FileRecord, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery(operation, start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	query := `
	SELECT path, name, size, mod_time, fingerprint, scan_state, stale,
		duration, width, height, codec, subtitles, scanned_at
	FROM file_records ` + where

	rows, qErr := s.db.QueryContext(ctx, query, args...)
	if qErr != nil {
		err = qErr
		return nil, err
	}
	defer rows.Close()

	var records []FileRecord
	for rows.Next() {
		rec, scanErr := scanFileRecord(rows)
		if scanErr != nil {
			err = scanErr
			return nil, err
		}
		records = append(records, *rec)
	}
	err = rows.Err()
	return records, err
}

// MarkStale flags or unflags a record as missing from its last rescan.
// Stale records are retained until PruneStale.
func (s *Store) MarkStale(ctx context.Context, path string, stale bool) error {
	_, err := s.exec(ctx, "mark_stale",
		"UPDATE file_records SET stale = ? WHERE path = ?", boolToInt(stale), path)
	return err
}

// PruneStale permanently removes records marked stale. This is the only way
// file records are ever deleted.
func (s *Store) PruneStale(ctx context.Context) (int64, error) {
	res, err := s.exec(ctx, "prune_stale", "DELETE FROM file_records WHERE stale = 1")
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// RenameRecordPath moves a record to a new path after a successful rename or
// move, recomputing the fingerprint since path is part of its input.
func (s *Store) RenameRecordPath(ctx context.Context, oldPath, newPath string) error {
	rec, err := s.GetFileRecord(ctx, oldPath)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Not every committed file was necessarily scanned first.
			return nil
		}
		return err
	}

	fingerprint := Fingerprint(newPath, rec.Size, rec.ModTime)
	_, err = s.exec(ctx, "rename_record",
		"UPDATE file_records SET path = ?, name = ?, fingerprint = ? WHERE path = ?",
		newPath, baseName(newPath), fingerprint, oldPath)
	return err
}

func baseName(path string) string {
	return filepath.Base(path)
}

// rowScanner abstracts *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanFileRecord(row rowScanner) (*FileRecord, error) {
	var rec FileRecord
	var modTime, scannedAt int64
	var stale int
	var state string
	var duration sql.NullFloat64
	var width, height sql.NullInt64
	var codec sql.NullString
	var subtitles []byte

	err := row.Scan(&rec.Path, &rec.Name, &rec.Size, &modTime, &rec.Fingerprint,
		&state, &stale, &duration, &width, &height, &codec, &subtitles, &scannedAt)
	if err != nil {
		return nil, err
	}

	rec.ModTime = time.Unix(modTime, 0)
	rec.ScannedAt = time.Unix(scannedAt, 0)
	rec.ScanState = ScanState(state)
	rec.Stale = stale != 0
	rec.Duration = duration.Float64
	rec.Width = int(width.Int64)
	rec.Height = int(height.Int64)
	rec.Codec = codec.String

	if len(subtitles) > 0 {
		if err := json.Unmarshal(subtitles, &rec.Subtitles); err != nil {
			return nil, fmt.Errorf("failed to decode subtitle streams for %s: %w", rec.Path, err)
		}
	}

	return &rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullFloat(f float64) interface{} {
	if f == 0 {
		return nil
	}
	return f
}

func nullInt(i int) interface{} {
	if i == 0 {
		return nil
	}
	return i
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullBytes(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}
