package database

import (
	"crypto/md5" //nolint:gosec // fingerprint for cache keying, not security
	"fmt"
	"time"
)

// ScanState tracks how far the scanner has taken a file record.
type ScanState string

const (
	ScanStatePending  ScanState = "pending"
	ScanStateEnriched ScanState = "enriched"
	ScanStateFailed   ScanState = "failed"
)

// SubtitleStream describes one embedded subtitle stream found by the probe.
type SubtitleStream struct {
	Index    int    `json:"index"`
	Language string `json:"language,omitempty"`
	Title    string `json:"title,omitempty"`
	Codec    string `json:"codec"`
}

// FileRecord is one file known to the organizer. Path is the natural key.
// A record is created on first sighting, enriched asynchronously, and marked
// stale (never silently deleted) when the file vanishes from a rescan.
type FileRecord struct {
	Path        string           `json:"path"`
	Name        string           `json:"name"`
	Size        int64            `json:"size"`
	ModTime     time.Time        `json:"modTime"`
	Fingerprint string           `json:"fingerprint"`
	ScanState   ScanState        `json:"scanState"`
	Stale       bool             `json:"stale,omitempty"`
	Duration    float64          `json:"duration,omitempty"`
	Width       int              `json:"width,omitempty"`
	Height      int              `json:"height,omitempty"`
	Codec       string           `json:"codec,omitempty"`
	Subtitles   []SubtitleStream `json:"subtitles,omitempty"`
	ScannedAt   time.Time        `json:"scannedAt"`
}

// Resolution returns the record's video resolution as "WxH", or "" if the
// record has not been enriched.
func (r *FileRecord) Resolution() string {
	if r.Width == 0 || r.Height == 0 {
		return ""
	}
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// Fingerprint derives the cache key for a file from its path, size and
// modification time. It is stable across metadata refreshes and changes on
// rename, since path is part of the input. Not a content hash.
func Fingerprint(path string, size int64, modTime time.Time) string {
	return fmt.Sprintf("%x", md5.Sum([]byte(fmt.Sprintf("%s|%d|%d", path, size, modTime.Unix())))) //nolint:gosec // cache key, not security
}

// CacheEntryInfo is the index view of one cache entry; the payload itself is
// fetched separately to keep index loads cheap.
type CacheEntryInfo struct {
	Key        string
	SizeBytes  int64
	LastAccess int64 // unix seconds
	Seq        int64 // insertion order, breaks last-access ties
}

// OperationKind is the type of a staged filesystem mutation.
type OperationKind string

const (
	OpRename OperationKind = "rename"
	OpMove   OperationKind = "move"
	OpCopy   OperationKind = "copy"
	OpDelete OperationKind = "delete"
)

// OperationStatus tracks a staged operation through commit.
type OperationStatus string

const (
	OpStatusStaged  OperationStatus = "staged"
	OpStatusApplied OperationStatus = "applied"
	OpStatusFailed  OperationStatus = "failed"
)

// StagedOperation is a planned but not-yet-applied filesystem mutation.
type StagedOperation struct {
	ID         string          `json:"id"`
	BatchID    string          `json:"batchId"`
	Position   int             `json:"position"`
	Kind       OperationKind   `json:"kind"`
	SourcePath string          `json:"sourcePath"`
	DestPath   string          `json:"destPath,omitempty"`
	Status     OperationStatus `json:"status"`
	Error      string          `json:"error,omitempty"`
}

// BatchState is the lifecycle state of a batch.
// Draft -> Committing -> Committed -> Undoing -> Undone; no state is
// re-enterable.
type BatchState string

const (
	BatchDraft      BatchState = "draft"
	BatchCommitting BatchState = "committing"
	BatchCommitted  BatchState = "committed"
	BatchUndoing    BatchState = "undoing"
	BatchUndone     BatchState = "undone"
)

// Batch is an ordered group of staged operations committed or undone as a
// unit (though not atomically).
type Batch struct {
	ID         string            `json:"id"`
	State      BatchState        `json:"state"`
	CreatedAt  time.Time         `json:"createdAt"`
	Operations []StagedOperation `json:"operations"`
}

// UndoEntry is the inverse of one applied operation.
type UndoEntry struct {
	Kind       OperationKind `json:"kind"`
	SourcePath string        `json:"sourcePath"`
	DestPath   string        `json:"destPath,omitempty"`
}

// UndoRecord pairs a committed batch with the inverses of its applied
// operations, stored in application order. It is consumed exactly once.
type UndoRecord struct {
	BatchID   string      `json:"batchId"`
	Entries   []UndoEntry `json:"entries"`
	Consumed  bool        `json:"consumed"`
	CreatedAt time.Time   `json:"createdAt"`
}
