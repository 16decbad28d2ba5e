package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "organizer.db")
	s, err := Open(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close() error: %v", err)
		}
	})
	return s
}

func testRecord(path string) *FileRecord {
	modTime := time.Unix(1700000000, 0)
	return &FileRecord{
		Path:        path,
		Name:        filepath.Base(path),
		Size:        1024,
		ModTime:     modTime,
		Fingerprint: Fingerprint(path, 1024, modTime),
		ScanState:   ScanStatePending,
	}
}

func TestUpsertFileRecordIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := testRecord("/share/movies/movie.mp4")
	if err := s.UpsertFileRecord(ctx, rec); err != nil {
		t.Fatalf("UpsertFileRecord() error: %v", err)
	}

	// Second upsert for the same path must update, not duplicate.
	rec.ScanState = ScanStateEnriched
	rec.Width = 1920
	rec.Height = 1080
	rec.Codec = "h264"
	rec.Duration = 5400
	rec.Subtitles = []SubtitleStream{{Index: 2, Language: "eng", Codec: "subrip"}}
	if err := s.UpsertFileRecord(ctx, rec); err != nil {
		t.Fatalf("UpsertFileRecord() update error: %v", err)
	}

	records, err := s.ListRecordsUnder(ctx, "/share/movies")
	if err != nil {
		t.Fatalf("ListRecordsUnder() error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected 1 record after re-upsert, got %d", len(records))
	}

	got := records[0]
	if got.ScanState != ScanStateEnriched {
		t.Errorf("ScanState = %s, want enriched", got.ScanState)
	}
	if got.Resolution() != "1920x1080" {
		t.Errorf("Resolution() = %q, want 1920x1080", got.Resolution())
	}
	if len(got.Subtitles) != 1 || got.Subtitles[0].Language != "eng" {
		t.Errorf("Subtitles = %+v", got.Subtitles)
	}
}

func TestGetFileRecordNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetFileRecord(context.Background(), "/nope.mp4")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestListPendingRecords(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	pending := testRecord("/share/a.mp4")
	enriched := testRecord("/share/b.mp4")
	enriched.ScanState = ScanStateEnriched

	for _, rec := range []*FileRecord{pending, enriched} {
		if err := s.UpsertFileRecord(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	records, err := s.ListPendingRecords(ctx)
	if err != nil {
		t.Fatalf("ListPendingRecords() error: %v", err)
	}
	if len(records) != 1 || records[0].Path != "/share/a.mp4" {
		t.Errorf("ListPendingRecords() = %+v, want just /share/a.mp4", records)
	}
}

func TestMarkStaleAndPrune(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := testRecord("/share/gone.mp4")
	if err := s.UpsertFileRecord(ctx, rec); err != nil {
		t.Fatal(err)
	}

	if err := s.MarkStale(ctx, rec.Path, true); err != nil {
		t.Fatalf("MarkStale() error: %v", err)
	}

	// Stale records are retained until explicit prune.
	got, err := s.GetFileRecord(ctx, rec.Path)
	if err != nil {
		t.Fatalf("GetFileRecord() after stale: %v", err)
	}
	if !got.Stale {
		t.Error("Expected record to be marked stale")
	}

	n, err := s.PruneStale(ctx)
	if err != nil {
		t.Fatalf("PruneStale() error: %v", err)
	}
	if n != 1 {
		t.Errorf("PruneStale() removed %d, want 1", n)
	}
	if _, err := s.GetFileRecord(ctx, rec.Path); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected record gone after prune, got %v", err)
	}
}

func TestRenameRecordPath(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := testRecord("/share/old.mp4")
	if err := s.UpsertFileRecord(ctx, rec); err != nil {
		t.Fatal(err)
	}

	if err := s.RenameRecordPath(ctx, "/share/old.mp4", "/share/new.mp4"); err != nil {
		t.Fatalf("RenameRecordPath() error: %v", err)
	}

	got, err := s.GetFileRecord(ctx, "/share/new.mp4")
	if err != nil {
		t.Fatalf("GetFileRecord(new) error: %v", err)
	}
	if got.Name != "new.mp4" {
		t.Errorf("Name = %q, want new.mp4", got.Name)
	}
	// Fingerprint incorporates the path, so it must change on rename.
	if got.Fingerprint == rec.Fingerprint {
		t.Error("Expected fingerprint to change on rename")
	}

	// Renaming an unscanned path is a no-op, not an error.
	if err := s.RenameRecordPath(ctx, "/never/seen.mp4", "/x.mp4"); err != nil {
		t.Errorf("RenameRecordPath(unknown) error: %v", err)
	}
}

func TestCacheEntryRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	payload := []byte("jpeg bytes")
	if err := s.PutCacheEntry(ctx, "key1", payload, 100, 1); err != nil {
		t.Fatalf("PutCacheEntry() error: %v", err)
	}

	got, err := s.GetCachePayload(ctx, "key1")
	if err != nil {
		t.Fatalf("GetCachePayload() error: %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("Payload = %q, want %q", got, payload)
	}

	if _, err := s.GetCachePayload(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for missing key, got %v", err)
	}
}

func TestListCacheEntriesEvictionOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Same last_access; seq breaks the tie, oldest insertion first.
	if err := s.PutCacheEntry(ctx, "b", []byte("bb"), 50, 2); err != nil {
		t.Fatal(err)
	}
	if err := s.PutCacheEntry(ctx, "a", []byte("aa"), 50, 1); err != nil {
		t.Fatal(err)
	}
	if err := s.PutCacheEntry(ctx, "c", []byte("cc"), 10, 3); err != nil {
		t.Fatal(err)
	}

	entries, err := s.ListCacheEntries(ctx)
	if err != nil {
		t.Fatalf("ListCacheEntries() error: %v", err)
	}

	want := []string{"c", "a", "b"}
	if len(entries) != len(want) {
		t.Fatalf("Expected %d entries, got %d", len(want), len(entries))
	}
	for i, key := range want {
		if entries[i].Key != key {
			t.Errorf("entries[%d].Key = %q, want %q", i, entries[i].Key, key)
		}
	}
}

func TestBatchLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	b := &Batch{ID: "batch-1", State: BatchDraft, CreatedAt: time.Now()}
	if err := s.InsertBatch(ctx, b); err != nil {
		t.Fatalf("InsertBatch() error: %v", err)
	}

	op := &StagedOperation{
		ID:         "op-1",
		BatchID:    b.ID,
		Position:   0,
		Kind:       OpRename,
		SourcePath: "/share/a.mp4",
		DestPath:   "/share/b.mp4",
		Status:     OpStatusStaged,
	}
	if err := s.InsertOperation(ctx, op); err != nil {
		t.Fatalf("InsertOperation() error: %v", err)
	}

	if err := s.UpdateBatchState(ctx, b.ID, BatchCommitted); err != nil {
		t.Fatalf("UpdateBatchState() error: %v", err)
	}
	if err := s.UpdateOperationStatus(ctx, op.ID, OpStatusApplied, ""); err != nil {
		t.Fatalf("UpdateOperationStatus() error: %v", err)
	}

	got, err := s.GetBatch(ctx, b.ID)
	if err != nil {
		t.Fatalf("GetBatch() error: %v", err)
	}
	if got.State != BatchCommitted {
		t.Errorf("State = %s, want committed", got.State)
	}
	if len(got.Operations) != 1 || got.Operations[0].Status != OpStatusApplied {
		t.Errorf("Operations = %+v", got.Operations)
	}
}

func TestUndoRecordLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	b := &Batch{ID: "batch-1", State: BatchCommitted, CreatedAt: time.Now()}
	if err := s.InsertBatch(ctx, b); err != nil {
		t.Fatal(err)
	}

	entries := []UndoEntry{
		{Kind: OpRename, SourcePath: "/share/b.mp4", DestPath: "/share/a.mp4"},
	}
	if err := s.SaveUndoRecord(ctx, b.ID, entries); err != nil {
		t.Fatalf("SaveUndoRecord() error: %v", err)
	}

	id, err := s.UndoableBatchID(ctx)
	if err != nil {
		t.Fatalf("UndoableBatchID() error: %v", err)
	}
	if id != b.ID {
		t.Errorf("UndoableBatchID() = %q, want %q", id, b.ID)
	}

	rec, err := s.GetUndoRecord(ctx, b.ID)
	if err != nil {
		t.Fatalf("GetUndoRecord() error: %v", err)
	}
	if rec.Consumed {
		t.Error("Expected unconsumed undo record")
	}
	if len(rec.Entries) != 1 || rec.Entries[0].SourcePath != "/share/b.mp4" {
		t.Errorf("Entries = %+v", rec.Entries)
	}

	if err := s.MarkUndoConsumed(ctx, b.ID); err != nil {
		t.Fatalf("MarkUndoConsumed() error: %v", err)
	}

	id, err = s.UndoableBatchID(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if id != "" {
		t.Errorf("Expected no undoable batch after consume, got %q", id)
	}

	rec, err = s.GetUndoRecord(ctx, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !rec.Consumed {
		t.Error("Expected consumed undo record")
	}
}

func TestRevokeUndoable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	b := &Batch{ID: "batch-1", State: BatchCommitted, CreatedAt: time.Now()}
	if err := s.InsertBatch(ctx, b); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveUndoRecord(ctx, b.ID, nil); err != nil {
		t.Fatal(err)
	}

	if err := s.RevokeUndoable(ctx); err != nil {
		t.Fatalf("RevokeUndoable() error: %v", err)
	}

	id, err := s.UndoableBatchID(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if id != "" {
		t.Errorf("Expected eligibility revoked, got %q", id)
	}

	// The record itself is retained for inspection.
	if _, err := s.GetUndoRecord(ctx, b.ID); err != nil {
		t.Errorf("Expected undo record retained, got %v", err)
	}
}

func TestCorruptStoreRefusesWrites(t *testing.T) {
	s := &Store{corrupt: true}

	if err := s.MarkStale(context.Background(), "/x.mp4", true); !errors.Is(err, ErrCorrupt) {
		t.Errorf("Expected ErrCorrupt, got %v", err)
	}
	if err := s.Vacuum(context.Background()); !errors.Is(err, ErrCorrupt) {
		t.Errorf("Expected ErrCorrupt from Vacuum, got %v", err)
	}
}

func TestFingerprintStability(t *testing.T) {
	modTime := time.Unix(1700000000, 0)

	a := Fingerprint("/share/a.mp4", 100, modTime)
	if a != Fingerprint("/share/a.mp4", 100, modTime) {
		t.Error("Fingerprint not deterministic")
	}
	if a == Fingerprint("/share/b.mp4", 100, modTime) {
		t.Error("Fingerprint should change with path")
	}
	if a == Fingerprint("/share/a.mp4", 101, modTime) {
		t.Error("Fingerprint should change with size")
	}
	if a == Fingerprint("/share/a.mp4", 100, modTime.Add(time.Second)) {
		t.Error("Fingerprint should change with mtime")
	}
}
