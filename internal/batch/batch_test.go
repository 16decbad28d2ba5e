package batch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"media-organizer/internal/database"
	"media-organizer/internal/fsops"
)

type fixture struct {
	store     *database.Store
	stager    *Stager
	committer *Committer
	undoLog   *UndoLog
	dir       string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := database.Open(context.Background(), filepath.Join(t.TempDir(), "organizer.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	fs := fsops.NewOS(64 * 1024)
	committer := NewCommitter(store, fs)
	return &fixture{
		store:     store,
		stager:    NewStager(store, fs),
		committer: committer,
		undoLog:   NewUndoLog(store, committer),
		dir:       t.TempDir(),
	}
}

func (f *fixture) newBatch(t *testing.T) *database.Batch {
	t.Helper()
	b := &database.Batch{ID: uuid.NewString(), State: database.BatchDraft, CreatedAt: time.Now()}
	if err := f.store.InsertBatch(context.Background(), b); err != nil {
		t.Fatal(err)
	}
	return b
}

func (f *fixture) writeFile(t *testing.T, name string) (string, *database.FileRecord) {
	t.Helper()
	path := filepath.Join(f.dir, name)
	if err := os.WriteFile(path, []byte("content of "+name), 0o644); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	rec := &database.FileRecord{
		Path:        path,
		Name:        name,
		Size:        info.Size(),
		ModTime:     info.ModTime(),
		Fingerprint: database.Fingerprint(path, info.Size(), info.ModTime()),
		ScanState:   database.ScanStateEnriched,
		Height:      1080,
		Width:       1920,
		Codec:       "h264",
	}
	if err := f.store.UpsertFileRecord(context.Background(), rec); err != nil {
		t.Fatal(err)
	}
	return path, rec
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestPreviewDoesNotMutate(t *testing.T) {
	f := newFixture(t)
	b := f.newBatch(t)
	path, rec := f.writeFile(t, "movie.mp4")

	preview := f.stager.Preview(rec, "{filename}_{resolution}")
	if preview != filepath.Join(f.dir, "movie_1080p.mp4") {
		t.Errorf("Preview = %q", preview)
	}

	if len(b.Operations) != 0 {
		t.Error("Preview appended an operation")
	}
	if !exists(path) {
		t.Error("Preview touched the filesystem")
	}
}

func TestCommitRenameAndUndo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.newBatch(t)
	src, rec := f.writeFile(t, "movie.mp4")

	if _, err := f.stager.StageRename(ctx, b, rec, "{filename}_{resolution}"); err != nil {
		t.Fatalf("StageRename() error: %v", err)
	}
	// Staging alone must not move anything.
	if !exists(src) {
		t.Fatal("Staging moved the file")
	}

	result, err := f.committer.Commit(ctx, b)
	if err != nil {
		t.Fatalf("Commit() error: %v", err)
	}
	if len(result.Succeeded) != 1 || len(result.Failed) != 0 {
		t.Fatalf("Result = %d succeeded, %d failed", len(result.Succeeded), len(result.Failed))
	}

	dest := filepath.Join(f.dir, "movie_1080p.mp4")
	if exists(src) || !exists(dest) {
		t.Fatalf("After commit: src exists=%v, dest exists=%v", exists(src), exists(dest))
	}
	if b.State != database.BatchCommitted {
		t.Errorf("Batch state = %s", b.State)
	}

	// The file record followed the rename.
	if _, err := f.store.GetFileRecord(ctx, dest); err != nil {
		t.Errorf("No record at destination after commit: %v", err)
	}

	undoResult, err := f.undoLog.Undo(ctx, b.ID)
	if err != nil {
		t.Fatalf("Undo() error: %v", err)
	}
	if len(undoResult.Succeeded) != 1 {
		t.Fatalf("Undo result = %+v", undoResult)
	}
	if !exists(src) || exists(dest) {
		t.Errorf("After undo: src exists=%v, dest exists=%v", exists(src), exists(dest))
	}
}

func TestWithinBatchCollision(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.newBatch(t)
	_, recA := f.writeFile(t, "a.mp4")
	_, recB := f.writeFile(t, "b.mp4")

	if _, err := f.stager.StageRename(ctx, b, recA, "same-target"); err != nil {
		t.Fatal(err)
	}

	_, err := f.stager.StageRename(ctx, b, recB, "same-target")
	if !errors.Is(err, ErrCollision) {
		t.Fatalf("Second stage error = %v, want ErrCollision", err)
	}

	// The first operation is untouched.
	if len(b.Operations) != 1 || b.Operations[0].Status != database.OpStatusStaged {
		t.Errorf("Operations = %+v", b.Operations)
	}
}

func TestOnDiskCollision(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.newBatch(t)
	_, rec := f.writeFile(t, "a.mp4")
	f.writeFile(t, "occupied.mp4")

	_, err := f.stager.StageRename(ctx, b, rec, "occupied")
	if !errors.Is(err, ErrCollision) {
		t.Fatalf("Stage error = %v, want ErrCollision", err)
	}
}

func TestStageSelfRenameIsNoOp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.newBatch(t)
	path, rec := f.writeFile(t, "movie.mp4")

	// Destination equals source; not a collision.
	if _, err := f.stager.StageRename(ctx, b, rec, "{filename}"); err != nil {
		t.Fatalf("StageRename() error: %v", err)
	}

	result, err := f.committer.Commit(ctx, b)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Succeeded) != 1 {
		t.Fatalf("Result = %+v", result)
	}
	if !exists(path) {
		t.Error("Self-rename removed the file")
	}
}

func TestStageMissingSource(t *testing.T) {
	f := newFixture(t)
	b := f.newBatch(t)

	_, err := f.stager.StageDelete(context.Background(), b, filepath.Join(f.dir, "ghost.mp4"))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Stage error = %v, want ErrNotFound", err)
	}
}

func TestStageRejectedOutsideDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.newBatch(t)
	_, rec := f.writeFile(t, "a.mp4")

	if _, err := f.committer.Commit(ctx, b); err != nil {
		t.Fatal(err)
	}

	_, err := f.stager.StageRename(ctx, b, rec, "late")
	if !errors.Is(err, ErrBatchState) {
		t.Fatalf("Stage error = %v, want ErrBatchState", err)
	}
	if _, err := f.committer.Commit(ctx, b); !errors.Is(err, ErrBatchState) {
		t.Fatalf("Second commit error = %v, want ErrBatchState", err)
	}
}

func TestPartialFailureReportsIndependently(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.newBatch(t)
	srcA, recA := f.writeFile(t, "a.mp4")
	srcB, recB := f.writeFile(t, "b.mp4")
	srcC, recC := f.writeFile(t, "c.mp4")

	if _, err := f.stager.StageRename(ctx, b, recA, "a-renamed"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.stager.StageRename(ctx, b, recB, "b-renamed"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.stager.StageRename(ctx, b, recC, "c-renamed"); err != nil {
		t.Fatal(err)
	}

	// Occupy operation 2's destination between stage and commit.
	if err := os.WriteFile(filepath.Join(f.dir, "b-renamed.mp4"), []byte("squatter"), 0o644); err != nil {
		t.Fatal(err)
	}

	result, err := f.committer.Commit(ctx, b)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Succeeded) != 2 || len(result.Failed) != 1 {
		t.Fatalf("Result = %d succeeded, %d failed", len(result.Succeeded), len(result.Failed))
	}
	if !errors.Is(result.Failed[0].Err, ErrCollision) {
		t.Errorf("Failure error = %v, want ErrCollision", result.Failed[0].Err)
	}
	if result.Failed[0].Operation.SourcePath != srcB {
		t.Errorf("Failed operation source = %s, want %s", result.Failed[0].Operation.SourcePath, srcB)
	}

	// Undo reverses only the applied operations; b stays where it was.
	undoResult, err := f.undoLog.Undo(ctx, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(undoResult.Succeeded) != 2 || len(undoResult.Failed) != 0 {
		t.Fatalf("Undo result = %d succeeded, %d failed", len(undoResult.Succeeded), len(undoResult.Failed))
	}
	if !exists(srcA) || !exists(srcB) || !exists(srcC) {
		t.Error("Expected all sources restored after undo")
	}
	if exists(filepath.Join(f.dir, "a-renamed.mp4")) || exists(filepath.Join(f.dir, "c-renamed.mp4")) {
		t.Error("Expected renamed destinations removed after undo")
	}
}

func TestUndoIsConsumedOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.newBatch(t)
	_, rec := f.writeFile(t, "a.mp4")

	if _, err := f.stager.StageRename(ctx, b, rec, "renamed"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.committer.Commit(ctx, b); err != nil {
		t.Fatal(err)
	}
	if _, err := f.undoLog.Undo(ctx, b.ID); err != nil {
		t.Fatal(err)
	}

	_, err := f.undoLog.Undo(ctx, b.ID)
	if !errors.Is(err, ErrStaleBatch) {
		t.Fatalf("Second undo error = %v, want ErrStaleBatch", err)
	}
}

func TestNewCommitSupersedesUndoEligibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.newBatch(t)
	_, recA := f.writeFile(t, "a.mp4")
	if _, err := f.stager.StageRename(ctx, first, recA, "a-renamed"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.committer.Commit(ctx, first); err != nil {
		t.Fatal(err)
	}

	second := f.newBatch(t)
	_, recB := f.writeFile(t, "b.mp4")
	if _, err := f.stager.StageRename(ctx, second, recB, "b-renamed"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.committer.Commit(ctx, second); err != nil {
		t.Fatal(err)
	}

	// The first batch's undo record survives for inspection but is stale.
	_, err := f.undoLog.Undo(ctx, first.ID)
	if !errors.Is(err, ErrStaleBatch) {
		t.Fatalf("Undo of superseded batch = %v, want ErrStaleBatch", err)
	}
	if _, err := f.store.GetUndoRecord(ctx, first.ID); err != nil {
		t.Errorf("Superseded undo record should be retained: %v", err)
	}

	if _, err := f.undoLog.Undo(ctx, second.ID); err != nil {
		t.Errorf("Undo of latest batch failed: %v", err)
	}
}

func TestCopyInverseDeletesDuplicate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.newBatch(t)
	src, _ := f.writeFile(t, "a.mp4")
	destDir := t.TempDir()

	if _, err := f.stager.StageCopy(ctx, b, src, destDir); err != nil {
		t.Fatal(err)
	}
	if _, err := f.committer.Commit(ctx, b); err != nil {
		t.Fatal(err)
	}

	copyPath := filepath.Join(destDir, "a.mp4")
	if !exists(copyPath) || !exists(src) {
		t.Fatalf("After copy: src=%v copy=%v", exists(src), exists(copyPath))
	}

	if _, err := f.undoLog.Undo(ctx, b.ID); err != nil {
		t.Fatal(err)
	}
	if exists(copyPath) {
		t.Error("Expected copy removed by undo")
	}
	if !exists(src) {
		t.Error("Undo of a copy must not touch the source")
	}
}

func TestCommitReportsCopyProgress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.newBatch(t)
	src, _ := f.writeFile(t, "a.mp4")
	destDir := t.TempDir()

	type report struct {
		kind           database.OperationKind
		path           string
		written, total int64
	}
	var reports []report
	f.committer.SetProgress(func(kind database.OperationKind, path string, written, total int64) {
		reports = append(reports, report{kind, path, written, total})
	})

	if _, err := f.stager.StageCopy(ctx, b, src, destDir); err != nil {
		t.Fatal(err)
	}
	result, err := f.committer.Commit(ctx, b)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Succeeded) != 1 {
		t.Fatalf("Result = %+v", result)
	}

	if len(reports) == 0 {
		t.Fatal("Expected copy progress during commit")
	}
	info, err := os.Stat(src)
	if err != nil {
		t.Fatal(err)
	}
	last := reports[len(reports)-1]
	if last.kind != database.OpCopy || last.path != src {
		t.Errorf("Last report = %+v, want kind %s for %s", last, database.OpCopy, src)
	}
	if last.written != info.Size() || last.total != info.Size() {
		t.Errorf("Final progress = %d/%d, want %d/%d", last.written, last.total, info.Size(), info.Size())
	}
}

func TestDeleteExcludedFromUndo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.newBatch(t)
	doomed, _ := f.writeFile(t, "doomed.mp4")
	src, rec := f.writeFile(t, "kept.mp4")

	if _, err := f.stager.StageDelete(ctx, b, doomed); err != nil {
		t.Fatal(err)
	}
	if _, err := f.stager.StageRename(ctx, b, rec, "kept-renamed"); err != nil {
		t.Fatal(err)
	}

	result, err := f.committer.Commit(ctx, b)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Succeeded) != 2 {
		t.Fatalf("Result = %+v", result)
	}
	if exists(doomed) {
		t.Fatal("Delete did not remove the file")
	}

	// Undo restores the rename but cannot resurrect the deleted file.
	undoResult, err := f.undoLog.Undo(ctx, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(undoResult.Succeeded) != 1 {
		t.Fatalf("Undo result = %+v", undoResult)
	}
	if !exists(src) {
		t.Error("Rename not restored by undo")
	}
	if exists(doomed) {
		t.Error("Deleted file reappeared")
	}
}

func TestMoveToDirectory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.newBatch(t)
	src, _ := f.writeFile(t, "a.mp4")
	destDir := t.TempDir()

	if _, err := f.stager.StageMove(ctx, b, src, destDir); err != nil {
		t.Fatal(err)
	}
	if _, err := f.committer.Commit(ctx, b); err != nil {
		t.Fatal(err)
	}

	moved := filepath.Join(destDir, "a.mp4")
	if exists(src) || !exists(moved) {
		t.Fatalf("After move: src=%v dest=%v", exists(src), exists(moved))
	}

	if _, err := f.undoLog.Undo(ctx, b.ID); err != nil {
		t.Fatal(err)
	}
	if !exists(src) || exists(moved) {
		t.Errorf("After undo: src=%v dest=%v", exists(src), exists(moved))
	}
}

func TestCancelledCommitMarksRemainingFailed(t *testing.T) {
	f := newFixture(t)
	b := f.newBatch(t)
	_, rec := f.writeFile(t, "a.mp4")

	if _, err := f.stager.StageRename(context.Background(), b, rec, "renamed"); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := f.committer.Commit(ctx, b)
	if err != nil {
		t.Fatalf("Commit() error: %v", err)
	}
	if len(result.Failed) != 1 || !errors.Is(result.Failed[0].Err, context.Canceled) {
		t.Fatalf("Result = %+v", result)
	}
	if b.State != database.BatchCommitted {
		t.Errorf("Batch state = %s", b.State)
	}
}
