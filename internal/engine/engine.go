package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"media-organizer/internal/batch"
	"media-organizer/internal/cache"
	"media-organizer/internal/database"
	"media-organizer/internal/fsops"
	"media-organizer/internal/logging"
	"media-organizer/internal/probe"
	"media-organizer/internal/scanner"
	"media-organizer/internal/thumbnail"
)

// Engine coordinates scanning, caching and the batch lifecycle over one
// shared store. At most one draft batch exists at a time.
type Engine struct {
	store     *database.Store
	fs        fsops.Provider
	stager    *batch.Stager
	committer *batch.Committer
	undoLog   *batch.UndoLog
	scanner   *scanner.Scanner
	cache     *cache.Manager
	thumbs    *thumbnail.Renderer

	mu    sync.Mutex
	draft *database.Batch

	// opMu serializes Commit and Undo so at most one batch is mutating
	// the filesystem at a time.
	opMu sync.Mutex
}

// Options collects the engine's collaborators.
type Options struct {
	Store       *database.Store
	Filesystem  fsops.Provider
	Metadata    probe.Provider
	Cache       *cache.Manager
	Thumbnailer *thumbnail.Renderer
	ScanWorkers int
}

// New wires an engine from its collaborators.
func New(opts Options) *Engine {
	committer := batch.NewCommitter(opts.Store, opts.Filesystem)
	return &Engine{
		store:     opts.Store,
		fs:        opts.Filesystem,
		stager:    batch.NewStager(opts.Store, opts.Filesystem),
		committer: committer,
		undoLog:   batch.NewUndoLog(opts.Store, committer),
		scanner:   scanner.New(opts.Store, opts.Metadata, opts.ScanWorkers),
		cache:     opts.Cache,
		thumbs:    opts.Thumbnailer,
	}
}

// NewBatch opens a fresh draft batch. Opening a draft revokes the previous
// committed batch's undo eligibility, and fails while another draft is open.
func (e *Engine) NewBatch(ctx context.Context) (*database.Batch, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.draft != nil && e.draft.State == database.BatchDraft {
		return nil, fmt.Errorf("%w: draft batch %s is still open", batch.ErrBatchState, e.draft.ID)
	}

	b := &database.Batch{ID: uuid.NewString(), State: database.BatchDraft, CreatedAt: time.Now()}
	if err := e.store.InsertBatch(ctx, b); err != nil {
		return nil, fmt.Errorf("failed to create batch: %w", err)
	}
	if err := e.store.RevokeUndoable(ctx); err != nil {
		logging.Warn("failed to revoke prior undo eligibility: %v", err)
	}

	e.draft = b
	logging.Info("Opened draft batch %s", b.ID)
	return b, nil
}

// DiscardBatch abandons the current draft without applying anything. The
// batch record remains in history as a draft that never committed.
func (e *Engine) DiscardBatch() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.draft != nil {
		logging.Info("Discarded draft batch %s", e.draft.ID)
		e.draft = nil
	}
}

// Preview renders the destination a template would produce for path,
// without mutating the draft.
func (e *Engine) Preview(ctx context.Context, path, template string) (string, error) {
	rec, err := e.fileRecord(ctx, path)
	if err != nil {
		return "", err
	}
	return e.stager.Preview(rec, template), nil
}

// StageRename stages a template rename of path into the current draft.
func (e *Engine) StageRename(ctx context.Context, path, template string) (*database.StagedOperation, error) {
	b, err := e.currentDraft()
	if err != nil {
		return nil, err
	}
	rec, err := e.fileRecord(ctx, path)
	if err != nil {
		return nil, err
	}
	return e.stager.StageRename(ctx, b, rec, template)
}

// StageMove stages a move of path into destDir.
func (e *Engine) StageMove(ctx context.Context, path, destDir string) (*database.StagedOperation, error) {
	b, err := e.currentDraft()
	if err != nil {
		return nil, err
	}
	return e.stager.StageMove(ctx, b, path, destDir)
}

// StageCopy stages a copy of path into destDir.
func (e *Engine) StageCopy(ctx context.Context, path, destDir string) (*database.StagedOperation, error) {
	b, err := e.currentDraft()
	if err != nil {
		return nil, err
	}
	return e.stager.StageCopy(ctx, b, path, destDir)
}

// StageDelete stages a hard delete of path. Deletes are excluded from undo.
func (e *Engine) StageDelete(ctx context.Context, path string) (*database.StagedOperation, error) {
	b, err := e.currentDraft()
	if err != nil {
		return nil, err
	}
	return e.stager.StageDelete(ctx, b, path)
}

// Commit applies the current draft and closes it.
func (e *Engine) Commit(ctx context.Context) (*batch.Result, error) {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	// Detach the draft first so no other goroutine can read a batch whose
	// state the committer is about to mutate.
	e.mu.Lock()
	b := e.draft
	e.draft = nil
	e.mu.Unlock()
	if b == nil {
		return nil, fmt.Errorf("%w: no draft batch open", batch.ErrBatchState)
	}

	result, err := e.committer.Commit(ctx, b)
	if err != nil && b.State == database.BatchDraft {
		// The commit never started; hand the draft back.
		e.mu.Lock()
		if e.draft == nil {
			e.draft = b
		}
		e.mu.Unlock()
	}
	return result, err
}

// Undo reverses the most recently committed batch.
func (e *Engine) Undo(ctx context.Context) (*batch.Result, error) {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	batchID, err := e.store.UndoableBatchID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve undo eligibility: %w", err)
	}
	if batchID == "" {
		return nil, fmt.Errorf("%w: nothing to undo", batch.ErrStaleBatch)
	}
	return e.undoLog.Undo(ctx, batchID)
}

// Scan walks dir, emitting records progressively.
func (e *Engine) Scan(ctx context.Context, dir string) (<-chan database.FileRecord, error) {
	return e.scanner.Scan(ctx, dir)
}

// ResumePending finishes enrichment a previous process left incomplete.
func (e *Engine) ResumePending(ctx context.Context) (int, error) {
	return e.scanner.ResumePending(ctx)
}

// Watch follows filesystem changes under dir until ctx ends.
func (e *Engine) Watch(ctx context.Context, dir string) error {
	return e.scanner.Watch(ctx, dir)
}

// Thumbnail returns the cached thumbnail for path, rendering it on miss.
// The cache key is the file's fingerprint, so an edited file renders fresh.
func (e *Engine) Thumbnail(ctx context.Context, path string) ([]byte, error) {
	rec, err := e.fileRecord(ctx, path)
	if err != nil {
		return nil, err
	}
	return e.cache.GetOrCreate(ctx, rec.Fingerprint, func(ctx context.Context) ([]byte, error) {
		return e.thumbs.Render(ctx, path)
	})
}

// CacheStats reports cache occupancy.
func (e *Engine) CacheStats() cache.Stats {
	return e.cache.Stats()
}

// PruneCache evicts cache entries down to targetRatio of the budget.
func (e *Engine) PruneCache(ctx context.Context, targetRatio float64) {
	e.cache.Prune(ctx, targetRatio)
}

// Vacuum compacts the store, reclaiming space left by pruned records and
// evicted cache entries. Runs while no commit or undo is in flight.
func (e *Engine) Vacuum(ctx context.Context) error {
	e.opMu.Lock()
	defer e.opMu.Unlock()
	return e.store.Vacuum(ctx)
}

// PruneStale permanently drops records for files confirmed missing.
func (e *Engine) PruneStale(ctx context.Context) (int64, error) {
	return e.store.PruneStale(ctx)
}

// History lists recent batches, newest first.
func (e *Engine) History(ctx context.Context, limit int) ([]database.Batch, error) {
	return e.store.ListBatches(ctx, limit)
}

// ListFiles returns the known, non-stale records under dir.
func (e *Engine) ListFiles(ctx context.Context, dir string) ([]database.FileRecord, error) {
	return e.store.ListRecordsUnder(ctx, dir)
}

func (e *Engine) currentDraft() (*database.Batch, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.draft == nil || e.draft.State != database.BatchDraft {
		return nil, fmt.Errorf("%w: no draft batch open", batch.ErrBatchState)
	}
	return e.draft, nil
}

// fileRecord loads the scanned record for path, or synthesizes a bare one
// from the filesystem for files staged before any scan saw them.
func (e *Engine) fileRecord(ctx context.Context, path string) (*database.FileRecord, error) {
	rec, err := e.store.GetFileRecord(ctx, path)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}

	info, statErr := e.fs.Stat(path)
	if statErr != nil {
		return nil, fmt.Errorf("%w: %s", batch.ErrNotFound, path)
	}
	return &database.FileRecord{
		Path:        path,
		Name:        info.Name(),
		Size:        info.Size(),
		ModTime:     info.ModTime(),
		Fingerprint: database.Fingerprint(path, info.Size(), info.ModTime()),
		ScanState:   database.ScanStatePending,
	}, nil
}
