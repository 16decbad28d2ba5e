package batch

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"

	"media-organizer/internal/database"
	"media-organizer/internal/fsops"
	"media-organizer/internal/logging"
)

// Stager plans operations against a draft batch. Staging never touches the
// filesystem beyond existence checks; mutations happen only at commit.
type Stager struct {
	store *database.Store
	fs    fsops.Provider
}

// NewStager builds a stager over the given store and filesystem.
func NewStager(store *database.Store, fs fsops.Provider) *Stager {
	return &Stager{store: store, fs: fs}
}

// Preview computes the destination a rename template would produce for rec,
// without mutating anything.
func (st *Stager) Preview(rec *database.FileRecord, template string) string {
	return filepath.Join(filepath.Dir(rec.Path), RenderName(template, rec))
}

// StageRename stages a template-driven rename within the file's directory.
func (st *Stager) StageRename(ctx context.Context, b *database.Batch, rec *database.FileRecord, template string) (*database.StagedOperation, error) {
	return st.stage(ctx, b, database.OpRename, rec.Path, st.Preview(rec, template))
}

// StageMove stages a move of src into destDir, keeping its name.
func (st *Stager) StageMove(ctx context.Context, b *database.Batch, src, destDir string) (*database.StagedOperation, error) {
	return st.stage(ctx, b, database.OpMove, src, filepath.Join(destDir, filepath.Base(src)))
}

// StageCopy stages a copy of src into destDir, keeping its name.
func (st *Stager) StageCopy(ctx context.Context, b *database.Batch, src, destDir string) (*database.StagedOperation, error) {
	return st.stage(ctx, b, database.OpCopy, src, filepath.Join(destDir, filepath.Base(src)))
}

// StageDelete stages a hard delete. Deletes have no inverse and are excluded
// from undo; stage a move to a holding directory instead if the file should
// be recoverable.
func (st *Stager) StageDelete(ctx context.Context, b *database.Batch, src string) (*database.StagedOperation, error) {
	return st.stage(ctx, b, database.OpDelete, src, "")
}

func (st *Stager) stage(ctx context.Context, b *database.Batch, kind database.OperationKind, src, dest string) (*database.StagedOperation, error) {
	if b.State != database.BatchDraft {
		return nil, fmt.Errorf("%w: cannot stage into %s batch %s", ErrBatchState, b.State, b.ID)
	}

	exists, err := st.fs.Exists(src)
	if err != nil {
		return nil, classify(err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, src)
	}

	// Renaming a file to its own name is a no-op, not a collision.
	if dest != "" && dest != src {
		occupied, err := st.fs.Exists(dest)
		if err != nil {
			return nil, classify(err)
		}
		if occupied {
			return nil, fmt.Errorf("%w: %s exists on disk", ErrCollision, dest)
		}
		for i := range b.Operations {
			op := &b.Operations[i]
			if op.Status == database.OpStatusStaged && op.DestPath == dest {
				return nil, fmt.Errorf("%w: %s already targeted by staged operation %s", ErrCollision, dest, op.ID)
			}
		}
	}

	op := &database.StagedOperation{
		ID:         uuid.NewString(),
		BatchID:    b.ID,
		Position:   len(b.Operations),
		Kind:       kind,
		SourcePath: src,
		DestPath:   dest,
		Status:     database.OpStatusStaged,
	}
	if err := st.store.InsertOperation(ctx, op); err != nil {
		return nil, fmt.Errorf("failed to persist staged operation: %w", err)
	}
	b.Operations = append(b.Operations, *op)

	logging.Debug("Staged %s %s -> %s in batch %s", kind, src, dest, b.ID)
	return op, nil
}
