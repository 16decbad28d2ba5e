package batch

import (
	"context"
	"fmt"
	"time"

	"media-organizer/internal/database"
	"media-organizer/internal/fsops"
	"media-organizer/internal/logging"
	"media-organizer/internal/metrics"
)

// FailedOperation pairs an operation with the error that stopped it.
type FailedOperation struct {
	Operation database.StagedOperation
	Err       error
}

// Result partitions a commit or undo into per-operation outcomes.
type Result struct {
	Succeeded []database.StagedOperation
	Failed    []FailedOperation
}

// ProgressFunc receives copy progress for one operation at chunk
// boundaries. It fires independently of cancellation and must not block.
type ProgressFunc func(kind database.OperationKind, path string, written, total int64)

// Committer applies staged batches to the filesystem.
type Committer struct {
	store    *database.Store
	fs       fsops.Provider
	progress ProgressFunc
}

// NewCommitter builds a committer over the given store and filesystem.
func NewCommitter(store *database.Store, fs fsops.Provider) *Committer {
	return &Committer{store: store, fs: fs}
}

// SetProgress installs a callback invoked as streaming copies advance
// during commit and undo. A nil callback disables reporting.
func (c *Committer) SetProgress(fn ProgressFunc) {
	c.progress = fn
}

// onProgress adapts the committer-level callback to a single operation's
// copy stream.
func (c *Committer) onProgress(kind database.OperationKind, src string) fsops.ProgressFunc {
	if c.progress == nil {
		return nil
	}
	return func(written, total int64) {
		c.progress(kind, src, written, total)
	}
}

// Commit applies every staged operation of a draft batch in submission
// order. One operation failing never rolls back the ones already applied;
// the result reports each outcome individually. After the pass the batch is
// Committed and the inverses of the applied operations become the new undo
// record, superseding any prior batch's eligibility.
func (c *Committer) Commit(ctx context.Context, b *database.Batch) (*Result, error) {
	if c.store.Corrupt() {
		return nil, database.ErrCorrupt
	}
	if b.State != database.BatchDraft {
		return nil, fmt.Errorf("%w: cannot commit %s batch %s", ErrBatchState, b.State, b.ID)
	}

	// Cancellation stops filesystem work; batch bookkeeping still completes
	// so the record never sticks in Committing.
	dbCtx := context.WithoutCancel(ctx)

	start := time.Now()
	if err := c.setState(dbCtx, b, database.BatchCommitting); err != nil {
		return nil, err
	}
	logging.Info("Committing batch %s (%d operations)", b.ID, len(b.Operations))

	result := &Result{}
	var inverses []database.UndoEntry

	for i := range b.Operations {
		op := &b.Operations[i]
		if op.Status != database.OpStatusStaged {
			continue
		}

		opErr := ctx.Err()
		var inverse *database.UndoEntry
		if opErr == nil {
			inverse, opErr = c.apply(ctx, op.Kind, op.SourcePath, op.DestPath)
		}

		if opErr != nil {
			op.Status = database.OpStatusFailed
			op.Error = opErr.Error()
			metrics.OperationsTotal.WithLabelValues(string(op.Kind), "failure").Inc()
			logging.Warn("Operation %s (%s %s) failed: %v", op.ID, op.Kind, op.SourcePath, opErr)
			result.Failed = append(result.Failed, FailedOperation{Operation: *op, Err: opErr})
		} else {
			op.Status = database.OpStatusApplied
			metrics.OperationsTotal.WithLabelValues(string(op.Kind), "success").Inc()
			result.Succeeded = append(result.Succeeded, *op)
			if inverse != nil {
				inverses = append(inverses, *inverse)
			}
		}

		if err := c.store.UpdateOperationStatus(dbCtx, op.ID, op.Status, op.Error); err != nil {
			logging.Warn("failed to persist status of operation %s: %v", op.ID, err)
		}
	}

	if err := c.setState(dbCtx, b, database.BatchCommitted); err != nil {
		return result, err
	}
	if err := c.store.SaveUndoRecord(dbCtx, b.ID, inverses); err != nil {
		return result, fmt.Errorf("batch committed but undo record could not be saved: %w", err)
	}

	metrics.BatchesCommitted.Inc()
	metrics.CommitDuration.Observe(time.Since(start).Seconds())
	logging.Info("Batch %s committed: %d applied, %d failed in %v",
		b.ID, len(result.Succeeded), len(result.Failed), time.Since(start))
	return result, nil
}

// apply performs a single operation and returns the inverse to record for
// undo. A nil inverse with nil error means the operation has no undo step
// (no-op renames and deletes).
func (c *Committer) apply(ctx context.Context, kind database.OperationKind, src, dest string) (*database.UndoEntry, error) {
	switch kind {
	case database.OpRename, database.OpMove:
		if dest == src {
			return nil, nil
		}
		if err := c.checkVacant(dest); err != nil {
			return nil, err
		}

		err := c.fs.Rename(src, dest)
		if err != nil && fsops.IsCrossDevice(err) {
			// Different volume; fall back to streaming copy plus delete.
			err = c.moveAcrossVolumes(ctx, src, dest)
		}
		if err != nil {
			return nil, classify(err)
		}

		if dbErr := c.store.RenameRecordPath(context.WithoutCancel(ctx), src, dest); dbErr != nil {
			logging.Warn("failed to update record path %s -> %s: %v", src, dest, dbErr)
		}
		return &database.UndoEntry{Kind: database.OpRename, SourcePath: dest, DestPath: src}, nil

	case database.OpCopy:
		if err := c.checkVacant(dest); err != nil {
			return nil, err
		}
		if err := c.fs.Copy(ctx, src, dest, c.onProgress(database.OpCopy, src)); err != nil {
			return nil, classify(err)
		}
		// Undoing a copy deletes the duplicate.
		return &database.UndoEntry{Kind: database.OpDelete, SourcePath: dest}, nil

	case database.OpDelete:
		if err := c.fs.Delete(src); err != nil {
			return nil, classify(err)
		}
		if dbErr := c.store.MarkStale(context.WithoutCancel(ctx), src, true); dbErr != nil {
			logging.Warn("failed to mark deleted file %s stale: %v", src, dbErr)
		}
		return nil, nil

	default:
		return nil, fmt.Errorf("%w: unknown operation kind %q", ErrIO, kind)
	}
}

// checkVacant guards against silently overwriting a destination that
// appeared between stage and commit.
func (c *Committer) checkVacant(dest string) error {
	occupied, err := c.fs.Exists(dest)
	if err != nil {
		return classify(err)
	}
	if occupied {
		return fmt.Errorf("%w: %s", ErrCollision, dest)
	}
	return nil
}

// moveAcrossVolumes streams src to dest and removes the source only after
// the copy has been verified and renamed into place.
func (c *Committer) moveAcrossVolumes(ctx context.Context, src, dest string) error {
	logging.Debug("Cross-volume move %s -> %s", src, dest)
	if err := c.fs.Copy(ctx, src, dest, c.onProgress(database.OpMove, src)); err != nil {
		return err
	}
	if err := c.fs.Delete(src); err != nil {
		// The copy landed; removing it again keeps the move retryable.
		if rmErr := c.fs.Delete(dest); rmErr != nil {
			logging.Warn("failed to remove copy %s after source delete failure: %v", dest, rmErr)
		}
		return err
	}
	return nil
}

func (c *Committer) setState(ctx context.Context, b *database.Batch, state database.BatchState) error {
	if err := c.store.UpdateBatchState(ctx, b.ID, state); err != nil {
		return fmt.Errorf("failed to move batch %s to %s: %w", b.ID, state, err)
	}
	b.State = state
	return nil
}
