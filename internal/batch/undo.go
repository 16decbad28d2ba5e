package batch

import (
	"context"
	"errors"
	"fmt"

	"media-organizer/internal/database"
	"media-organizer/internal/logging"
	"media-organizer/internal/metrics"
)

// UndoLog replays the inverses of the most recently committed batch.
type UndoLog struct {
	store     *database.Store
	committer *Committer
}

// NewUndoLog builds an undo log sharing the committer's apply path.
func NewUndoLog(store *database.Store, committer *Committer) *UndoLog {
	return &UndoLog{store: store, committer: committer}
}

// Undo reverses a committed batch by applying its recorded inverses in
// reverse order of original application, which avoids collisions when one
// operation's inverse targets a path a later operation still occupies. Only
// the most recently committed batch is eligible; anything else fails with
// ErrStaleBatch. Inverse failures are reported per operation and the batch
// ends Undone either way; an undo is never retried automatically.
func (u *UndoLog) Undo(ctx context.Context, batchID string) (*Result, error) {
	if u.store.Corrupt() {
		return nil, database.ErrCorrupt
	}

	eligible, err := u.store.UndoableBatchID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve undo eligibility: %w", err)
	}
	if eligible == "" || eligible != batchID {
		return nil, fmt.Errorf("%w: batch %s", ErrStaleBatch, batchID)
	}

	rec, err := u.store.GetUndoRecord(ctx, batchID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, fmt.Errorf("%w: batch %s has no undo record", ErrStaleBatch, batchID)
		}
		return nil, err
	}
	if rec.Consumed {
		return nil, fmt.Errorf("%w: batch %s already undone", ErrStaleBatch, batchID)
	}

	// Bookkeeping survives cancellation, mirroring Commit.
	dbCtx := context.WithoutCancel(ctx)

	if err := u.store.UpdateBatchState(dbCtx, batchID, database.BatchUndoing); err != nil {
		return nil, fmt.Errorf("failed to move batch %s to undoing: %w", batchID, err)
	}
	logging.Info("Undoing batch %s (%d inverse operations)", batchID, len(rec.Entries))

	result := &Result{}
	for i := len(rec.Entries) - 1; i >= 0; i-- {
		entry := rec.Entries[i]
		op := database.StagedOperation{
			BatchID:    batchID,
			Position:   i,
			Kind:       entry.Kind,
			SourcePath: entry.SourcePath,
			DestPath:   entry.DestPath,
		}

		opErr := ctx.Err()
		if opErr == nil {
			_, opErr = u.committer.apply(ctx, entry.Kind, entry.SourcePath, entry.DestPath)
		}

		if opErr != nil {
			op.Status = database.OpStatusFailed
			op.Error = opErr.Error()
			logging.Warn("Inverse %s %s failed during undo of %s: %v", entry.Kind, entry.SourcePath, batchID, opErr)
			result.Failed = append(result.Failed, FailedOperation{Operation: op, Err: opErr})
		} else {
			op.Status = database.OpStatusApplied
			result.Succeeded = append(result.Succeeded, op)
		}
	}

	if err := u.store.UpdateBatchState(dbCtx, batchID, database.BatchUndone); err != nil {
		logging.Warn("failed to move batch %s to undone: %v", batchID, err)
	}
	if err := u.store.MarkUndoConsumed(dbCtx, batchID); err != nil {
		return result, fmt.Errorf("undo applied but could not be marked consumed: %w", err)
	}

	metrics.BatchesUndone.Inc()
	logging.Info("Batch %s undone: %d reversed, %d failed", batchID, len(result.Succeeded), len(result.Failed))
	return result, nil
}
