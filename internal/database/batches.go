package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const undoableKey = "undoable_batch_id"

// InsertBatch persists a new batch in Draft state.
func (s *Store) InsertBatch(ctx context.Context, b *Batch) error {
	_, err := s.exec(ctx, "insert_batch",
		"INSERT INTO batches (id, state, created_at) VALUES (?, ?, ?)",
		b.ID, string(b.State), b.CreatedAt.Unix())
	return err
}

// UpdateBatchState advances a batch through its lifecycle.
func (s *Store) UpdateBatchState(ctx context.Context, batchID string, state BatchState) error {
	_, err := s.exec(ctx, "update_batch_state",
		"UPDATE batches SET state = ? WHERE id = ?", string(state), batchID)
	return err
}

// InsertOperation persists one staged operation.
func (s *Store) InsertOperation(ctx context.Context, op *StagedOperation) error {
	_, err := s.exec(ctx, "insert_operation", `
	INSERT INTO staged_operations (id, batch_id, position, kind, source_path, dest_path, status, error)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		op.ID, op.BatchID, op.Position, string(op.Kind),
		op.SourcePath, nullString(op.DestPath), string(op.Status), nullString(op.Error))
	return err
}

// UpdateOperationStatus records one operation's commit outcome.
func (s *Store) UpdateOperationStatus(ctx context.Context, opID string, status OperationStatus, opErr string) error {
	_, err := s.exec(ctx, "update_operation_status",
		"UPDATE staged_operations SET status = ?, error = ? WHERE id = ?",
		string(status), nullString(opErr), opID)
	return err
}

// GetBatch loads a batch and its operations in submission order.
func (s *Store) GetBatch(ctx context.Context, batchID string) (*Batch, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_batch", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var b Batch
	var state string
	var createdAt int64
	err = s.db.QueryRowContext(ctx,
		"SELECT id, state, created_at FROM batches WHERE id = ?", batchID).
		Scan(&b.ID, &state, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrNotFound
		return nil, fmt.Errorf("batch %q: %w", batchID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	b.State = BatchState(state)
	b.CreatedAt = time.Unix(createdAt, 0)

	rows, qErr := s.db.QueryContext(ctx, `
	SELECT id, batch_id, position, kind, source_path, dest_path, status, error
	FROM staged_operations WHERE batch_id = ? ORDER BY position`, batchID)
	if qErr != nil {
		err = qErr
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var op StagedOperation
		var kind, status string
		var dest, opErr sql.NullString
		if scanErr := rows.Scan(&op.ID, &op.BatchID, &op.Position, &kind,
			&op.SourcePath, &dest, &status, &opErr); scanErr != nil {
			err = scanErr
			return nil, err
		}
		op.Kind = OperationKind(kind)
		op.Status = OperationStatus(status)
		op.DestPath = dest.String
		op.Error = opErr.String
		b.Operations = append(b.Operations, op)
	}
	err = rows.Err()
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// ListBatches returns batch history, newest first, without operations.
func (s *Store) ListBatches(ctx context.Context, limit int) ([]Batch, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_batches", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, qErr := s.db.QueryContext(ctx,
		"SELECT id, state, created_at FROM batches ORDER BY created_at DESC, id LIMIT ?", limit)
	if qErr != nil {
		err = qErr
		return nil, err
	}
	defer rows.Close()

	var batches []Batch
	for rows.Next() {
		var b Batch
		var state string
		var createdAt int64
		if scanErr := rows.Scan(&b.ID, &state, &createdAt); scanErr != nil {
			err = scanErr
			return nil, err
		}
		b.State = BatchState(state)
		b.CreatedAt = time.Unix(createdAt, 0)
		batches = append(batches, b)
	}
	err = rows.Err()
	return batches, err
}

// SaveUndoRecord stores the inverse pairs for a committed batch and marks
// that batch as the one eligible for undo, revoking any prior eligibility.
func (s *Store) SaveUndoRecord(ctx context.Context, batchID string, entries []UndoEntry) error {
	encoded, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to encode undo entries: %w", err)
	}

	_, err = s.exec(ctx, "save_undo_record", `
	INSERT INTO undo_records (batch_id, entries, consumed, created_at)
	VALUES (?, ?, 0, strftime('%s', 'now'))
	ON CONFLICT(batch_id) DO UPDATE SET entries = excluded.entries, consumed = 0`,
		batchID, string(encoded))
	if err != nil {
		return err
	}

	return s.setValue(ctx, undoableKey, batchID)
}

// GetUndoRecord loads the undo record for a batch.
func (s *Store) GetUndoRecord(ctx context.Context, batchID string) (*UndoRecord, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_undo_record", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var rec UndoRecord
	var entries string
	var consumed int
	var createdAt int64
	err = s.db.QueryRowContext(ctx,
		"SELECT batch_id, entries, consumed, created_at FROM undo_records WHERE batch_id = ?",
		batchID).Scan(&rec.BatchID, &entries, &consumed, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrNotFound
		return nil, fmt.Errorf("undo record %q: %w", batchID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	rec.Consumed = consumed != 0
	rec.CreatedAt = time.Unix(createdAt, 0)
	if err = json.Unmarshal([]byte(entries), &rec.Entries); err != nil {
		return nil, fmt.Errorf("failed to decode undo entries for %s: %w", batchID, err)
	}
	return &rec, nil
}

// MarkUndoConsumed marks a batch's undo record as spent and clears its
// eligibility.
func (s *Store) MarkUndoConsumed(ctx context.Context, batchID string) error {
	if _, err := s.exec(ctx, "mark_undo_consumed",
		"UPDATE undo_records SET consumed = 1 WHERE batch_id = ?", batchID); err != nil {
		return err
	}
	return s.setValue(ctx, undoableKey, "")
}

// UndoableBatchID returns the id of the batch currently eligible for undo,
// or "" if none is.
func (s *Store) UndoableBatchID(ctx context.Context) (string, error) {
	return s.getValue(ctx, undoableKey)
}

// RevokeUndoable clears undo eligibility without consuming the record, e.g.
// when a new draft supersedes the committed batch. The record itself is
// retained for inspection.
func (s *Store) RevokeUndoable(ctx context.Context) error {
	return s.setValue(ctx, undoableKey, "")
}
