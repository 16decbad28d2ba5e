package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// Error taxonomy for staging, commit and undo. Callers match with errors.Is.
var (
	// ErrNotFound means the source file vanished between stage and commit.
	ErrNotFound = errors.New("source file not found")

	// ErrCollision means the destination is occupied, either on disk or by
	// another staged operation in the same batch.
	ErrCollision = errors.New("destination already occupied")

	// ErrPermission means the share denied access.
	ErrPermission = errors.New("permission denied")

	// ErrIO covers interrupted copies and other filesystem failures.
	ErrIO = errors.New("filesystem operation failed")

	// ErrStaleBatch means undo was attempted on a superseded or already
	// undone batch.
	ErrStaleBatch = errors.New("batch is no longer eligible for undo")

	// ErrBatchState means the batch is not in a state that accepts the call.
	ErrBatchState = errors.New("operation not valid for batch state")
)

// classify maps raw filesystem errors into the taxonomy. Cancellation passes
// through untouched so callers can distinguish it from real failures.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case os.IsNotExist(err):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case os.IsPermission(err):
		return fmt.Errorf("%w: %v", ErrPermission, err)
	case os.IsExist(err):
		return fmt.Errorf("%w: %v", ErrCollision, err)
	default:
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
}
