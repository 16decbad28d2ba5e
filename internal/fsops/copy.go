package fsops

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"media-organizer/internal/logging"
	"media-organizer/internal/metrics"
)

// Copy duplicates src to dst in bounded chunks. The data is written to a
// hidden temporary file in dst's directory, verified by byte count, synced,
// and then renamed into place, so readers of dst never observe a partial
// file. Cancellation is checked between chunks; on cancel or failure the
// temporary file is removed and dst is untouched. onProgress, when non-nil,
// is invoked at every chunk boundary with cumulative bytes written.
func (o *OS) Copy(ctx context.Context, src, dst string, onProgress ProgressFunc) error {
	start := time.Now()

	srcInfo, err := o.Stat(src)
	if err != nil {
		return fmt.Errorf("failed to stat source %s: %w", src, err)
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source %s: %w", src, err)
	}
	defer in.Close()

	dir := filepath.Dir(dst)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dst)+".partial-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()

	cleanup := func() {
		tmp.Close()
		if rmErr := os.Remove(tmpPath); rmErr != nil && !os.IsNotExist(rmErr) {
			logging.Warn("failed to remove partial copy %s: %v", tmpPath, rmErr)
		}
	}

	var written int64
	buf := make([]byte, o.chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			cleanup()
			return err
		}

		n, readErr := in.Read(buf)
		if n > 0 {
			if _, writeErr := tmp.Write(buf[:n]); writeErr != nil {
				cleanup()
				return fmt.Errorf("failed to write chunk to %s: %w", tmpPath, writeErr)
			}
			written += int64(n)
			metrics.CopyBytesTotal.Add(float64(n))
			if onProgress != nil {
				onProgress(written, srcInfo.Size())
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			cleanup()
			return fmt.Errorf("failed to read from %s: %w", src, readErr)
		}
	}

	// The source may have shrunk or grown mid-copy; refuse to install a
	// destination that doesn't match what we set out to copy.
	if written != srcInfo.Size() {
		cleanup()
		return fmt.Errorf("size mismatch copying %s: wrote %d bytes, expected %d", src, written, srcInfo.Size())
	}

	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("failed to sync %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close %s: %w", tmpPath, err)
	}

	if err := os.Chmod(tmpPath, srcInfo.Mode().Perm()); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to set permissions on %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to move %s into place: %w", tmpPath, err)
	}

	metrics.CopyDuration.Observe(time.Since(start).Seconds())
	logging.Debug("Copied %s to %s (%d bytes in %v)", src, dst, written, time.Since(start))
	return nil
}
