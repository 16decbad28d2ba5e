package fsops

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// ProgressFunc reports cumulative bytes written during a chunked copy.
// Progress is independent of cancellation; a caller that wants neither
// passes nil.
type ProgressFunc func(written, total int64)

// Provider abstracts the physical filesystem so the batch engine can be
// tested without touching disk.
type Provider interface {
	// Stat returns file info for path.
	Stat(path string) (os.FileInfo, error)

	// Exists reports whether path exists. An unreadable parent is an error,
	// not a "no".
	Exists(path string) (bool, error)

	// Rename atomically renames within one volume. Fails with a cross-device
	// error when src and dst live on different volumes.
	Rename(oldPath, newPath string) error

	// Copy duplicates src to dst in bounded chunks, honoring ctx
	// cancellation. onProgress, when non-nil, is called after each chunk
	// with cumulative bytes written and the source size; it must not
	// block. On any failure or cancel, no dst is left behind.
	Copy(ctx context.Context, src, dst string, onProgress ProgressFunc) error

	// Delete removes a single file.
	Delete(path string) error

	// SameVolume reports whether the two paths live on the same filesystem.
	// For a path that does not exist yet, its parent directory is checked.
	SameVolume(a, b string) (bool, error)
}

// OS is the production Provider backed by the real filesystem.
type OS struct {
	chunkSize int64
	retry     RetryConfig
}

// NewOS returns a filesystem provider copying in chunkSize-byte chunks.
func NewOS(chunkSize int64) *OS {
	return &OS{
		chunkSize: chunkSize,
		retry:     DefaultRetryConfig(),
	}
}

// Stat performs os.Stat with retry logic for NFS stale file handle errors.
func (o *OS) Stat(path string) (os.FileInfo, error) {
	var info os.FileInfo
	err := withRetry("stat", path, o.retry, func() error {
		var statErr error
		info, statErr = os.Stat(path)
		return statErr
	})
	return info, err
}

// Exists reports whether path exists.
func (o *OS) Exists(path string) (bool, error) {
	_, err := o.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Rename renames within one volume.
func (o *OS) Rename(oldPath, newPath string) error {
	return withRetry("rename", oldPath, o.retry, func() error {
		return os.Rename(oldPath, newPath)
	})
}

// Delete removes the file at path.
func (o *OS) Delete(path string) error {
	return withRetry("delete", path, o.retry, func() error {
		return os.Remove(path)
	})
}

// SameVolume compares device IDs of the two paths. A missing path falls back
// to its parent directory, since the question is where a new file would land.
func (o *OS) SameVolume(a, b string) (bool, error) {
	devA, err := o.deviceID(a)
	if err != nil {
		return false, err
	}
	devB, err := o.deviceID(b)
	if err != nil {
		return false, err
	}
	return devA == devB, nil
}

func (o *OS) deviceID(path string) (uint64, error) {
	info, err := o.Stat(path)
	if os.IsNotExist(err) {
		info, err = o.Stat(filepath.Dir(path))
	}
	if err != nil {
		return 0, err
	}

	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, fmt.Errorf("no device info available for %s", path)
	}
	return uint64(stat.Dev), nil
}

// IsCrossDevice reports whether err is EXDEV, a rename across volumes.
func IsCrossDevice(err error) bool {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EXDEV
	}
	return false
}
