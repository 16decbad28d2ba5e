package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"media-organizer/internal/database"
	"media-organizer/internal/logging"
	"media-organizer/internal/mediatypes"
	"media-organizer/internal/metrics"
)

// Watch follows filesystem events under dir until ctx is cancelled. New or
// rewritten media files are recorded and enriched; removed or renamed-away
// files are marked stale. Newly created directories are added to the watch.
func (s *Scanner) Watch(ctx context.Context, dir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create filesystem watcher: %w", err)
	}
	defer watcher.Close()

	if err := addRecursive(watcher, dir); err != nil {
		return err
	}
	logging.Info("Watching %s for changes", dir)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			s.handleEvent(ctx, watcher, event)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.Warn("Watcher error: %v", err)
		}
	}
}

func (s *Scanner) handleEvent(ctx context.Context, watcher *fsnotify.Watcher, event fsnotify.Event) {
	name := filepath.Base(event.Name)
	if strings.HasPrefix(name, ".") {
		return
	}

	switch {
	case event.Has(fsnotify.Create):
		metrics.ScannerWatcherEvents.WithLabelValues("create").Inc()
		info, err := os.Stat(event.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			if err := addRecursive(watcher, event.Name); err != nil {
				logging.Warn("failed to watch new directory %s: %v", event.Name, err)
			}
			return
		}
		s.recordEvent(ctx, event.Name, info)

	case event.Has(fsnotify.Write):
		metrics.ScannerWatcherEvents.WithLabelValues("write").Inc()
		info, err := os.Stat(event.Name)
		if err != nil || info.IsDir() {
			return
		}
		s.recordEvent(ctx, event.Name, info)

	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		metrics.ScannerWatcherEvents.WithLabelValues("remove").Inc()
		if !mediatypes.IsMedia(event.Name) {
			return
		}
		if err := s.store.MarkStale(ctx, event.Name, true); err != nil {
			logging.Warn("failed to mark %s stale after removal: %v", event.Name, err)
		}
	}
}

// recordEvent upserts a pending record for a changed file and enriches it
// inline. Watcher events are sparse enough not to need the worker pool.
func (s *Scanner) recordEvent(ctx context.Context, path string, info fs.FileInfo) {
	if !mediatypes.IsMedia(path) {
		return
	}

	rec := database.FileRecord{
		Path:        path,
		Name:        info.Name(),
		Size:        info.Size(),
		ModTime:     info.ModTime(),
		Fingerprint: database.Fingerprint(path, info.Size(), info.ModTime()),
		ScanState:   database.ScanStatePending,
	}
	if err := s.store.UpsertFileRecord(ctx, &rec); err != nil {
		logging.Warn("failed to record watched file %s: %v", path, err)
		return
	}

	sink := make(chan database.FileRecord, 2)
	s.enrich(ctx, rec, sink)
}

func addRecursive(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") && path != dir {
			return filepath.SkipDir
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}
