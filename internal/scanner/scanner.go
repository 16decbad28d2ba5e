package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"media-organizer/internal/database"
	"media-organizer/internal/logging"
	"media-organizer/internal/mediatypes"
	"media-organizer/internal/metrics"
	"media-organizer/internal/probe"
)

// Scanner walks directories and keeps the file record store current.
type Scanner struct {
	store    *database.Store
	provider probe.Provider
	workers  int
}

// New builds a scanner enriching with the given number of probe workers.
func New(store *database.Store, provider probe.Provider, workers int) *Scanner {
	if workers < 1 {
		workers = 1
	}
	return &Scanner{store: store, provider: provider, workers: workers}
}

// Scan walks dir and returns a channel of file records. Every media file is
// emitted once in pending state as soon as it is discovered, then again
// after enrichment (enriched or failed). Files whose size and mtime are
// unchanged since the last scan are emitted once, already enriched, without
// a new probe. Records for files no longer on disk are marked stale. The
// channel closes when the scan completes or ctx is cancelled.
func (s *Scanner) Scan(ctx context.Context, dir string) (<-chan database.FileRecord, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat scan root %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scan root %s is not a directory", dir)
	}

	out := make(chan database.FileRecord, 64)
	go s.run(ctx, dir, out)
	return out, nil
}

func (s *Scanner) run(ctx context.Context, dir string, out chan<- database.FileRecord) {
	defer close(out)

	start := time.Now()
	logging.Info("Scanning %s with %d workers", dir, s.workers)
	metrics.ScannerWorkers.Set(float64(s.workers))

	jobs := make(chan database.FileRecord, 64)
	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range jobs {
				s.enrich(ctx, rec, out)
			}
		}()
	}

	seen := make(map[string]bool)
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			logging.Warn("Scan error at %s: %v", path, err)
			return nil
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") || !mediatypes.IsMedia(path) {
			return nil
		}

		fileInfo, err := d.Info()
		if err != nil {
			logging.Warn("failed to stat %s during scan: %v", path, err)
			return nil
		}

		seen[path] = true
		metrics.ScannerFilesSeen.Inc()
		s.admit(ctx, path, fileInfo, jobs, out)
		return nil
	})
	close(jobs)
	wg.Wait()

	if walkErr != nil && !errors.Is(walkErr, context.Canceled) {
		logging.Error("Scan of %s aborted: %v", dir, walkErr)
	}
	if walkErr == nil {
		s.markMissing(ctx, dir, seen)
	}

	logging.Info("Scan of %s finished in %v (%d files)", dir, time.Since(start), len(seen))
}

// admit records a discovered file, emits it, and queues it for enrichment
// unless the stored record is already current.
func (s *Scanner) admit(ctx context.Context, path string, info fs.FileInfo, jobs chan<- database.FileRecord, out chan<- database.FileRecord) {
	fingerprint := database.Fingerprint(path, info.Size(), info.ModTime())

	existing, err := s.store.GetFileRecord(ctx, path)
	if err == nil && existing.Fingerprint == fingerprint && existing.ScanState == database.ScanStateEnriched {
		if existing.Stale {
			if err := s.store.MarkStale(ctx, path, false); err != nil {
				logging.Warn("failed to unmark stale record %s: %v", path, err)
			}
			existing.Stale = false
		}
		emit(ctx, out, *existing)
		return
	}
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		logging.Warn("failed to look up record for %s: %v", path, err)
	}

	rec := database.FileRecord{
		Path:        path,
		Name:        info.Name(),
		Size:        info.Size(),
		ModTime:     info.ModTime(),
		Fingerprint: fingerprint,
		ScanState:   database.ScanStatePending,
	}
	if err := s.store.UpsertFileRecord(ctx, &rec); err != nil {
		logging.Warn("failed to record %s: %v", path, err)
		return
	}

	emit(ctx, out, rec)
	select {
	case jobs <- rec:
	case <-ctx.Done():
	}
}

// enrich probes one file and persists the outcome.
func (s *Scanner) enrich(ctx context.Context, rec database.FileRecord, out chan<- database.FileRecord) {
	if ctx.Err() != nil {
		return
	}

	start := time.Now()
	meta, err := s.provider.Probe(ctx, rec.Path)
	metrics.ScannerEnrichDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.ScannerEnrichTotal.WithLabelValues("failure").Inc()
		logging.Warn("Probe failed for %s: %v", rec.Path, err)
		rec.ScanState = database.ScanStateFailed
	} else {
		metrics.ScannerEnrichTotal.WithLabelValues("success").Inc()
		rec.ScanState = database.ScanStateEnriched
		rec.Duration = meta.Duration
		rec.Width = meta.Width
		rec.Height = meta.Height
		rec.Codec = meta.Codec
		rec.Subtitles = meta.Subtitles
	}

	if err := s.store.UpsertFileRecord(ctx, &rec); err != nil {
		logging.Warn("failed to persist enrichment for %s: %v", rec.Path, err)
		return
	}
	emit(ctx, out, rec)
}

// markMissing flags records under dir whose files vanished since last scan.
func (s *Scanner) markMissing(ctx context.Context, dir string, seen map[string]bool) {
	records, err := s.store.ListRecordsUnder(ctx, dir)
	if err != nil {
		logging.Warn("failed to list records for stale pass under %s: %v", dir, err)
		return
	}
	for i := range records {
		if seen[records[i].Path] {
			continue
		}
		if err := s.store.MarkStale(ctx, records[i].Path, true); err != nil {
			logging.Warn("failed to mark %s stale: %v", records[i].Path, err)
			continue
		}
		logging.Debug("Marked missing file stale: %s", records[i].Path)
	}
}

// ResumePending re-enriches records a previous scan left in pending state,
// e.g. after a crash mid-scan.
func (s *Scanner) ResumePending(ctx context.Context) (int, error) {
	pending, err := s.store.ListPendingRecords(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending records: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	logging.Info("Resuming enrichment of %d pending files", len(pending))

	jobs := make(chan database.FileRecord, 64)
	out := make(chan database.FileRecord, 64)
	go func() {
		for range out {
			// Drain; resume callers only need completion.
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range jobs {
				s.enrich(ctx, rec, out)
			}
		}()
	}

	for _, rec := range pending {
		select {
		case jobs <- rec:
		case <-ctx.Done():
		}
	}
	close(jobs)
	wg.Wait()
	close(out)

	return len(pending), ctx.Err()
}

func emit(ctx context.Context, out chan<- database.FileRecord, rec database.FileRecord) {
	select {
	case out <- rec:
	case <-ctx.Done():
	}
}
