package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"media-organizer/internal/database"
	"media-organizer/internal/logging"
	"media-organizer/internal/metrics"
)

// ErrGeneration wraps generator failures so callers can distinguish them
// from storage errors. Failed generations are never cached.
var ErrGeneration = errors.New("cache payload generation failed")

// Generator produces the payload for a cache key on miss.
type Generator func(ctx context.Context) ([]byte, error)

// Stats is a point-in-time view of cache occupancy.
type Stats struct {
	Entries    int
	TotalBytes int64
	MaxBytes   int64
}

type indexEntry struct {
	size       int64
	lastAccess int64
	seq        int64
}

type inflightCall struct {
	done    chan struct{}
	payload []byte
	err     error
}

// Manager is the byte-bounded LRU cache over the persistent store.
type Manager struct {
	store        *database.Store
	maxBytes     int64
	lowWatermark float64

	mu         sync.Mutex
	entries    map[string]*indexEntry
	totalBytes int64
	seq        int64
	inflight   map[string]*inflightCall

	now func() time.Time // swapped in tests
}

// New builds a manager and rebuilds its index from the store.
func New(ctx context.Context, store *database.Store, maxBytes int64, lowWatermark float64) (*Manager, error) {
	m := &Manager{
		store:        store,
		maxBytes:     maxBytes,
		lowWatermark: lowWatermark,
		entries:      make(map[string]*indexEntry),
		inflight:     make(map[string]*inflightCall),
		now:          time.Now,
	}

	listed, err := store.ListCacheEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load cache index: %w", err)
	}
	for _, e := range listed {
		m.entries[e.Key] = &indexEntry{size: e.SizeBytes, lastAccess: e.LastAccess, seq: e.Seq}
		m.totalBytes += e.SizeBytes
		if e.Seq > m.seq {
			m.seq = e.Seq
		}
	}
	m.publishGauges()

	logging.Info("Cache index loaded: %d entries, %d bytes (budget %d)",
		len(m.entries), m.totalBytes, maxBytes)
	return m, nil
}

// GetOrCreate returns the payload for key, invoking generate on a miss.
// Concurrent misses for the same key share one generation. A payload larger
// than the whole budget is returned to the caller but not cached.
func (m *Manager) GetOrCreate(ctx context.Context, key string, generate Generator) ([]byte, error) {
	for {
		m.mu.Lock()
		if e, ok := m.entries[key]; ok {
			now := m.now().Unix()
			e.lastAccess = now
			m.mu.Unlock()

			payload, err := m.store.GetCachePayload(ctx, key)
			if err == nil {
				metrics.CacheHits.Inc()
				if touchErr := m.store.TouchCacheEntry(ctx, key, now); touchErr != nil {
					logging.Warn("failed to persist cache access time for %s: %v", key, touchErr)
				}
				return payload, nil
			}
			if !errors.Is(err, database.ErrNotFound) {
				return nil, err
			}
			// Index said present but the row is gone; drop and regenerate.
			m.dropIndexEntry(key)
			continue
		}

		if call, ok := m.inflight[key]; ok {
			m.mu.Unlock()
			select {
			case <-call.done:
				return call.payload, call.err
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		call := &inflightCall{done: make(chan struct{})}
		m.inflight[key] = call
		m.mu.Unlock()

		metrics.CacheMisses.Inc()
		call.payload, call.err = m.generateAndStore(ctx, key, generate)
		close(call.done)

		m.mu.Lock()
		delete(m.inflight, key)
		m.mu.Unlock()

		return call.payload, call.err
	}
}

func (m *Manager) generateAndStore(ctx context.Context, key string, generate Generator) ([]byte, error) {
	payload, err := generate(ctx)
	if err != nil {
		metrics.CacheGenerationErrors.Inc()
		return nil, fmt.Errorf("%w for %s: %v", ErrGeneration, key, err)
	}

	size := int64(len(payload))
	if size > m.maxBytes {
		logging.Warn("Payload for %s (%d bytes) exceeds cache budget (%d); serving uncached", key, size, m.maxBytes)
		return payload, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	now := m.now().Unix()
	if err := m.store.PutCacheEntry(ctx, key, payload, now, m.seq); err != nil {
		// Degraded store: serve the payload without caching it.
		logging.Warn("failed to persist cache entry %s: %v", key, err)
		return payload, nil
	}

	if old, ok := m.entries[key]; ok {
		m.totalBytes -= old.size
	}
	m.entries[key] = &indexEntry{size: size, lastAccess: now, seq: m.seq}
	m.totalBytes += size

	if m.totalBytes > m.maxBytes {
		m.evictLocked(ctx, int64(float64(m.maxBytes)*m.lowWatermark))
	}
	m.publishGauges()

	return payload, nil
}

// Prune evicts entries until total size is at most targetRatio of the
// budget. Prune(0) empties the cache.
func (m *Manager) Prune(ctx context.Context, targetRatio float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evictLocked(ctx, int64(float64(m.maxBytes)*targetRatio))
	m.publishGauges()
}

// Stats returns current occupancy.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{Entries: len(m.entries), TotalBytes: m.totalBytes, MaxBytes: m.maxBytes}
}

// evictLocked removes least recently used entries until totalBytes <= target.
// Caller holds m.mu.
func (m *Manager) evictLocked(ctx context.Context, target int64) {
	if m.totalBytes <= target {
		return
	}

	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := m.entries[keys[i]], m.entries[keys[j]]
		if a.lastAccess != b.lastAccess {
			return a.lastAccess < b.lastAccess
		}
		return a.seq < b.seq
	})

	for _, key := range keys {
		if m.totalBytes <= target {
			break
		}
		if err := m.store.DeleteCacheEntry(ctx, key); err != nil {
			logging.Warn("failed to delete cache entry %s during eviction: %v", key, err)
			continue
		}
		m.totalBytes -= m.entries[key].size
		delete(m.entries, key)
		metrics.CacheEvictions.Inc()
	}
}

// dropIndexEntry removes a key from the in-memory index only, used when the
// index and the store disagree.
func (m *Manager) dropIndexEntry(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok {
		m.totalBytes -= e.size
		delete(m.entries, key)
	}
	m.publishGauges()
}

func (m *Manager) publishGauges() {
	metrics.CacheSizeBytes.Set(float64(m.totalBytes))
	metrics.CacheEntryCount.Set(float64(len(m.entries)))
}
