package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/rawblock/babel-engine/pkg/models"
)

// Search Result Cache
//
// Memoizes completed pipeline runs keyed by request fingerprint. Two
// backends implement the same Store contract: an in-process LRU with TTL
// (the default) and a Redis-backed store for multi-instance deployments.
//
// Entries are immutable once written: both Put and Get copy, so callers
// can never mutate what a later hit returns. An expired entry is never
// served, whatever the backend.

// Defaults applied when the configuration leaves capacity or TTL unset.
const (
	DefaultCapacity = 1024
	DefaultTTL      = time.Hour
)

// Store is the memoization backend for completed searches. Fingerprints
// are opaque to the cache; the pipeline owns their construction.
type Store interface {
	Get(ctx context.Context, fingerprint string) (models.CacheEntry, bool, error)
	Put(ctx context.Context, entry models.CacheEntry) error
	Invalidate(ctx context.Context, fingerprint string) error
	Flush(ctx context.Context) error
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// Snapshotter is the optional checkpoint surface. Only the in-process
// backend implements it; Redis keeps its own state across restarts.
type Snapshotter interface {
	Snapshot() []models.CacheEntry
	Restore(entries []models.CacheEntry) int
}

// Stats is a point-in-time view of cache effectiveness.
type Stats struct {
	Backend     string `json:"backend"`
	Entries     int    `json:"entries"`
	Capacity    int    `json:"capacity"` // 0 means unbounded
	Hits        uint64 `json:"hits"`
	Misses      uint64 `json:"misses"`
	Evictions   uint64 `json:"evictions"`
	Expirations uint64 `json:"expirations"`
}

// Memory is the in-process LRU+TTL store.
type Memory struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	now      func() time.Time

	entries map[string]*list.Element
	order   *list.List // front is most recently used

	hits        uint64
	misses      uint64
	evictions   uint64
	expirations uint64
}

// NewMemory builds an in-process store. Non-positive capacity or TTL fall
// back to the defaults.
func NewMemory(capacity int, ttl time.Duration) *Memory {
	return NewMemoryWithClock(capacity, ttl, time.Now)
}

// NewMemoryWithClock is NewMemory with an injectable clock, used by tests
// to drive expiry deterministically.
func NewMemoryWithClock(capacity int, ttl time.Duration, now func() time.Time) *Memory {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{
		capacity: capacity,
		ttl:      ttl,
		now:      now,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Get returns a copy of the entry for fingerprint. Expired entries are
// removed on sight and reported as misses.
func (m *Memory) Get(_ context.Context, fingerprint string) (models.CacheEntry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.entries[fingerprint]
	if !ok {
		m.misses++
		return models.CacheEntry{}, false, nil
	}
	entry := el.Value.(models.CacheEntry)
	if m.expired(entry) {
		m.removeLocked(fingerprint, el)
		m.expirations++
		m.misses++
		return models.CacheEntry{}, false, nil
	}
	m.order.MoveToFront(el)
	m.hits++
	return copyEntry(entry), true, nil
}

// Put stores a copy of entry, stamping CreatedAt when the caller left it
// zero, and evicts from the cold end past capacity.
func (m *Memory) Put(_ context.Context, entry models.CacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = m.now()
	}
	stored := copyEntry(entry)

	if el, ok := m.entries[entry.Fingerprint]; ok {
		el.Value = stored
		m.order.MoveToFront(el)
		return nil
	}
	m.entries[entry.Fingerprint] = m.order.PushFront(stored)

	for len(m.entries) > m.capacity {
		oldest := m.order.Back()
		if oldest == nil {
			break
		}
		m.removeLocked(oldest.Value.(models.CacheEntry).Fingerprint, oldest)
		m.evictions++
	}
	return nil
}

// Invalidate drops one fingerprint if present.
func (m *Memory) Invalidate(_ context.Context, fingerprint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.entries[fingerprint]; ok {
		m.removeLocked(fingerprint, el)
	}
	return nil
}

// Flush drops everything. Counters survive so hit rates stay observable
// across administrative flushes.
func (m *Memory) Flush(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = make(map[string]*list.Element)
	m.order.Init()
	return nil
}

// Stats reports current occupancy and lifetime counters.
func (m *Memory) Stats(_ context.Context) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Stats{
		Backend:     "memory",
		Entries:     len(m.entries),
		Capacity:    m.capacity,
		Hits:        m.hits,
		Misses:      m.misses,
		Evictions:   m.evictions,
		Expirations: m.expirations,
	}, nil
}

// Close is a no-op for the in-process store.
func (m *Memory) Close() error { return nil }

// Snapshot returns copies of all live entries, most recent first, for
// checkpoint persistence. Expired entries are skipped, not returned.
func (m *Memory) Snapshot() []models.CacheEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.CacheEntry, 0, len(m.entries))
	for el := m.order.Front(); el != nil; el = el.Next() {
		entry := el.Value.(models.CacheEntry)
		if m.expired(entry) {
			continue
		}
		out = append(out, copyEntry(entry))
	}
	return out
}

// Restore loads checkpointed entries, dropping any that expired while the
// process was down. Input order is recency order, so entries are inserted
// back-to-front to rebuild the same eviction order. Returns the number
// restored.
func (m *Memory) Restore(entries []models.CacheEntry) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	restored := 0
	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]
		if entry.Fingerprint == "" || m.expired(entry) {
			continue
		}
		stored := copyEntry(entry)
		if el, ok := m.entries[entry.Fingerprint]; ok {
			el.Value = stored
			m.order.MoveToFront(el)
		} else {
			m.entries[entry.Fingerprint] = m.order.PushFront(stored)
		}
		restored++
	}
	for len(m.entries) > m.capacity {
		oldest := m.order.Back()
		if oldest == nil {
			break
		}
		m.removeLocked(oldest.Value.(models.CacheEntry).Fingerprint, oldest)
		m.evictions++
	}
	return restored
}

func (m *Memory) expired(entry models.CacheEntry) bool {
	return !m.now().Before(entry.CreatedAt.Add(m.ttl))
}

func (m *Memory) removeLocked(fingerprint string, el *list.Element) {
	m.order.Remove(el)
	delete(m.entries, fingerprint)
}

// copyEntry deep-copies the parts a caller could mutate: the results slice
// and each result's metrics map.
func copyEntry(entry models.CacheEntry) models.CacheEntry {
	if entry.Results == nil {
		return entry
	}
	results := make([]models.DecodedPage, len(entry.Results))
	copy(results, entry.Results)
	for i := range results {
		if metrics := results[i].Coherence.Metrics; metrics != nil {
			dup := make(map[string]float64, len(metrics))
			for k, v := range metrics {
				dup[k] = v
			}
			results[i].Coherence.Metrics = dup
		}
	}
	entry.Results = results
	return entry
}
