package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rawblock/babel-engine/pkg/models"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newFakeClock() *fakeClock { return &fakeClock{now: time.Unix(1700000000, 0)} }

func testEntry(fingerprint, address string) models.CacheEntry {
	return models.CacheEntry{
		Fingerprint: fingerprint,
		Results: []models.DecodedPage{{
			Address: address,
			RawText: "the cat and the dog",
			Coherence: models.CoherenceScore{
				OverallScore: 40.2,
				Confidence:   models.ConfidenceSparse,
				Metrics:      map[string]float64{"text_length": 19},
			},
		}},
	}
}

func TestMemory_PutGetRoundTrip(t *testing.T) {
	clock := newFakeClock()
	m := NewMemoryWithClock(10, time.Hour, clock.Now)
	ctx := context.Background()

	require.NoError(t, m.Put(ctx, testEntry("fp-1", "addr-1")))

	got, found, err := m.Get(ctx, "fp-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "fp-1", got.Fingerprint)
	require.Len(t, got.Results, 1)
	assert.Equal(t, "addr-1", got.Results[0].Address)
	assert.Equal(t, clock.Now(), got.CreatedAt)

	_, found, err = m.Get(ctx, "unknown")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemory_NeverReturnsExpired(t *testing.T) {
	clock := newFakeClock()
	m := NewMemoryWithClock(10, time.Hour, clock.Now)
	ctx := context.Background()

	require.NoError(t, m.Put(ctx, testEntry("fp-1", "addr-1")))

	clock.Advance(59 * time.Minute)
	_, found, _ := m.Get(ctx, "fp-1")
	assert.True(t, found, "entry inside TTL should hit")

	clock.Advance(2 * time.Minute)
	_, found, _ = m.Get(ctx, "fp-1")
	assert.False(t, found, "entry past TTL must never be served")

	stats, _ := m.Stats(ctx)
	assert.Equal(t, uint64(1), stats.Expirations)
	assert.Equal(t, 0, stats.Entries, "expired entry is removed on sight")
}

func TestMemory_LRUEviction(t *testing.T) {
	clock := newFakeClock()
	m := NewMemoryWithClock(2, time.Hour, clock.Now)
	ctx := context.Background()

	require.NoError(t, m.Put(ctx, testEntry("a", "addr-a")))
	require.NoError(t, m.Put(ctx, testEntry("b", "addr-b")))

	// Touch a so b becomes the cold end, then push past capacity.
	_, _, _ = m.Get(ctx, "a")
	require.NoError(t, m.Put(ctx, testEntry("c", "addr-c")))

	_, found, _ := m.Get(ctx, "b")
	assert.False(t, found, "cold entry should be evicted")
	_, found, _ = m.Get(ctx, "a")
	assert.True(t, found)
	_, found, _ = m.Get(ctx, "c")
	assert.True(t, found)

	stats, _ := m.Stats(ctx)
	assert.Equal(t, uint64(1), stats.Evictions)
}

func TestMemory_EntriesAreImmutable(t *testing.T) {
	clock := newFakeClock()
	m := NewMemoryWithClock(10, time.Hour, clock.Now)
	ctx := context.Background()

	put := testEntry("fp-1", "addr-1")
	require.NoError(t, m.Put(ctx, put))

	// Mutating what the caller handed in must not reach the store.
	put.Results[0].Address = "mangled-after-put"
	put.Results[0].Coherence.Metrics["text_length"] = -1

	got, _, _ := m.Get(ctx, "fp-1")
	assert.Equal(t, "addr-1", got.Results[0].Address)
	assert.Equal(t, float64(19), got.Results[0].Coherence.Metrics["text_length"])

	// Mutating what a hit returned must not poison the next hit.
	got.Results[0].Address = "mangled-after-get"
	got.Results[0].Coherence.Metrics["text_length"] = -2

	again, _, _ := m.Get(ctx, "fp-1")
	assert.Equal(t, "addr-1", again.Results[0].Address)
	assert.Equal(t, float64(19), again.Results[0].Coherence.Metrics["text_length"])
}

func TestMemory_InvalidateAndFlush(t *testing.T) {
	clock := newFakeClock()
	m := NewMemoryWithClock(10, time.Hour, clock.Now)
	ctx := context.Background()

	require.NoError(t, m.Put(ctx, testEntry("a", "addr-a")))
	require.NoError(t, m.Put(ctx, testEntry("b", "addr-b")))

	require.NoError(t, m.Invalidate(ctx, "a"))
	_, found, _ := m.Get(ctx, "a")
	assert.False(t, found)
	_, found, _ = m.Get(ctx, "b")
	assert.True(t, found)

	require.NoError(t, m.Flush(ctx))
	_, found, _ = m.Get(ctx, "b")
	assert.False(t, found)

	stats, _ := m.Stats(ctx)
	assert.Equal(t, 0, stats.Entries)
}

func TestMemory_PutReplacesExisting(t *testing.T) {
	clock := newFakeClock()
	m := NewMemoryWithClock(10, time.Hour, clock.Now)
	ctx := context.Background()

	require.NoError(t, m.Put(ctx, testEntry("fp-1", "first")))
	require.NoError(t, m.Put(ctx, testEntry("fp-1", "second")))

	got, found, _ := m.Get(ctx, "fp-1")
	require.True(t, found)
	assert.Equal(t, "second", got.Results[0].Address)

	stats, _ := m.Stats(ctx)
	assert.Equal(t, 1, stats.Entries)
}

func TestMemory_SnapshotRestore(t *testing.T) {
	clock := newFakeClock()
	m := NewMemoryWithClock(10, time.Hour, clock.Now)
	ctx := context.Background()

	require.NoError(t, m.Put(ctx, testEntry("old", "addr-old")))
	clock.Advance(30 * time.Minute)
	require.NoError(t, m.Put(ctx, testEntry("fresh", "addr-fresh")))

	snap := m.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "fresh", snap[0].Fingerprint, "snapshot is recency-ordered")

	// 40 minutes later "old" is past its TTL; a restore must drop it.
	clock.Advance(40 * time.Minute)
	restored := NewMemoryWithClock(10, time.Hour, clock.Now)
	n := restored.Restore(snap)
	assert.Equal(t, 1, n)

	_, found, _ := restored.Get(ctx, "fresh")
	assert.True(t, found)
	_, found, _ = restored.Get(ctx, "old")
	assert.False(t, found)
}

func TestMemory_StatsCounters(t *testing.T) {
	clock := newFakeClock()
	m := NewMemoryWithClock(10, time.Hour, clock.Now)
	ctx := context.Background()

	_, _, _ = m.Get(ctx, "nope")
	_, _, _ = m.Get(ctx, "nope")
	require.NoError(t, m.Put(ctx, testEntry("fp-1", "addr-1")))
	for i := 0; i < 3; i++ {
		_, _, _ = m.Get(ctx, "fp-1")
	}

	stats, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "memory", stats.Backend)
	assert.Equal(t, uint64(3), stats.Hits)
	assert.Equal(t, uint64(2), stats.Misses)
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, 10, stats.Capacity)
}

func TestMemory_DefaultsApplied(t *testing.T) {
	m := NewMemory(0, 0)
	stats, _ := m.Stats(context.Background())
	assert.Equal(t, DefaultCapacity, stats.Capacity)
}
