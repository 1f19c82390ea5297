package cache_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menchan-Rub/AetherOS-sub000/pkg/cache"
)

type fakeClock struct{ ns int64 }

func (c *fakeClock) NowNanos() int64 { c.ns++; return c.ns }

func newTestCache(t *testing.T, capacity int) (*cache.Keyed[string], map[string][]byte) {
	t.Helper()
	flushed := make(map[string][]byte)
	c := cache.New[string]("test", capacity, &fakeClock{}, nil, func(key string, payload []byte) error {
		flushed[key] = append([]byte(nil), payload...)
		return nil
	})
	return c, flushed
}

func TestInsertAndGet(t *testing.T) {
	c, _ := newTestCache(t, 4)
	h, err := c.InsertOrUpdate("a", []byte("hello"), false)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), h.Payload())
	h.Release()

	h2, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), h2.Payload())
	h2.Release()
}

func TestGetMissIsRecorded(t *testing.T) {
	c, _ := newTestCache(t, 4)
	_, ok := c.Get("missing")
	assert.False(t, ok)
	assert.Equal(t, uint64(1), c.Stats().Misses)
}

// TestEvictionSkipsPinnedEntry mirrors the LRU-with-pin scenario:
// get+hold K1, insert K2 and K3 (capacity 2) must evict K2 (idle), never
// K1 (pinned); after releasing K1, inserting K4 evicts K1.
func TestEvictionSkipsPinnedEntry(t *testing.T) {
	c, _ := newTestCache(t, 2)

	h1, err := c.InsertOrUpdate("k1", []byte("v1"), false)
	require.NoError(t, err)

	h2, err := c.InsertOrUpdate("k2", []byte("v2"), false)
	require.NoError(t, err)
	h2.Release()

	h3, err := c.InsertOrUpdate("k3", []byte("v3"), false)
	require.NoError(t, err)
	h3.Release()

	_, ok := c.Get("k2")
	assert.False(t, ok, "k2 should have been evicted, k1 is pinned")
	assert.Equal(t, 2, c.Stats().Entries, "k1 must survive eviction while its handle is held, beside k3")
	h1.Release()

	h4, err := c.InsertOrUpdate("k4", []byte("v4"), false)
	require.NoError(t, err)
	h4.Release()
	_, ok = c.Get("k1")
	assert.False(t, ok, "k1 should now be evictable once released")
}

func TestDirtyEvictionFlushesBeforeDrop(t *testing.T) {
	c, flushed := newTestCache(t, 1)

	h1, err := c.InsertOrUpdate("k1", []byte("dirty-payload"), true)
	require.NoError(t, err)
	h1.Release()

	h2, err := c.InsertOrUpdate("k2", []byte("v2"), false)
	require.NoError(t, err)
	h2.Release()

	assert.Equal(t, []byte("dirty-payload"), flushed["k1"])
}

func TestFlushFailureCancelsEviction(t *testing.T) {
	failing := true
	c := cache.New[string]("test", 1, &fakeClock{}, nil, func(key string, payload []byte) error {
		if failing {
			return assert.AnError
		}
		return nil
	})

	h1, err := c.InsertOrUpdate("k1", []byte("dirty"), true)
	require.NoError(t, err)
	h1.Release()

	_, err = c.InsertOrUpdate("k2", []byte("v2"), false)
	require.Error(t, err, "a dirty victim whose writeback fails must not be evicted")

	// The victim stays resident, still dirty, payload intact.
	h, ok := c.Get("k1")
	require.True(t, ok)
	assert.Equal(t, []byte("dirty"), h.Payload())
	assert.Equal(t, 1, c.Stats().DirtyEntries)
	h.Release()

	// Once the backing store recovers, the same insert evicts it.
	failing = false
	h2, err := c.InsertOrUpdate("k2", []byte("v2"), false)
	require.NoError(t, err)
	h2.Release()
	_, ok = c.Get("k1")
	assert.False(t, ok)
}

func TestFlushAllClearsDirtyFlag(t *testing.T) {
	c, flushed := newTestCache(t, 4)
	h, err := c.InsertOrUpdate("k1", []byte("v"), true)
	require.NoError(t, err)
	h.Release()

	require.NoError(t, c.FlushAll())
	assert.Equal(t, []byte("v"), flushed["k1"])
	assert.Equal(t, 0, c.Stats().DirtyEntries)
}

func TestInsertOrUpdateRejectsWhenFullAndAllPinned(t *testing.T) {
	c, _ := newTestCache(t, 1)
	h, err := c.InsertOrUpdate("k1", []byte("v"), false)
	require.NoError(t, err)
	defer h.Release()

	_, err = c.InsertOrUpdate("k2", []byte("v2"), false)
	assert.Error(t, err)
}

func TestMutateMarksDirty(t *testing.T) {
	c, _ := newTestCache(t, 4)
	h, err := c.InsertOrUpdate("k1", []byte("v"), false)
	require.NoError(t, err)
	h.Mutate([]byte("v2"))
	h.Release()

	assert.Equal(t, 1, c.Stats().DirtyEntries)
}
