package cache

import (
	"sync"
	"sync/atomic"

	"github.com/menchan-Rub/AetherOS-sub000/internal/capability"
	"github.com/menchan-Rub/AetherOS-sub000/internal/obsmetrics"
	"github.com/menchan-Rub/AetherOS-sub000/pkg/kerrors"
)

// Status is an entry's dirty/clean state.
type Status int

const (
	Clean Status = iota
	Dirty
)

// WriteBack persists a dirty entry's payload to its backing store. Block
// and inode caches each supply their own: a block cache writes straight
// through a capability.BlockDevice, an inode cache first resolves the
// owning block via capability.FilesystemDriver.InodeBlockLocation.
type WriteBack[K comparable] func(key K, payload []byte) error

// entry is one cache-resident record. The doubly-linked prev/next
// pointers form an intrusive LRU list threaded through the entries
// themselves, so moving an entry to the front allocates nothing.
type entry[K comparable] struct {
	key     K
	status  Status
	payload []byte

	refCount     atomic.Int32
	lastAccessNs atomic.Int64

	payloadMu sync.RWMutex // guards payload+status together
	prev      *entry[K]
	next      *entry[K]
}

// Stats is a point-in-time snapshot for the Hint/Tuning API and metrics.
type Stats struct {
	Entries      int
	DirtyEntries int
	Capacity     int
	Hits         uint64
	Misses       uint64
}

// Keyed is the generic dirty cache: a single RWMutex protecting the
// map and LRU list, with a per-entry RWMutex guarding payload bytes.
// Lock order is always map, then entry, which keeps eviction and
// in-place mutation from deadlocking each other.
type Keyed[K comparable] struct {
	name      string
	capacity  int
	clock     capability.Clock
	log       capability.Logger
	writeBack WriteBack[K]

	mu         sync.RWMutex
	items      map[K]*entry[K]
	head, tail entry[K] // sentinel nodes; head.next is most-recently-used

	hits, misses atomic.Uint64
}

// New builds a Keyed cache of the given capacity (an entry count, not
// bytes). writeBack is invoked for dirty entries on flush and on
// eviction of a dirty entry.
func New[K comparable](name string, capacity int, clock capability.Clock, log capability.Logger, writeBack WriteBack[K]) *Keyed[K] {
	if clock == nil {
		clock = capability.SystemClock{}
	}
	if log == nil {
		log = capability.NoopLogger{}
	}
	c := &Keyed[K]{
		name:      name,
		capacity:  capacity,
		clock:     clock,
		log:       log,
		writeBack: writeBack,
		items:     make(map[K]*entry[K], capacity),
	}
	c.head.next = &c.tail
	c.tail.prev = &c.head
	return c
}

// Handle is the caller's reference to a live cache entry, returned by Get
// and InsertOrUpdate. The holder must call Release exactly once. While a
// Handle is outstanding its entry can never be evicted.
type Handle[K comparable] struct {
	c *Keyed[K]
	e *entry[K]
}

// Payload returns the entry's current bytes. The slice is owned by the
// cache; callers that want to mutate must call Mutate instead.
func (h Handle[K]) Payload() []byte {
	h.e.payloadMu.RLock()
	defer h.e.payloadMu.RUnlock()
	out := make([]byte, len(h.e.payload))
	copy(out, h.e.payload)
	return out
}

// Mutate atomically replaces the payload and marks the entry dirty,
// bumping the entry's last-access time.
func (h Handle[K]) Mutate(payload []byte) {
	h.e.payloadMu.Lock()
	wasDirty := h.e.status == Dirty
	h.e.payload = payload
	h.e.status = Dirty
	h.e.payloadMu.Unlock()
	if !wasDirty {
		obsmetrics.CacheDirtyEntries.WithLabelValues(h.c.name).Inc()
	}
	h.e.lastAccessNs.Store(h.c.clock.NowNanos())
}

// Release decrements the handle's reference count. Once it reaches zero
// the entry becomes eligible for eviction, but is not evicted eagerly.
func (h Handle[K]) Release() {
	h.c.release(h.e)
}

func (h Handle[K]) Key() K { return h.e.key }

// Get returns a Handle for key if present, incrementing its reference
// count and moving it to the front of the LRU list.
func (c *Keyed[K]) Get(key K) (Handle[K], bool) {
	c.mu.Lock()
	e, ok := c.items[key]
	if !ok {
		c.mu.Unlock()
		c.misses.Add(1)
		obsmetrics.CacheMisses.WithLabelValues(c.name).Inc()
		return Handle[K]{}, false
	}
	e.refCount.Add(1)
	e.lastAccessNs.Store(c.clock.NowNanos())
	c.moveToFront(e)
	c.mu.Unlock()
	c.hits.Add(1)
	obsmetrics.CacheHits.WithLabelValues(c.name).Inc()
	return Handle[K]{c: c, e: e}, true
}

// InsertOrUpdate inserts a new entry, or overwrites an existing one's
// payload. A new entry is Dirty iff dirty is true; an existing entry is
// marked Dirty when dirty is true and otherwise keeps its current
// status. The returned Handle holds one reference on behalf of the
// caller.
// If the cache is at capacity and no entry is evictable, InsertOrUpdate
// returns a kerrors.CacheInconsistency error rather than growing past
// capacity.
func (c *Keyed[K]) InsertOrUpdate(key K, payload []byte, dirty bool) (Handle[K], error) {
	status := Clean
	if dirty {
		status = Dirty
	}
	c.mu.Lock()
	if e, ok := c.items[key]; ok {
		e.payloadMu.Lock()
		wasDirty := e.status == Dirty
		e.payload = payload
		if dirty {
			e.status = Dirty
		}
		e.payloadMu.Unlock()
		e.refCount.Add(1)
		e.lastAccessNs.Store(c.clock.NowNanos())
		c.moveToFront(e)
		c.mu.Unlock()
		if dirty && !wasDirty {
			obsmetrics.CacheDirtyEntries.WithLabelValues(c.name).Inc()
		}
		return Handle[K]{c: c, e: e}, nil
	}

	if len(c.items) >= c.capacity {
		failed := make(map[*entry[K]]bool)
		for len(c.items) >= c.capacity {
			if !c.evictOneLocked(failed) {
				c.mu.Unlock()
				return Handle[K]{}, kerrors.New("cache.insert_or_update", kerrors.CacheInconsistency,
					"no evictable entry and cache is at capacity")
			}
		}
	}

	e := &entry[K]{key: key, status: status, payload: payload}
	e.refCount.Store(1)
	e.lastAccessNs.Store(c.clock.NowNanos())
	c.items[key] = e
	c.pushFront(e)
	c.mu.Unlock()
	if status == Dirty {
		obsmetrics.CacheDirtyEntries.WithLabelValues(c.name).Inc()
	}
	return Handle[K]{c: c, e: e}, nil
}

func (c *Keyed[K]) release(e *entry[K]) {
	e.refCount.Add(-1)
}

// evictOneLocked scans from the tail (least recently used) for an
// entry with no outstanding handle and evicts it. A dirty victim is
// flushed first, with the map lock released across the device write;
// only a successful writeback removes the entry. A flush failure
// cancels that entry's eviction (it stays resident, still dirty, its
// payload intact) and the scan proceeds to the next candidate; failed
// remembers such entries so one scan never retries them.
//
// Caller holds c.mu for write. The lock is released and reacquired
// around the flush, so the victim is re-verified under the lock before
// removal: still in the map, still unpinned, still clean. Returns false
// when no evictable entry remains.
func (c *Keyed[K]) evictOneLocked(failed map[*entry[K]]bool) bool {
	for {
		var victim *entry[K]
		for e := c.tail.prev; e != &c.head; e = e.prev {
			if e.refCount.Load() != 0 || failed[e] {
				continue
			}
			victim = e
			break
		}
		if victim == nil {
			return false
		}

		victim.payloadMu.RLock()
		dirty := victim.status == Dirty
		victim.payloadMu.RUnlock()
		if !dirty {
			c.unlink(victim)
			delete(c.items, victim.key)
			obsmetrics.CacheEvictions.WithLabelValues(c.name, "false").Inc()
			return true
		}

		c.mu.Unlock()
		err := c.flushEntry(victim)
		c.mu.Lock()
		if err != nil {
			failed[victim] = true
			continue
		}
		// Re-verify under the lock: while it was released the entry may
		// have been evicted by another caller, pinned by a Get, or
		// re-dirtied by a Mutate.
		if c.items[victim.key] != victim || victim.refCount.Load() != 0 {
			continue
		}
		victim.payloadMu.RLock()
		clean := victim.status == Clean
		victim.payloadMu.RUnlock()
		if !clean {
			continue
		}
		c.unlink(victim)
		delete(c.items, victim.key)
		obsmetrics.CacheEvictions.WithLabelValues(c.name, "true").Inc()
		return true
	}
}

// flushEntry writes e's payload through writeBack and marks it clean.
// Called without c.mu held, so the device write never happens under the
// map lock; e's own payload lock covers the payload read and the
// status transition.
func (c *Keyed[K]) flushEntry(e *entry[K]) error {
	if c.writeBack == nil {
		return nil
	}
	e.payloadMu.RLock()
	payload := e.payload
	e.payloadMu.RUnlock()
	if err := c.writeBack(e.key, payload); err != nil {
		c.log.Error("cache writeback failed", "cache", c.name, "err", err)
		return kerrors.Wrap("cache.flush", kerrors.IoError, err)
	}
	e.payloadMu.Lock()
	e.status = Clean
	e.payloadMu.Unlock()
	obsmetrics.CacheDirtyEntries.WithLabelValues(c.name).Dec()
	return nil
}

// FlushAll writes every dirty entry's payload through writeBack. A
// failed entry does not stop the sweep; the first error is returned
// after every entry has been attempted.
func (c *Keyed[K]) FlushAll() error {
	c.mu.RLock()
	keys := make([]*entry[K], 0, len(c.items))
	for _, e := range c.items {
		keys = append(keys, e)
	}
	c.mu.RUnlock()

	var firstErr error
	for _, e := range keys {
		e.payloadMu.RLock()
		dirty := e.status == Dirty
		payload := e.payload
		e.payloadMu.RUnlock()
		if !dirty || c.writeBack == nil {
			continue
		}
		if err := c.writeBack(e.key, payload); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		e.payloadMu.Lock()
		e.status = Clean
		e.payloadMu.Unlock()
		obsmetrics.CacheDirtyEntries.WithLabelValues(c.name).Dec()
	}
	return firstErr
}

// Stats reports the cache's current size and hit/miss counters.
func (c *Keyed[K]) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	dirty := 0
	for _, e := range c.items {
		e.payloadMu.RLock()
		if e.status == Dirty {
			dirty++
		}
		e.payloadMu.RUnlock()
	}
	return Stats{
		Entries:      len(c.items),
		DirtyEntries: dirty,
		Capacity:     c.capacity,
		Hits:         c.hits.Load(),
		Misses:       c.misses.Load(),
	}
}

func (c *Keyed[K]) moveToFront(e *entry[K]) {
	c.unlink(e)
	c.pushFront(e)
}

func (c *Keyed[K]) pushFront(e *entry[K]) {
	e.next = c.head.next
	e.prev = &c.head
	c.head.next.prev = e
	c.head.next = e
}

func (c *Keyed[K]) unlink(e *entry[K]) {
	if e.prev != nil {
		e.prev.next = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	}
	e.prev, e.next = nil, nil
}
