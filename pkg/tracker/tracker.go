package tracker

import (
	"sync"
	"sync/atomic"

	"github.com/menchan-Rub/AetherOS-sub000/internal/capability"
	"github.com/menchan-Rub/AetherOS-sub000/pkg/kerrors"
)

const shardCount = 16

const burstIntervalNs = 10_000 // 10 microseconds

// TrackedPage is the read-only snapshot returned by Snapshot.
type TrackedPage struct {
	PhysAddr       uint64
	Size           uint64
	AccessCount    uint64
	WriteCount     uint64
	Importance     int32
	Pattern        Pattern
	CurrentTier    string
	LastAccessNs   int64
	LastMigratedNs int64
}

type record struct {
	physAddr uint64
	size     uint64

	accessCount atomic.Uint64
	writeCount  atomic.Uint64
	importance  atomic.Int32

	lastAccessNs   atomic.Int64
	lastMigratedNs atomic.Int64

	mu          sync.Mutex // guards ring, pattern, lastAddr, currentTier
	ring        ring
	pattern     Pattern
	lastAddr    uint64
	currentTier string
}

type shard struct {
	mu      sync.RWMutex
	records map[uint64]*record
}

// Tracker owns the tracked-page records. Access addresses are floored
// to pageSize before lookup, so both Monitor and RecordAccess key
// consistently off a region's base address.
type Tracker struct {
	pageSize uint64
	clock    capability.Clock
	shards   [shardCount]*shard
}

func New(pageSize uint64, clock capability.Clock) *Tracker {
	if clock == nil {
		clock = capability.SystemClock{}
	}
	t := &Tracker{pageSize: pageSize, clock: clock}
	for i := range t.shards {
		t.shards[i] = &shard{records: make(map[uint64]*record)}
	}
	return t
}

func (t *Tracker) pageBase(addr uint64) uint64 {
	if t.pageSize == 0 {
		return addr
	}
	return addr - (addr % t.pageSize)
}

func (t *Tracker) shardFor(base uint64) *shard {
	h := fnv1a(base)
	return t.shards[h%shardCount]
}

func fnv1a(v uint64) uint64 {
	const offset = 14695981039346656037
	const prime = 1099511628211
	h := uint64(offset)
	for i := 0; i < 8; i++ {
		h ^= (v >> (8 * i)) & 0xff
		h *= prime
	}
	return h
}

// Monitor begins tracking a region.
func (t *Tracker) Monitor(addr, size uint64, importance int) error {
	base := t.pageBase(addr)
	sh := t.shardFor(base)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	r := &record{physAddr: base, size: size, pattern: SingleAccess, lastAddr: base, currentTier: ""}
	r.importance.Store(int32(importance))
	sh.records[base] = r
	return nil
}

// Forget stops tracking a region.
func (t *Tracker) Forget(addr uint64) {
	base := t.pageBase(addr)
	sh := t.shardFor(base)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	delete(sh.records, base)
}

// RecordAccess records one access and updates the streaming pattern
// classifier.
func (t *Tracker) RecordAccess(addr uint64, isWrite bool, size uint64) error {
	base := t.pageBase(addr)
	sh := t.shardFor(base)
	sh.mu.RLock()
	r, ok := sh.records[base]
	sh.mu.RUnlock()
	if !ok {
		return kerrors.New("tracker.record_access", kerrors.NotFound, "address is not monitored")
	}

	count := r.accessCount.Add(1)
	if isWrite {
		r.writeCount.Add(1)
	}
	now := t.clock.NowNanos()
	prev := r.lastAccessNs.Swap(now)

	r.mu.Lock()
	if count > 1 {
		// No previous access to diff the very first one against.
		stride := int64(addr) - int64(r.lastAddr)
		r.ring.push(stride)
	}
	r.lastAddr = addr

	var pattern Pattern
	switch {
	case count < 5:
		pattern = SingleAccess
	case prev != 0 && now-prev > 0 && now-prev < burstIntervalNs && size > r.size/2:
		pattern = Burst
	default:
		pattern = classifyStride(&r.ring)
	}

	writeCount := r.writeCount.Load()
	if pattern == Strided {
		writeRatio := float64(writeCount) / float64(count)
		if writeRatio > 0.7 {
			pattern = WriteMostly
		} else if writeRatio < 0.3 {
			pattern = ReadMostly
		}
	}
	r.pattern = pattern
	r.mu.Unlock()
	return nil
}

// SetTier records the tracked page's current tier and stamps its
// last-migrated time; callers that place a page without migrating it
// use it (the Migration Engine uses Relocate).
func (t *Tracker) SetTier(addr uint64, tierName string) {
	base := t.pageBase(addr)
	sh := t.shardFor(base)
	sh.mu.RLock()
	r, ok := sh.records[base]
	sh.mu.RUnlock()
	if !ok {
		return
	}
	r.mu.Lock()
	r.currentTier = tierName
	r.mu.Unlock()
	r.lastMigratedNs.Store(t.clock.NowNanos())
}

// Relocate moves a tracked page's record from oldPhys to newPhys after
// a successful migration, so the tracker's phys_addr always matches the
// physical range currently backing the page. Returns false if oldPhys
// was not tracked.
func (t *Tracker) Relocate(oldPhys, newPhys uint64, tierName string) bool {
	oldBase := t.pageBase(oldPhys)
	newBase := t.pageBase(newPhys)

	oldSh := t.shardFor(oldBase)
	oldSh.mu.Lock()
	r, ok := oldSh.records[oldBase]
	if ok {
		delete(oldSh.records, oldBase)
	}
	oldSh.mu.Unlock()
	if !ok {
		return false
	}

	r.physAddr = newBase
	r.mu.Lock()
	r.currentTier = tierName
	r.mu.Unlock()
	r.lastMigratedNs.Store(t.clock.NowNanos())

	newSh := t.shardFor(newBase)
	newSh.mu.Lock()
	newSh.records[newBase] = r
	newSh.mu.Unlock()
	return true
}

// Snapshot returns the current TrackedPage for addr.
func (t *Tracker) Snapshot(addr uint64) (TrackedPage, bool) {
	base := t.pageBase(addr)
	sh := t.shardFor(base)
	sh.mu.RLock()
	r, ok := sh.records[base]
	sh.mu.RUnlock()
	if !ok {
		return TrackedPage{}, false
	}
	r.mu.Lock()
	pattern := r.pattern
	tierName := r.currentTier
	r.mu.Unlock()
	return TrackedPage{
		PhysAddr:       r.physAddr,
		Size:           r.size,
		AccessCount:    r.accessCount.Load(),
		WriteCount:     r.writeCount.Load(),
		Importance:     r.importance.Load(),
		Pattern:        pattern,
		CurrentTier:    tierName,
		LastAccessNs:   r.lastAccessNs.Load(),
		LastMigratedNs: r.lastMigratedNs.Load(),
	}, true
}

// BumpImportance adds delta to a tracked page's importance, clamped to
// [0, 100]. Used by the Hint API's HintHot.
func (t *Tracker) BumpImportance(addr uint64, delta int32) {
	base := t.pageBase(addr)
	sh := t.shardFor(base)
	sh.mu.RLock()
	r, ok := sh.records[base]
	sh.mu.RUnlock()
	if !ok {
		return
	}
	for {
		old := r.importance.Load()
		next := old + delta
		if next > 100 {
			next = 100
		}
		if next < 0 {
			next = 0
		}
		if r.importance.CompareAndSwap(old, next) {
			return
		}
	}
}

// BumpAccessCount adds delta to a tracked page's access_count without
// otherwise touching its pattern state. Used by the Hint API's HintHot
// to bump access_count by a fixed boost.
func (t *Tracker) BumpAccessCount(addr uint64, delta uint64) {
	base := t.pageBase(addr)
	sh := t.shardFor(base)
	sh.mu.RLock()
	r, ok := sh.records[base]
	sh.mu.RUnlock()
	if !ok {
		return
	}
	r.accessCount.Add(delta)
}

// BackdateLastAccess moves last_access_ns into the past. Used by the
// Hint API's HintCold.
func (t *Tracker) BackdateLastAccess(addr uint64, deltaNs int64) {
	base := t.pageBase(addr)
	sh := t.shardFor(base)
	sh.mu.RLock()
	r, ok := sh.records[base]
	sh.mu.RUnlock()
	if !ok {
		return
	}
	r.lastAccessNs.Add(-deltaNs)
}

// All returns a snapshot of every tracked page, used by the Migration
// Policy's periodic tick.
func (t *Tracker) All() []TrackedPage {
	var out []TrackedPage
	for _, sh := range t.shards {
		sh.mu.RLock()
		for _, r := range sh.records {
			r.mu.Lock()
			pattern := r.pattern
			tierName := r.currentTier
			r.mu.Unlock()
			out = append(out, TrackedPage{
				PhysAddr:       r.physAddr,
				Size:           r.size,
				AccessCount:    r.accessCount.Load(),
				WriteCount:     r.writeCount.Load(),
				Importance:     r.importance.Load(),
				Pattern:        pattern,
				CurrentTier:    tierName,
				LastAccessNs:   r.lastAccessNs.Load(),
				LastMigratedNs: r.lastMigratedNs.Load(),
			})
		}
		sh.mu.RUnlock()
	}
	return out
}
