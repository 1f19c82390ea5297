package tier

import (
	"container/heap"
	"sync"

	"github.com/menchan-Rub/AetherOS-sub000/pkg/kerrors"
)

// Region describes one tier's contiguous physical address span,
// announced at boot by the tier classifier.
type Region struct {
	Base  uint64
	Pages uint64
}

// run is one free physical-page run.
type run struct {
	base  uint64
	pages uint64
}

// runHeap is a min-heap of free runs ordered by page count ascending,
// so the smallest run that still satisfies a request is chosen first.
type runHeap []run

func (h runHeap) Len() int            { return len(h) }
func (h runHeap) Less(i, j int) bool  { return h[i].pages < h[j].pages }
func (h runHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *runHeap) Push(x interface{}) { *h = append(*h, x.(run)) }
func (h *runHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

type tierState struct {
	mu         sync.Mutex
	region     Region
	boundaries []uint64
	classes    []runHeap
	usedPages  uint64
}

// Allocator hands out physical pages per tier: a per-tier segregated
// free-list of page runs, classed by the size-class boundary table.
type Allocator struct {
	pageSize uint64
	states   map[Tier]*tierState
}

// NewAllocator builds an allocator with one free-list set per region,
// each starting as a single free run spanning the whole region.
func NewAllocator(pageSize uint64, regions map[Tier]Region) *Allocator {
	a := &Allocator{pageSize: pageSize, states: make(map[Tier]*tierState, len(regions))}
	for t, r := range regions {
		boundaries := sizeClassBoundaries(r.Pages)
		st := &tierState{region: r, boundaries: boundaries, classes: make([]runHeap, len(boundaries)+1)}
		a.pushRunLocked(st, run{base: r.Base, pages: r.Pages})
		a.states[t] = st
	}
	return a
}

// AllocatePage allocates a single page from tier.
func (a *Allocator) AllocatePage(t Tier) (uint64, bool) {
	return a.allocatePages(t, 1)
}

// AllocateBytes rounds size up to whole pages and allocates from tier.
func (a *Allocator) AllocateBytes(size uint64, t Tier) (uint64, bool) {
	pages := (size + a.pageSize - 1) / a.pageSize
	if pages == 0 {
		pages = 1
	}
	return a.allocatePages(t, pages)
}

func (a *Allocator) allocatePages(t Tier, pages uint64) (uint64, bool) {
	st, ok := a.states[t]
	if !ok {
		return 0, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	idx := classCeil(st.boundaries, pages)
	for ; idx < len(st.classes); idx++ {
		if st.classes[idx].Len() == 0 {
			continue
		}
		r := heap.Pop(&st.classes[idx]).(run)
		if r.pages > pages {
			a.pushRunLocked(st, run{base: r.base + pages*a.pageSize, pages: r.pages - pages})
		}
		st.usedPages += pages
		return r.base, true
	}
	return 0, false
}

// AllocatePageWithFallback walks to the next slower tier per Order only
// if allowFallback is set, stopping at the first tier with room.
func (a *Allocator) AllocatePageWithFallback(t Tier, pages uint64, allowFallback bool) (uint64, Tier, bool) {
	if base, ok := a.allocatePages(t, pages); ok {
		return base, t, true
	}
	if !allowFallback {
		return 0, "", false
	}
	start := indexOf(Order, t)
	if start < 0 {
		return 0, "", false
	}
	for i := start + 1; i < len(Order); i++ {
		if base, ok := a.allocatePages(Order[i], pages); ok {
			return base, Order[i], true
		}
	}
	return 0, "", false
}

// Free returns a region to its tier's free list.
func (a *Allocator) Free(base, size uint64, t Tier) error {
	pages := (size + a.pageSize - 1) / a.pageSize
	if pages == 0 {
		pages = 1
	}
	st, ok := a.states[t]
	if !ok {
		return kerrors.New("tier.free", kerrors.NotFound, "unknown tier")
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	a.pushRunLocked(st, run{base: base, pages: pages})
	if st.usedPages >= pages {
		st.usedPages -= pages
	} else {
		st.usedPages = 0
	}
	return nil
}

// Reserve removes [base, base+size) from tier t's free space without
// handing it to a caller, so the span can never be allocated again.
// The Tier Health Monitor path uses this to quarantine faulty pages
// that were still sitting on the free list. Reserving a span that is
// already allocated (or already reserved) is a no-op.
func (a *Allocator) Reserve(base, size uint64, t Tier) error {
	pages := (size + a.pageSize - 1) / a.pageSize
	if pages == 0 {
		pages = 1
	}
	st, ok := a.states[t]
	if !ok {
		return kerrors.New("tier.reserve", kerrors.NotFound, "unknown tier")
	}
	end := base + pages*a.pageSize

	st.mu.Lock()
	defer st.mu.Unlock()
	for {
		ci, ri, r, found := a.findOverlapLocked(st, base, end)
		if !found {
			return nil
		}
		heap.Remove(&st.classes[ci], ri)
		runEnd := r.base + r.pages*a.pageSize
		if r.base < base {
			a.pushRunLocked(st, run{base: r.base, pages: (base - r.base) / a.pageSize})
		}
		if runEnd > end {
			a.pushRunLocked(st, run{base: end, pages: (runEnd - end) / a.pageSize})
		}
		lo, hi := r.base, runEnd
		if base > lo {
			lo = base
		}
		if end < hi {
			hi = end
		}
		st.usedPages += (hi - lo) / a.pageSize
	}
}

// findOverlapLocked locates a free run overlapping [base, end), returning
// its class index and heap index. Caller holds st.mu.
func (a *Allocator) findOverlapLocked(st *tierState, base, end uint64) (classIdx, runIdx int, r run, found bool) {
	for ci := range st.classes {
		for ri, cand := range st.classes[ci] {
			candEnd := cand.base + cand.pages*a.pageSize
			if cand.base < end && candEnd > base {
				return ci, ri, cand, true
			}
		}
	}
	return 0, 0, run{}, false
}

// pushRunLocked returns a run to its size class. Caller holds st.mu.
func (a *Allocator) pushRunLocked(st *tierState, r run) {
	if r.pages == 0 {
		return
	}
	idx := classFloor(st.boundaries, r.pages)
	if idx < 0 {
		idx = len(st.boundaries)
	}
	heap.Push(&st.classes[idx], r)
}

// Usage reports per-tier used/total page counts, read by the Migration
// Policy for pressure decisions.
func (a *Allocator) Usage(t Tier) (used, total uint64) {
	st, ok := a.states[t]
	if !ok {
		return 0, 0
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.usedPages, st.region.Pages
}

// PressureRatio returns used/total for tier, in [0, 1].
func (a *Allocator) PressureRatio(t Tier) float64 {
	used, total := a.Usage(t)
	if total == 0 {
		return 0
	}
	return float64(used) / float64(total)
}

func indexOf(order []Tier, t Tier) int {
	for i, v := range order {
		if v == t {
			return i
		}
	}
	return -1
}
