package tier

import "sort"

// sizeClassBoundaries builds the linear-then-geometric size-class table
// in page counts: a run of linear classes for small sizes, then
// geometric doubling out to the largest class, so neither tiny nor huge
// allocations waste an unreasonable number of classes.
func sizeClassBoundaries(maxPages uint64) []uint64 {
	var b []uint64
	for i := uint64(1); i <= 16 && i <= maxPages; i++ {
		b = append(b, i)
	}
	for c := uint64(32); c <= maxPages; c *= 2 {
		b = append(b, c)
	}
	if len(b) == 0 || b[len(b)-1] < maxPages {
		b = append(b, maxPages)
	}
	return b
}

// classFloor returns the index of the largest boundary <= pages, or -1
// if pages is smaller than every boundary (shouldn't happen since the
// smallest boundary is 1).
func classFloor(boundaries []uint64, pages uint64) int {
	i := sort.Search(len(boundaries), func(i int) bool { return boundaries[i] > pages })
	return i - 1
}

// classCeil returns the index of the smallest boundary >= pages, or
// len(boundaries) if pages exceeds every boundary (overflow class).
func classCeil(boundaries []uint64, pages uint64) int {
	return sort.Search(len(boundaries), func(i int) bool { return boundaries[i] >= pages })
}
