// Package tier implements the tier classifier and the tier allocator.
//
// The classifier builds an immutable sorted range table at boot and
// resolves a physical address to its tier by binary search. The
// allocator keeps per-tier segregated free lists of page runs: a
// linear-then-geometric size-class boundary table feeding per-class
// min-heaps, so an allocation takes the smallest free run that still
// fits.
package tier
