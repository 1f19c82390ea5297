package tier_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menchan-Rub/AetherOS-sub000/pkg/tier"
)

func TestClassifierBinarySearchAndDefault(t *testing.T) {
	c := tier.NewClassifier([]tier.Range{
		{Start: 0, End: 1 << 20, Tier: tier.StandardDRAM},
		{Start: 1 << 20, End: 2 << 20, Tier: tier.HBM},
	}, nil)

	assert.Equal(t, tier.StandardDRAM, c.TierOf(100))
	assert.Equal(t, tier.HBM, c.TierOf(1<<20+42))
	assert.Equal(t, tier.StandardDRAM, c.TierOf(10<<20), "unmapped address defaults to StandardDRAM")
}

func TestAllocatorAllocateAndFree(t *testing.T) {
	const pageSize = 4096
	a := tier.NewAllocator(pageSize, map[tier.Tier]tier.Region{
		tier.StandardDRAM: {Base: 0, Pages: 100},
	})

	base1, ok := a.AllocatePage(tier.StandardDRAM)
	require.True(t, ok)
	assert.Equal(t, uint64(0), base1)

	used, total := a.Usage(tier.StandardDRAM)
	assert.Equal(t, uint64(1), used)
	assert.Equal(t, uint64(100), total)

	require.NoError(t, a.Free(base1, pageSize, tier.StandardDRAM))
	used, _ = a.Usage(tier.StandardDRAM)
	assert.Equal(t, uint64(0), used)
}

func TestAllocatorExhaustionReturnsFalse(t *testing.T) {
	const pageSize = 4096
	a := tier.NewAllocator(pageSize, map[tier.Tier]tier.Region{
		tier.HBM: {Base: 0, Pages: 2},
	})
	_, ok := a.AllocateBytes(3*pageSize, tier.HBM)
	assert.False(t, ok)
}

func TestReserveQuarantinesSpanFromFreeList(t *testing.T) {
	const pageSize = 4096
	a := tier.NewAllocator(pageSize, map[tier.Tier]tier.Region{
		tier.PMEM: {Base: 0, Pages: 8},
	})

	// Quarantine a page in the middle of the untouched free run.
	require.NoError(t, a.Reserve(2*pageSize, pageSize, tier.PMEM))

	seen := map[uint64]bool{}
	for {
		addr, ok := a.AllocatePage(tier.PMEM)
		if !ok {
			break
		}
		require.False(t, seen[addr], "allocator returned the same page twice")
		seen[addr] = true
		assert.NotEqual(t, uint64(2*pageSize), addr, "reserved page must never be allocated")
	}
	assert.Len(t, seen, 7, "every page except the reserved one should be allocatable")
}

func TestAllocatorFallbackWalksToNextSlowerTier(t *testing.T) {
	const pageSize = 4096
	a := tier.NewAllocator(pageSize, map[tier.Tier]tier.Region{
		tier.FastDRAM:     {Base: 0, Pages: 0},
		tier.HBM:          {Base: 1 << 20, Pages: 0},
		tier.StandardDRAM: {Base: 2 << 20, Pages: 10},
	})
	_, gotTier, ok := a.AllocatePageWithFallback(tier.FastDRAM, 1, true)
	require.True(t, ok)
	assert.Equal(t, tier.StandardDRAM, gotTier)

	_, _, ok = a.AllocatePageWithFallback(tier.FastDRAM, 1, false)
	assert.False(t, ok, "fallback disabled must not walk tiers")
}
