package health

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/menchan-Rub/AetherOS-sub000/internal/capability"
	"github.com/menchan-Rub/AetherOS-sub000/internal/config"
	"github.com/menchan-Rub/AetherOS-sub000/pkg/migration"
	"github.com/menchan-Rub/AetherOS-sub000/pkg/tier"
	"github.com/menchan-Rub/AetherOS-sub000/pkg/tracker"
)

const testPageSize = 4096

func newTestMonitor(t *testing.T) (*Monitor, *tier.Allocator) {
	t.Helper()
	cfg := config.Default()
	cfg.PageSizeBytes = testPageSize

	ranges := []tier.Range{
		{Start: 0, End: 0x10000, Tier: tier.PMEM},
	}
	classifier := tier.NewClassifier(ranges, nil)
	alloc := tier.NewAllocator(testPageSize, map[tier.Tier]tier.Region{
		tier.PMEM: {Base: 0, Pages: 0x10000 / testPageSize},
	})
	trk := tracker.New(testPageSize, nil)
	mem := capability.NewMemPageMemory()
	mapper := &capability.IdentityMapper{}
	eng := migration.NewEngine(cfg, classifier, alloc, trk, mem, mapper, nil, nil)

	return New(cfg, eng, nil), alloc
}

func TestHandleECC_SingleBit_OnlyIncrementsCounter(t *testing.T) {
	mon, _ := newTestMonitor(t)
	err := mon.HandleECC(tier.PMEM, testPageSize, capability.EccEvent{PhysAddr: 0x1000, Kind: capability.EccSingleBit})
	require.NoError(t, err)
	snap := mon.Snapshot(tier.PMEM)
	require.Equal(t, uint64(1), snap.SingleBitErrs)
	require.Empty(t, snap.FaultyRegions)
	require.False(t, mon.IsFaulty(tier.PMEM, 0x1000))
}

func TestHandleECC_MultiBit_MarksFaultyAndRelocates(t *testing.T) {
	mon, alloc := newTestMonitor(t)
	err := mon.HandleECC(tier.PMEM, testPageSize, capability.EccEvent{PhysAddr: 0x2000, Kind: capability.EccMultiBit})
	require.NoError(t, err)

	require.True(t, mon.IsFaulty(tier.PMEM, 0x2000))
	snap := mon.Snapshot(tier.PMEM)
	require.Equal(t, uint64(1), snap.MultiBitErrs)
	require.Len(t, snap.FaultyRegions, 1)

	// The faulty page must never be handed back out by the allocator.
	seen := map[uint64]bool{}
	for i := 0; i < int(0x10000/testPageSize)-1; i++ {
		addr, ok := alloc.AllocatePage(tier.PMEM)
		if !ok {
			break
		}
		require.NotEqual(t, uint64(0x2000), addr)
		seen[addr] = true
	}
}

func TestStatus_Thresholds(t *testing.T) {
	mon, _ := newTestMonitor(t)
	require.Equal(t, Healthy, mon.Status(tier.PMEM))

	for i := 0; i < 11; i++ {
		_ = mon.HandleECC(tier.PMEM, testPageSize, capability.EccEvent{PhysAddr: uint64(0x3000 + i*testPageSize), Kind: capability.EccMultiBit})
	}
	require.Equal(t, Critical, mon.Status(tier.PMEM))
}

func TestStatus_WearOverrideForcesCritical(t *testing.T) {
	mon, _ := newTestMonitor(t)
	dev := capability.NewMemTierDevice(0, 0x10000, "PMEM")
	dev.SetVoltageDeviation(20) // wear = 20/20 = 1.0 >= 0.80 threshold
	mon.SampleTelemetry(tier.PMEM, dev)
	require.Equal(t, Critical, mon.Status(tier.PMEM))
}
