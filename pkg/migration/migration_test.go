package migration

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/menchan-Rub/AetherOS-sub000/internal/capability"
	"github.com/menchan-Rub/AetherOS-sub000/internal/config"
	"github.com/menchan-Rub/AetherOS-sub000/pkg/tier"
	"github.com/menchan-Rub/AetherOS-sub000/pkg/tracker"
)

const testPageSize = 4096

func newTestEngine(t *testing.T) (*Engine, *tier.Classifier, *tier.Allocator, *tracker.Tracker, *capability.IdentityMapper) {
	t.Helper()
	cfg := config.Default()
	cfg.PageSizeBytes = testPageSize

	ranges := []tier.Range{
		{Start: 0, End: 0x10000, Tier: tier.StandardDRAM},
		{Start: 0x10000, End: 0x20000, Tier: tier.HBM},
		{Start: 0x20000, End: 0x30000, Tier: tier.PMEM},
	}
	classifier := tier.NewClassifier(ranges, nil)
	alloc := tier.NewAllocator(testPageSize, map[tier.Tier]tier.Region{
		tier.StandardDRAM: {Base: 0, Pages: 0x10000 / testPageSize},
		tier.HBM:          {Base: 0x10000, Pages: 0x10000 / testPageSize},
		tier.PMEM:         {Base: 0x20000, Pages: 0x10000 / testPageSize},
	})
	trk := tracker.New(testPageSize, nil)
	mem := capability.NewMemPageMemory()
	mapper := &capability.IdentityMapper{}

	eng := NewEngine(cfg, classifier, alloc, trk, mem, mapper, nil, nil)
	return eng, classifier, alloc, trk, mapper
}

func TestMigrate_HappyPath_UpdatesTrackerAndFreesSource(t *testing.T) {
	eng, classifier, alloc, trk, mapper := newTestEngine(t)

	require.NoError(t, trk.Monitor(0x1000, testPageSize, 50))
	require.NoError(t, trk.RecordAccess(0x1000, false, testPageSize))

	ev, err := eng.Migrate(0x9000_0000, 0x1000, testPageSize, tier.HBM, ReasonHint)
	require.NoError(t, err)
	require.True(t, ev.Success)
	require.Equal(t, tier.StandardDRAM, ev.SrcTier)
	require.Equal(t, tier.HBM, ev.DstTier)

	snap, ok := trk.Snapshot(ev.Dst)
	require.True(t, ok)
	require.Equal(t, string(tier.HBM), snap.CurrentTier)
	require.Equal(t, classifier.TierOf(ev.Dst), tier.HBM)

	virt, phys, size := mapper.Last()
	require.Equal(t, uint64(0x9000_0000), virt)
	require.Equal(t, ev.Dst, phys)
	require.Equal(t, uint64(testPageSize), size)

	used, _ := alloc.Usage(tier.StandardDRAM)
	require.Equal(t, uint64(0), used)
}

func TestMigrate_CopiesPageContent(t *testing.T) {
	eng, _, _, _, _ := newTestEngine(t)
	mem := eng.mem
	require.NoError(t, mem.WritePage(0x2000, []byte{0xAB, 0xCD}))

	ev, err := eng.Migrate(0, 0x2000, testPageSize, tier.PMEM, ReasonForced)
	require.NoError(t, err)

	out, err := mem.ReadPage(ev.Dst, 2)
	require.NoError(t, err)
	require.Equal(t, []byte{0xAB, 0xCD}, out)
}

func TestMigrate_RemapFailureRollsBackDestinationAllocation(t *testing.T) {
	eng, _, alloc, _, mapper := newTestEngine(t)
	mapper.FailNext()

	before, _ := alloc.Usage(tier.HBM)
	_, err := eng.Migrate(0x1000, 0x3000, testPageSize, tier.HBM, ReasonPolicy)
	require.Error(t, err)

	after, _ := alloc.Usage(tier.HBM)
	require.Equal(t, before, after, "destination allocation must be freed on remap failure")
}

func TestMigrate_DestinationOutOfSpace(t *testing.T) {
	eng, _, alloc, _, _ := newTestEngine(t)
	// Drain the PMEM tier's free pages before attempting a migration.
	for {
		if _, ok := alloc.AllocatePage(tier.PMEM); !ok {
			break
		}
	}
	_, err := eng.Migrate(0, 0x4000, testPageSize, tier.PMEM, ReasonPolicy)
	require.Error(t, err)
}

func TestMigrate_MisalignedAddressRoundsToWholePage(t *testing.T) {
	eng, _, _, _, _ := newTestEngine(t)
	ev, err := eng.Migrate(0, 0x100, 10, tier.HBM, ReasonForced)
	require.NoError(t, err)
	require.Equal(t, uint64(0), ev.Src)
	require.Equal(t, uint64(testPageSize), ev.Size)
}

func TestPolicy_OptimalTier_Deterministic(t *testing.T) {
	cfg := config.Default()
	p := NewPolicy(cfg, nil)
	c := Counters{AccessCount: 5000, WriteCount: 4000, Pattern: tracker.Sequential, Importance: 90}
	pressure := func(tier.Tier) float64 { return 0 }

	first := p.OptimalTier(c, tier.StandardDRAM, 4096, pressure, Balanced)
	second := p.OptimalTier(c, tier.StandardDRAM, 4096, pressure, Balanced)
	require.Equal(t, first, second)
	require.Equal(t, tier.FastDRAM, first) // high score, write-heavy -> FastDRAM
}

func TestPolicy_OptimalTier_ColdLargePageGoesExtended(t *testing.T) {
	cfg := config.Default()
	p := NewPolicy(cfg, nil)
	c := Counters{AccessCount: 0, WriteCount: 0, Pattern: tracker.SingleAccess, Importance: 0}
	// PMEM pressure above the low watermark so the demotion-avoidance
	// churn guard does not suppress the move.
	pressure := func(tr tier.Tier) float64 {
		if tr == tier.PMEM {
			return 0.5
		}
		return 0
	}

	got := p.OptimalTier(c, tier.PMEM, 2<<30, pressure, Balanced)
	require.Equal(t, tier.ExtendedCXL, got)
}

func TestPolicy_PressureOverride_SkipsSaturatedDestination(t *testing.T) {
	cfg := config.Default()
	p := NewPolicy(cfg, nil)
	c := Counters{AccessCount: 5000, WriteCount: 4000, Pattern: tracker.Sequential, Importance: 90}
	pressure := func(tr tier.Tier) float64 {
		if tr == tier.FastDRAM {
			return 0.99
		}
		return 0
	}
	got := p.OptimalTier(c, tier.StandardDRAM, 4096, pressure, Balanced)
	require.NotEqual(t, tier.FastDRAM, got)
}

func TestTicker_MigratesHotPageWithinOneCycle(t *testing.T) {
	eng, _, alloc, trk, _ := newTestEngine(t)
	cfg := config.Default()
	cfg.PageSizeBytes = testPageSize

	require.NoError(t, trk.Monitor(0x1000, testPageSize, 90))
	trk.SetTier(0x1000, string(tier.StandardDRAM))
	for i := 0; i < 1000; i++ {
		require.NoError(t, trk.RecordAccess(0x1000, false, 64))
	}

	policy := NewPolicy(cfg, nil)
	ticker := NewTicker(cfg, policy, trk, eng, alloc)

	snapBefore, _ := trk.Snapshot(0x1000)
	// Run the tick with a now far past the cooldown window.
	events := ticker.Run(snapBefore.LastMigratedNs+cfg.PolicyMigrationCooldown.Nanoseconds()+1, Balanced)
	require.Len(t, events, 1)
	require.True(t, events[0].Success)

	snap, ok := trk.Snapshot(events[0].Dst)
	require.True(t, ok)
	moved := snap.CurrentTier == string(tier.HBM) || snap.CurrentTier == string(tier.FastDRAM)
	require.True(t, moved, "hot read-only page should land in HBM or FastDRAM, got %s", snap.CurrentTier)
}

func TestTicker_RespectsCooldown(t *testing.T) {
	eng, _, alloc, trk, _ := newTestEngine(t)
	cfg := config.Default()
	cfg.PageSizeBytes = testPageSize

	require.NoError(t, trk.Monitor(0x1000, testPageSize, 90))
	trk.SetTier(0x1000, string(tier.StandardDRAM))
	for i := 0; i < 1000; i++ {
		require.NoError(t, trk.RecordAccess(0x1000, false, 64))
	}

	policy := NewPolicy(cfg, nil)
	ticker := NewTicker(cfg, policy, trk, eng, alloc)

	snap, _ := trk.Snapshot(0x1000)
	// Just inside the cooldown window: nothing may move.
	events := ticker.Run(snap.LastMigratedNs+1, Balanced)
	require.Empty(t, events)
}

func TestPolicy_ChurnGuard_SkipsDemotionWhenSourceIdle(t *testing.T) {
	cfg := config.Default()
	p := NewPolicy(cfg, nil)
	c := Counters{AccessCount: 0, WriteCount: 0, Pattern: tracker.SingleAccess, Importance: 0}
	pressure := func(tier.Tier) float64 { return 0 } // source usage 0 < low watermark

	got := p.OptimalTier(c, tier.FastDRAM, 4096, pressure, Balanced)
	require.Equal(t, tier.FastDRAM, got, "demotion from an idle source tier should be skipped to avoid churn")
}
