package health

import (
	"context"
	"sync"
	"time"

	"github.com/menchan-Rub/AetherOS-sub000/internal/capability"
	"github.com/menchan-Rub/AetherOS-sub000/internal/config"
	"github.com/menchan-Rub/AetherOS-sub000/internal/obsmetrics"
	"github.com/menchan-Rub/AetherOS-sub000/pkg/migration"
	"github.com/menchan-Rub/AetherOS-sub000/pkg/tier"
)

// Status is a tier device's aggregated health.
type Status string

const (
	Healthy  Status = "Healthy"
	Warning  Status = "Warning"
	Critical Status = "Critical"
	Failed   Status = "Failed"
)

// FaultKey decodes a physical address into DRAM-style coordinates:
// (channel, bank, row, col). Real kernel glue decodes these from the
// memory controller's interleave configuration; this module's decode is
// a fixed bit-splitting scheme good enough to key a faulty-region set,
// with the real interleave math left out of scope along with the rest
// of hardware driver code.
type FaultKey struct {
	Channel uint32
	Bank    uint32
	Row     uint32
	Col     uint32
}

func decodeAddress(addr uint64) FaultKey {
	return FaultKey{
		Channel: uint32(addr & 0x7),
		Bank:    uint32((addr >> 3) & 0xF),
		Row:     uint32((addr >> 7) & 0xFFFF),
		Col:     uint32((addr >> 23) & 0x3FF),
	}
}

// DeviceHealth is the per-tier-device error and telemetry accounting.
type DeviceHealth struct {
	SingleBitErrs     uint64
	MultiBitErrs      uint64
	OtherErrs         uint64
	FaultyRegions     map[FaultKey]struct{}
	LastTempC         float32
	LastVoltageDevPct float32
	WearLevel         float64 // fraction of rated endurance consumed; PMEM only
	Status            Status
}

type deviceState struct {
	mu          sync.Mutex
	health      DeviceHealth
	faultyPages map[uint64]FaultKey // page-aligned phys addr -> decoded key
}

// Monitor accumulates per-tier-device ECC and telemetry accounting and
// drives fault isolation.
type Monitor struct {
	cfg    config.Config
	engine *migration.Engine
	log    capability.Logger

	mu      sync.RWMutex
	devices map[tier.Tier]*deviceState
}

// New builds a Monitor. engine may be nil if the caller only wants
// accounting without automatic relocation (e.g. in tests).
func New(cfg config.Config, engine *migration.Engine, log capability.Logger) *Monitor {
	if log == nil {
		log = capability.NoopLogger{}
	}
	return &Monitor{cfg: cfg, engine: engine, log: log, devices: make(map[tier.Tier]*deviceState)}
}

func (m *Monitor) stateFor(t tier.Tier) *deviceState {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.devices[t]
	if !ok {
		st = &deviceState{
			health:      DeviceHealth{FaultyRegions: make(map[FaultKey]struct{}), Status: Healthy},
			faultyPages: make(map[uint64]FaultKey),
		}
		m.devices[t] = st
	}
	return st
}

// HandleECC processes one hardware ECC callback: SingleBit
// only bumps a counter; MultiBit and worse decode the faulting address,
// add it to the faulty set, and ask the Migration Engine to relocate
// the containing page. pageSize rounds addr down to the page the
// faulting byte belongs to, matching Migration Engine's own rounding.
func (m *Monitor) HandleECC(t tier.Tier, pageSize uint64, ev capability.EccEvent) error {
	st := m.stateFor(t)
	st.mu.Lock()

	switch ev.Kind {
	case capability.EccSingleBit:
		st.health.SingleBitErrs++
		st.mu.Unlock()
		obsmetrics.ECCEvents.WithLabelValues(string(t), "single_bit").Inc()
		m.recomputeStatus(t)
		return nil
	case capability.EccMultiBit:
		st.health.MultiBitErrs++
	default:
		st.health.OtherErrs++
	}

	key := decodeAddress(ev.PhysAddr)
	st.health.FaultyRegions[key] = struct{}{}
	pageBase := ev.PhysAddr - (ev.PhysAddr % pageSize)
	st.faultyPages[pageBase] = key
	st.mu.Unlock()

	kindLabel := "multi_bit"
	if ev.Kind != capability.EccMultiBit {
		kindLabel = "other"
	}
	obsmetrics.ECCEvents.WithLabelValues(string(t), kindLabel).Inc()
	m.recomputeStatus(t)

	if m.engine != nil {
		// Relocate to another healthy region of the same tier first,
		// falling back to the next tier down. MigrateFault never
		// returns the faulty page to the free list.
		if _, err := m.engine.MigrateFault(0, pageBase, pageSize, t); err != nil {
			next := nextTier(t)
			if next == "" {
				return err
			}
			if _, err2 := m.engine.MigrateFault(0, pageBase, pageSize, next); err2 != nil {
				return err2
			}
		}
	}
	return nil
}

func nextTier(t tier.Tier) tier.Tier {
	for i, v := range tier.Order {
		if v == t && i+1 < len(tier.Order) {
			return tier.Order[i+1]
		}
	}
	return ""
}

// IsFaulty reports whether pageAddr (already page-aligned) has been
// marked faulty on tier t. The allocator never hands out pages flagged
// faulty here.
func (m *Monitor) IsFaulty(t tier.Tier, pageAddr uint64) bool {
	st := m.stateFor(t)
	st.mu.Lock()
	defer st.mu.Unlock()
	_, ok := st.faultyPages[pageAddr]
	return ok
}

// SampleTelemetry pulls temperature/voltage (and, for PMEM, a wear
// estimate) from dev and recomputes the aggregated status.
func (m *Monitor) SampleTelemetry(t tier.Tier, dev capability.TierDevice) {
	st := m.stateFor(t)
	st.mu.Lock()
	if c, ok := dev.TemperatureC(); ok {
		st.health.LastTempC = c
	}
	if v, ok := dev.VoltageDeviationPct(); ok {
		st.health.LastVoltageDevPct = v
	}
	if t == tier.PMEM {
		// A device reporting higher voltage deviation is
		// assumed to be further into its endurance budget; this is a
		// simple monotonic proxy, not a real wear-leveling readout.
		// TierDevice exposes no dedicated wear counter, so the monitor
		// derives one from what it does expose.
		wear := float64(st.health.LastVoltageDevPct) / 20
		if wear > st.health.WearLevel {
			st.health.WearLevel = wear
		}
	}
	st.mu.Unlock()
	m.recomputeStatus(t)
}

// Scrub walks dev's address space in ScrubChunkBytes strides, reading
// each region's ECC status to provoke hardware-corrected errors through
// the same callback path HandleECC uses.
func (m *Monitor) Scrub(t tier.Tier, dev capability.TierDevice, pageSize uint64) error {
	chunk := m.cfg.ScrubChunkBytes
	if chunk == 0 {
		chunk = 1 << 20
	}
	base := dev.BaseAddress()
	end := base + dev.Size()
	for addr := base; addr < end; addr += chunk {
		if ev, ok := dev.ReadECCStatus(addr); ok {
			if err := m.HandleECC(t, pageSize, ev); err != nil {
				m.log.Warn("health: scrub-triggered relocation failed", "tier", t, "addr", addr, "err", err)
			}
		}
	}
	return nil
}

// StartScrubbing registers a periodic Scrub sweep for each device with
// sched, one task per tier so a slow device never delays the others.
// The returned cancel stops every registered sweep.
func (m *Monitor) StartScrubbing(ctx context.Context, sched capability.Scheduler, devices map[tier.Tier]capability.TierDevice, pageSize uint64) (cancel func()) {
	interval := m.cfg.ScrubInterval
	if interval <= 0 {
		interval = time.Hour
	}
	cancels := make([]func(), 0, len(devices))
	for t, dev := range devices {
		t, dev := t, dev
		cancels = append(cancels, sched.RegisterPeriodic(ctx, "tier-scrub-"+string(t), interval, func(context.Context) {
			_ = m.Scrub(t, dev, pageSize)
		}))
	}
	return func() {
		for _, c := range cancels {
			c()
		}
	}
}

// Status returns tier t's current aggregated status.
func (m *Monitor) Status(t tier.Tier) Status {
	st := m.stateFor(t)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.health.Status
}

// Snapshot returns a copy of tier t's DeviceHealth.
func (m *Monitor) Snapshot(t tier.Tier) DeviceHealth {
	st := m.stateFor(t)
	st.mu.Lock()
	defer st.mu.Unlock()
	h := st.health
	h.FaultyRegions = make(map[FaultKey]struct{}, len(st.health.FaultyRegions))
	for k := range st.health.FaultyRegions {
		h.FaultyRegions[k] = struct{}{}
	}
	return h
}

// recomputeStatus applies the severity threshold table, with a wear
// override layered on top: wear beyond PMemWearCriticalThreshold forces
// Critical regardless of the other thresholds.
func (m *Monitor) recomputeStatus(t tier.Tier) {
	st := m.stateFor(t)
	st.mu.Lock()
	defer st.mu.Unlock()

	h := &st.health
	switch {
	case t == tier.PMEM && h.WearLevel >= m.cfg.PMemWearCriticalThreshold:
		h.Status = Critical
	case h.LastTempC > 95 || h.LastVoltageDevPct > 10 || h.MultiBitErrs > 10:
		h.Status = Critical
	case h.LastTempC > 85 || h.LastVoltageDevPct > 5 || h.MultiBitErrs > 0 || h.SingleBitErrs > 1000:
		h.Status = Warning
	default:
		h.Status = Healthy
	}
}
