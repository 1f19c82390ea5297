package tier

import (
	"sort"
	"sync/atomic"

	"github.com/menchan-Rub/AetherOS-sub000/internal/capability"
)

// Tier names the memory tiers named throughout the policy table.
type Tier string

const (
	FastDRAM     Tier = "FastDRAM"
	HBM          Tier = "HBM"
	StandardDRAM Tier = "StandardDRAM"
	PMEM         Tier = "PMEM"
	ExtendedCXL  Tier = "ExtendedCXL"
	Remote       Tier = "Remote"
	Storage      Tier = "Storage"
)

// Order is the canonical tier enumeration order multi-tier operations
// must acquire locks in, to avoid deadlocks; it also doubles as the
// allocator's fallback walk and the health monitor's "next tier"
// relocation target, both ordered fastest-to-slowest. Remote and
// Storage are reachable only through the Tier Classifier's boot-built
// range table and explicit force_migrate calls: the Migration Policy's
// decision table never names them as an automatic target, so a tracked
// page only ends up there if firmware maps physical ranges into them or
// an operator forces it.
var Order = []Tier{FastDRAM, HBM, StandardDRAM, PMEM, ExtendedCXL, Remote, Storage}

// Range is one entry of the boot-time sorted range table,
// built from firmware memory-map entries (E820/SRAT/HMAT-equivalent).
type Range struct {
	Start uint64
	End   uint64 // exclusive
	Tier  Tier
}

// Classifier resolves a physical address to its memory tier via binary
// search over an immutable, boot-built sorted range table.
type Classifier struct {
	ranges []Range // sorted by Start
	log    capability.Logger
	warned atomic.Bool
}

// NewClassifier builds the range table from firmware-reported ranges,
// sorting by start address.
func NewClassifier(ranges []Range, log capability.Logger) *Classifier {
	if log == nil {
		log = capability.NoopLogger{}
	}
	sorted := append([]Range(nil), ranges...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })
	return &Classifier{ranges: sorted, log: log}
}

// TierOf resolves a physical address's tier by binary search. Unmapped
// addresses default to StandardDRAM with a one-shot warning.
func (c *Classifier) TierOf(addr uint64) Tier {
	i := sort.Search(len(c.ranges), func(i int) bool { return c.ranges[i].End > addr })
	if i < len(c.ranges) && c.ranges[i].Start <= addr && addr < c.ranges[i].End {
		return c.ranges[i].Tier
	}
	if c.warned.CompareAndSwap(false, true) {
		c.log.Warn("address outside known tier ranges, defaulting to StandardDRAM", "addr", addr)
	}
	return StandardDRAM
}

// Tiers enumerates the tiers present in the range table, in canonical
// Order.
func (c *Classifier) Tiers() []Tier {
	present := make(map[Tier]bool)
	for _, r := range c.ranges {
		present[r.Tier] = true
	}
	var out []Tier
	for _, t := range Order {
		if present[t] {
			out = append(out, t)
		}
	}
	return out
}

// Capacity sums the byte span of every range tagged with tier.
func (c *Classifier) Capacity(t Tier) uint64 {
	var total uint64
	for _, r := range c.ranges {
		if r.Tier == t {
			total += r.End - r.Start
		}
	}
	return total
}
