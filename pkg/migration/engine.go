package migration

import (
	"github.com/google/uuid"

	"github.com/menchan-Rub/AetherOS-sub000/internal/capability"
	"github.com/menchan-Rub/AetherOS-sub000/internal/config"
	"github.com/menchan-Rub/AetherOS-sub000/internal/obsmetrics"
	"github.com/menchan-Rub/AetherOS-sub000/pkg/kerrors"
	"github.com/menchan-Rub/AetherOS-sub000/pkg/tier"
	"github.com/menchan-Rub/AetherOS-sub000/pkg/tracker"
)

// Engine owns the single `migrate` operation, executed step by step,
// including its rollback-on-failure discipline.
type Engine struct {
	pageSize   uint64
	classifier *tier.Classifier
	allocator  *tier.Allocator
	tracker    *tracker.Tracker
	mem        capability.PageMemory
	mapper     capability.Mapper
	clock      capability.Clock
	log        capability.Logger
	events     *eventRing
}

// NewEngine wires the Migration Engine's collaborators: it calls the
// Mapper and Tier Allocator, copies bytes, and updates the tracker.
func NewEngine(cfg config.Config, classifier *tier.Classifier, allocator *tier.Allocator, trk *tracker.Tracker, mem capability.PageMemory, mapper capability.Mapper, clock capability.Clock, log capability.Logger) *Engine {
	if clock == nil {
		clock = capability.SystemClock{}
	}
	if log == nil {
		log = capability.NoopLogger{}
	}
	pageSize := cfg.PageSizeBytes
	if pageSize == 0 {
		pageSize = 4096
	}
	return &Engine{
		pageSize:   pageSize,
		classifier: classifier,
		allocator:  allocator,
		tracker:    trk,
		mem:        mem,
		mapper:     mapper,
		clock:      clock,
		log:        log,
		events:     newEventRing(cfg.MigrationEventRingSize),
	}
}

// Events returns a snapshot of the bounded MigrationEvent ring, in
// chronological order.
func (e *Engine) Events() []Event {
	return e.events.Events()
}

func roundToPage(addr, size, pageSize uint64) (base uint64, length uint64) {
	base = addr - (addr % pageSize)
	end := addr + size
	if rem := end % pageSize; rem != 0 {
		end += pageSize - rem
	}
	return base, end - base
}

// Migrate moves the page(s) overlapping [srcPhys, srcPhys+size) to
// dstTier. virt is the virtual address to repoint via Mapper; pass 0
// when the caller has no known virtual mapping for this range, in which
// case the remap step is skipped.
func (e *Engine) Migrate(virt, srcPhys, size uint64, dstTier tier.Tier, reason Reason) (Event, error) {
	return e.migrate(virt, srcPhys, size, dstTier, reason, true)
}

// MigrateFault relocates a page exactly like Migrate, except it never
// returns the source region to the Tier Allocator's free list. Used by
// the Tier Health Monitor after a MultiBit-or-worse ECC event, so the
// faulty physical range is permanently excluded from future
// allocations.
func (e *Engine) MigrateFault(virt, srcPhys, size uint64, dstTier tier.Tier) (Event, error) {
	return e.migrate(virt, srcPhys, size, dstTier, ReasonHealth, false)
}

func (e *Engine) migrate(virt, srcPhys, size uint64, dstTier tier.Tier, reason Reason, freeSource bool) (Event, error) {
	base, length := roundToPage(srcPhys, size, e.pageSize) // step 1

	srcTier := e.classifier.TierOf(base)

	dst, _, ok := e.allocator.AllocatePageWithFallback(dstTier, length/e.pageSize, false) // step 2
	if !ok {
		ev := e.recordFailure(base, 0, length, srcTier, dstTier, reason, "tier pressure: no free pages in destination tier")
		return ev, kerrors.New("migration.migrate", kerrors.OutOfSpace, "destination tier has no free pages")
	}

	if err := e.copyPage(base, dst, length, srcTier, dstTier); err != nil { // step 3
		_ = e.allocator.Free(dst, length, dstTier)
		ev := e.recordFailure(base, dst, length, srcTier, dstTier, reason, err.Error())
		return ev, kerrors.Wrap("migration.migrate", kerrors.IoError, err)
	}

	if virt != 0 {
		if err := e.mapper.Remap(virt, dst, length); err != nil { // step 4
			_ = e.allocator.Free(dst, length, dstTier)
			ev := e.recordFailure(base, dst, length, srcTier, dstTier, reason, err.Error())
			return ev, kerrors.Wrap("migration.migrate", kerrors.DeviceError, err)
		}
	}

	if e.tracker != nil {
		e.tracker.Relocate(base, dst, string(dstTier)) // step 5
	}

	if freeSource { // step 6
		if err := e.allocator.Free(base, length, srcTier); err != nil {
			e.log.Warn("migration: failed to free source region after successful move", "src", base, "err", err)
		}
	} else {
		// Fault relocation: quarantine the source span instead of
		// returning it to the free list, so the allocator can never
		// hand the faulty range out again.
		if err := e.allocator.Reserve(base, length, srcTier); err != nil {
			e.log.Warn("migration: failed to quarantine faulty source region", "src", base, "err", err)
		}
	}

	ev := Event{
		ID:          uuid.New(),
		TimestampNs: e.clock.NowNanos(),
		Src:         base,
		Dst:         dst,
		Size:        length,
		SrcTier:     srcTier,
		DstTier:     dstTier,
		Reason:      reason,
		Success:     true,
	}
	e.events.push(ev) // step 7
	obsmetrics.MigrationsTotal.WithLabelValues(string(dstTier), "success").Inc()
	return ev, nil
}

func (e *Engine) recordFailure(src, dst, size uint64, srcTier, dstTier tier.Tier, reason Reason, msg string) Event {
	ev := Event{
		ID:          uuid.New(),
		TimestampNs: e.clock.NowNanos(),
		Src:         src,
		Dst:         dst,
		Size:        size,
		SrcTier:     srcTier,
		DstTier:     dstTier,
		Reason:      reason,
		Success:     false,
		Err:         msg,
	}
	e.events.push(ev)
	obsmetrics.MigrationsTotal.WithLabelValues(string(dstTier), "error").Inc()
	return ev
}

// copyPage moves a page's bytes using the copy strategy appropriate to
// the tiers involved. A plain single read+write suffices for DRAM-class
// tiers; HBM involvement on either side uses a chunked copy so a single
// oversized read/write never holds up the narrower of the two paths.
func (e *Engine) copyPage(src, dst, size uint64, srcTier, dstTier tier.Tier) error {
	if srcTier == tier.HBM || dstTier == tier.HBM {
		return e.chunkedCopy(src, dst, size)
	}
	buf, err := e.mem.ReadPage(src, size)
	if err != nil {
		return err
	}
	return e.mem.WritePage(dst, buf)
}

// hbmCopyChunk is the chunk size used when HBM is on either side of a
// migration, small enough to keep a single copy call from monopolizing
// an HBM channel other cores may be reading from concurrently.
const hbmCopyChunk = 64 * 1024

func (e *Engine) chunkedCopy(src, dst, size uint64) error {
	for off := uint64(0); off < size; off += hbmCopyChunk {
		n := uint64(hbmCopyChunk)
		if off+n > size {
			n = size - off
		}
		buf, err := e.mem.ReadPage(src+off, n)
		if err != nil {
			return err
		}
		if err := e.mem.WritePage(dst+off, buf); err != nil {
			return err
		}
	}
	return nil
}
