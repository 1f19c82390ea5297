package migration

import (
	"sync"

	"github.com/google/uuid"

	"github.com/menchan-Rub/AetherOS-sub000/pkg/tier"
)

// Profile biases the Migration Policy's thresholds.
type Profile string

const (
	Performance Profile = "Performance"
	Balanced    Profile = "Balanced"
	PowerSaving Profile = "PowerSaving"
)

// Reason tags why a migration was initiated, carried on MigrationEvent
// and useful for metrics/debugging.
type Reason string

const (
	ReasonPolicy Reason = "policy"
	ReasonHint   Reason = "hint"
	ReasonForced Reason = "forced"
	ReasonHealth Reason = "health"
)

// Event is a MigrationEvent, with a correlation ID so callers can
// trace one logical move across log lines and metrics.
type Event struct {
	ID          uuid.UUID
	TimestampNs int64
	Src         uint64
	Dst         uint64
	Size        uint64
	SrcTier     tier.Tier
	DstTier     tier.Tier
	Reason      Reason
	Success     bool
	Err         string
}

// eventRing is the bounded ring buffer of MigrationEvents, sized from
// internal/config.
type eventRing struct {
	mu     sync.Mutex
	buf    []Event
	cap    int
	next   int
	filled bool
}

func newEventRing(capacity int) *eventRing {
	if capacity < 1 {
		capacity = 1000
	}
	return &eventRing{buf: make([]Event, capacity), cap: capacity}
}

func (r *eventRing) push(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = ev
	r.next = (r.next + 1) % r.cap
	if r.next == 0 {
		r.filled = true
	}
}

// Events returns a copy of the ring's contents in chronological order.
func (r *eventRing) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.filled {
		out := make([]Event, r.next)
		copy(out, r.buf[:r.next])
		return out
	}
	out := make([]Event, r.cap)
	copy(out, r.buf[r.next:])
	copy(out[r.cap-r.next:], r.buf[:r.next])
	return out
}
