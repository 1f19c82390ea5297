package migration

import (
	"context"
	"sort"
	"time"

	"github.com/menchan-Rub/AetherOS-sub000/internal/capability"
	"github.com/menchan-Rub/AetherOS-sub000/internal/config"
	"github.com/menchan-Rub/AetherOS-sub000/internal/obsmetrics"
	"github.com/menchan-Rub/AetherOS-sub000/pkg/tier"
	"github.com/menchan-Rub/AetherOS-sub000/pkg/tracker"
)

// Ticker runs the periodic Migration Policy evaluation: every
// PolicyTickInterval, re-score every tracked page whose last migration
// is older than PolicyMigrationCooldown, and enqueue a migration for
// each one whose optimal tier differs from its current tier, in
// descending importance order, capped at MaxMigrationsPerTick.
type Ticker struct {
	cfg     config.Config
	policy  *Policy
	tracker *tracker.Tracker
	engine  *Engine
	alloc   *tier.Allocator
}

// NewTicker wires one policy evaluation cycle's collaborators.
func NewTicker(cfg config.Config, policy *Policy, trk *tracker.Tracker, engine *Engine, alloc *tier.Allocator) *Ticker {
	return &Ticker{cfg: cfg, policy: policy, tracker: trk, engine: engine, alloc: alloc}
}

// candidate is a tracked page that may need migrating this cycle.
type candidate struct {
	page    tracker.TrackedPage
	optimal tier.Tier
	current tier.Tier
}

// Start registers the periodic policy evaluation with sched, reading
// the active profile through profile on every firing. The returned
// cancel stops the task.
func (tk *Ticker) Start(ctx context.Context, sched capability.Scheduler, clock capability.Clock, profile func() Profile) (cancel func()) {
	if clock == nil {
		clock = capability.SystemClock{}
	}
	interval := tk.cfg.PolicyTickInterval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return sched.RegisterPeriodic(ctx, "migration-policy-tick", interval, func(context.Context) {
		tk.Run(clock.NowNanos(), profile())
	})
}

// Run executes one tick, returning the migration events it produced.
// nowNs is passed in rather than read from a clock so callers control
// exactly what "cooldown elapsed" and "never migrated" mean in tests.
func (tk *Ticker) Run(nowNs int64, profile Profile) []Event {
	for _, t := range tier.Order {
		obsmetrics.TierPressure.WithLabelValues(string(t)).Set(tk.alloc.PressureRatio(t))
	}

	pages := tk.tracker.All()
	candidates := make([]candidate, 0, len(pages))

	for _, pg := range pages {
		if pg.LastMigratedNs != 0 && nowNs-pg.LastMigratedNs < tk.cfg.PolicyMigrationCooldown.Nanoseconds() {
			continue
		}
		current := tier.Tier(pg.CurrentTier)
		if current == "" {
			continue // never migrated and no known tier: nothing to compare against
		}
		optimal := tk.policy.OptimalTier(Counters{
			AccessCount: pg.AccessCount,
			WriteCount:  pg.WriteCount,
			Pattern:     pg.Pattern,
			Importance:  pg.Importance,
		}, current, pg.Size, tk.alloc.PressureRatio, profile)
		if optimal == current {
			continue
		}
		candidates = append(candidates, candidate{page: pg, optimal: optimal, current: current})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].page.Importance > candidates[j].page.Importance
	})

	limit := tk.cfg.MaxMigrationsPerTick
	if limit <= 0 || limit > len(candidates) {
		limit = len(candidates)
	}

	events := make([]Event, 0, limit)
	for _, c := range candidates[:limit] {
		ev, _ := tk.engine.Migrate(0, c.page.PhysAddr, c.page.Size, c.optimal, ReasonPolicy)
		events = append(events, ev)
	}
	return events
}
