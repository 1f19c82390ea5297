package hint

import (
	"sync"
	"time"

	"github.com/menchan-Rub/AetherOS-sub000/internal/capability"
	"github.com/menchan-Rub/AetherOS-sub000/pkg/kerrors"
	"github.com/menchan-Rub/AetherOS-sub000/pkg/migration"
	"github.com/menchan-Rub/AetherOS-sub000/pkg/tier"
	"github.com/menchan-Rub/AetherOS-sub000/pkg/tracker"
)

// HotImportanceBoost and HotAccessBoost are the fixed bumps HintHot
// applies to a tracked page's importance and access count.
const (
	HotImportanceBoost int32  = 25
	HotAccessBoost     uint64 = 256
)

// ColdBackdateDuration is how far into the past hint_cold moves
// last_access_ns. The Migration Policy's scoring and the tick's cooldown
// (based on last_migrated_ns) do not read last_access_ns, so the
// backdate alone does not change the next tick's tier choice.
const ColdBackdateDuration = 10 * time.Minute

// API is the hint and tuning surface over the tracker and the
// migration engine.
type API struct {
	tracker *tracker.Tracker
	engine  *migration.Engine
	log     capability.Logger

	mu              sync.RWMutex
	profile         migration.Profile
	processProfiles map[uint64]int32
}

// New builds the Hint/Tuning API over the given tracker and migration
// engine, starting in the Balanced profile.
func New(trk *tracker.Tracker, engine *migration.Engine, log capability.Logger) *API {
	if log == nil {
		log = capability.NoopLogger{}
	}
	return &API{
		tracker:         trk,
		engine:          engine,
		log:             log,
		profile:         migration.Balanced,
		processProfiles: make(map[uint64]int32),
	}
}

// HintHot boosts a region's importance and access_count by a fixed
// amount. priority clamps the resulting importance to at least
// priority, so a caller can request a specific floor rather than only a
// relative bump.
func (a *API) HintHot(addr, size uint64, priority int) error {
	if priority < 0 || priority > 100 {
		return kerrors.New("hint.hint_hot", kerrors.InvalidData, "priority must be in [0, 100]")
	}
	a.tracker.BumpImportance(addr, HotImportanceBoost)
	a.tracker.BumpAccessCount(addr, HotAccessBoost)
	if snap, ok := a.tracker.Snapshot(addr); ok && int(snap.Importance) < priority {
		a.tracker.BumpImportance(addr, int32(priority)-snap.Importance)
	}
	a.log.Info("hint: marked region hot", "addr", addr, "size", size, "priority", priority)
	return nil
}

// HintCold backdates a region's last_access_ns by ColdBackdateDuration.
func (a *API) HintCold(addr, size uint64) error {
	a.tracker.BackdateLastAccess(addr, ColdBackdateDuration.Nanoseconds())
	a.log.Info("hint: marked region cold", "addr", addr, "size", size)
	return nil
}

// ForceMigrate bypasses policy scoring and migrates addr to target
// directly, but still goes through the Migration Engine so pressure and
// rollback-on-failure behavior apply unchanged.
func (a *API) ForceMigrate(virt, addr, size uint64, target tier.Tier) (migration.Event, error) {
	return a.engine.Migrate(virt, addr, size, target, migration.ReasonForced)
}

// SetProfile changes the active Migration Policy profile.
func (a *API) SetProfile(p migration.Profile) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.profile = p
}

// Profile returns the currently active profile, read by the periodic
// Migration Policy tick.
func (a *API) Profile() migration.Profile {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.profile
}

// SetPerProcessProfile records a priority override for pid: a policy
// integration layer outside this package's scope can read it to bias
// importance for pages owned by that process.
func (a *API) SetPerProcessProfile(pid uint64, priority int32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.processProfiles[pid] = priority
}

// ProcessPriority returns the priority override for pid, if any.
func (a *API) ProcessPriority(pid uint64) (int32, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	p, ok := a.processProfiles[pid]
	return p, ok
}
