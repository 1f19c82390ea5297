package migration

import (
	"math"

	"github.com/menchan-Rub/AetherOS-sub000/internal/capability"
	"github.com/menchan-Rub/AetherOS-sub000/internal/config"
	"github.com/menchan-Rub/AetherOS-sub000/pkg/tier"
	"github.com/menchan-Rub/AetherOS-sub000/pkg/tracker"
)

// Counters is the per-tracked-page input to the Migration Policy:
// everything it needs is read straight off tracker.TrackedPage, kept as
// a separate type so the policy never depends on the tracker's internal
// locking.
type Counters struct {
	AccessCount uint64
	WriteCount  uint64
	Pattern     tracker.Pattern
	Importance  int32
}

// PressureFunc reports a tier's current usage ratio in [0, 1]; backed
// by tier.Allocator.PressureRatio in production wiring.
type PressureFunc func(tier.Tier) float64

// patternScore maps an access pattern to its share of the combined
// score.
var patternScore = map[tracker.Pattern]float64{
	tracker.Sequential:   0.9,
	tracker.ReadMostly:   0.8,
	tracker.Strided:      0.7,
	tracker.Burst:        0.5,
	tracker.Random:       0.3,
	tracker.WriteMostly:  0.2,
	tracker.SingleAccess: 0.1,
}

// oneGiB is the size threshold the decision table uses to route very
// large, cold ranges to Extended/CXL instead of PMEM.
const oneGiB = 1 << 30

// Policy computes the optimal tier for a tracked page: a pure scoring
// function plus pressure/churn overrides layered on top. Given the same
// inputs, OptimalTier returns the same output; PressureFunc is the only
// input that can vary between calls, since it reads live allocator
// state.
type Policy struct {
	cfg       config.Config
	predictor predictorFunc
}

// predictorFunc matches capability.Predictor's shape without importing
// the capability package, so Policy stays a pure scoring type;
// AdaptPredictor wraps a real predictor into this shape.
type predictorFunc func(snapshot PredictorInput) (t tier.Tier, confidence float64)

// PredictorInput mirrors capability.TrackedPageSnapshot closely enough
// for AdaptPredictor to build one without importing tracker internals
// into capability.
type PredictorInput struct {
	PhysAddr    uint64
	AccessCount uint64
	WriteRatio  float64
	Pattern     tracker.Pattern
	Importance  int32
	CurrentTier tier.Tier
}

// NewPolicy builds a Policy with the given config; predict is an
// optional Predictor hook (nil uses no override, the default).
func NewPolicy(cfg config.Config, predict predictorFunc) *Policy {
	return &Policy{cfg: cfg, predictor: predict}
}

// AdaptPredictor wraps a capability.Predictor as the optional override
// hook OptimalTier consults last; passing capability.NoopPredictor{}
// or nil both result in no override.
func AdaptPredictor(pr capability.Predictor) predictorFunc {
	if pr == nil {
		return nil
	}
	return func(in PredictorInput) (tier.Tier, float64) {
		t, confidence := pr.Predict(capability.TrackedPageSnapshot{
			PhysAddr:    in.PhysAddr,
			AccessCount: in.AccessCount,
			WriteRatio:  in.WriteRatio,
			Pattern:     string(in.Pattern),
			Importance:  int(in.Importance),
			CurrentTier: string(in.CurrentTier),
		})
		return tier.Tier(t), confidence
	}
}

// combinedScore is the weighted page score:
// 0.4*normalized_access_freq + 0.3*pattern_score + 0.3*(importance/100).
func combinedScore(c Counters) float64 {
	freq := 1 / (1 + math.Exp(-0.01*float64(c.AccessCount)))
	pat := patternScore[c.Pattern]
	imp := float64(c.Importance) / 100
	return 0.4*freq + 0.3*pat + 0.3*imp
}

func writeRatio(c Counters) float64 {
	if c.AccessCount == 0 {
		return 0
	}
	return float64(c.WriteCount) / float64(c.AccessCount)
}

// thresholds returns the profile-adjusted (t1, t2, t3) triple around
// the base 0.8/0.5/0.3. Performance shaves 0.1 off each threshold so
// pages qualify for a faster tier sooner; PowerSaving adds 0.1;
// Balanced uses the base values.
func thresholds(profile Profile) (t1, t2, t3 float64) {
	switch profile {
	case Performance:
		return 0.7, 0.4, 0.2
	case PowerSaving:
		return 0.9, 0.6, 0.4
	default:
		return 0.8, 0.5, 0.3
	}
}

// tableTier applies the decision table with the given
// (possibly profile-adjusted) thresholds.
func tableTier(score, wr float64, sizeBytes uint64, t1, t2, t3 float64) tier.Tier {
	switch {
	case score > t1 && wr > 0.7:
		return tier.FastDRAM
	case score > t1:
		return tier.HBM
	case score > t2: // t2 < score <= t1
		return tier.StandardDRAM
	case score > t3 && wr < 0.2: // t3 < score <= t2
		return tier.PMEM
	case score > t3:
		return tier.StandardDRAM
	case sizeBytes > oneGiB:
		return tier.ExtendedCXL
	default:
		return tier.PMEM
	}
}

// tierSpeedIndex returns a tier's position in tier.Order (lower is
// faster); used only to decide whether a candidate move is a promotion
// or a demotion for the churn-avoidance check below.
func tierSpeedIndex(t tier.Tier) int {
	for i, v := range tier.Order {
		if v == t {
			return i
		}
	}
	return len(tier.Order)
}

// OptimalTier computes the optimal tier for a tracked page: the table
// score, then the pressure and churn overrides, then an optional
// Predictor override layered last. The predictor is never required and
// never changes the deterministic scoring contract when absent.
func (p *Policy) OptimalTier(c Counters, currentTier tier.Tier, sizeBytes uint64, pressure PressureFunc, profile Profile) tier.Tier {
	score := combinedScore(c)
	wr := writeRatio(c)
	t1, t2, t3 := thresholds(profile)
	target := tableTier(score, wr, sizeBytes, t1, t2, t3)

	if pressure != nil {
		target = p.applyPressureOverride(target, currentTier, pressure, profile)
	}

	if p.predictor != nil {
		if override, confidence := p.predictor(PredictorInput{
			AccessCount: c.AccessCount,
			WriteRatio:  wr,
			Pattern:     c.Pattern,
			Importance:  c.Importance,
			CurrentTier: currentTier,
		}); confidence > 0 && override != "" {
			target = override
		}
	}
	return target
}

// applyPressureOverride enforces the two pressure rules: destination
// usage above the high watermark rules that tier out entirely (walk to
// the next slower tier until one has room); source usage below the low
// watermark skips a demotion to avoid churn, except under the
// Performance profile, where the churn guard is relaxed since a
// Performance profile's whole point is chasing the table-optimal tier
// rather than minimizing migration count.
func (p *Policy) applyPressureOverride(target, current tier.Tier, pressure PressureFunc, profile Profile) tier.Tier {
	high := p.cfg.TierPressureHighWatermark
	low := p.cfg.TierPressureLowWatermark

	isDemotion := tierSpeedIndex(target) > tierSpeedIndex(current)
	if isDemotion && profile != Performance && pressure(current) < low {
		return current
	}

	idx := indexInOrder(target)
	if idx < 0 {
		return target
	}
	for i := idx; i < len(tier.Order); i++ {
		if pressure(tier.Order[i]) <= high {
			return tier.Order[i]
		}
	}
	// Every slower tier from the target onward is over the high
	// watermark: stay put rather than oscillate into an equally
	// pressured tier.
	return current
}

func indexInOrder(t tier.Tier) int {
	for i, v := range tier.Order {
		if v == t {
			return i
		}
	}
	return -1
}
