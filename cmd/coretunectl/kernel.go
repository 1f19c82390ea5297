package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/menchan-Rub/AetherOS-sub000/internal/capability"
	"github.com/menchan-Rub/AetherOS-sub000/internal/config"
	"github.com/menchan-Rub/AetherOS-sub000/internal/obslog"
	"github.com/menchan-Rub/AetherOS-sub000/pkg/hint"
	"github.com/menchan-Rub/AetherOS-sub000/pkg/migration"
	"github.com/menchan-Rub/AetherOS-sub000/pkg/tier"
	"github.com/menchan-Rub/AetherOS-sub000/pkg/tracker"
)

// demoRanges lays out a small address space across every tier, big
// enough for interactive exploration without a real kernel behind it.
// coretunectl has no daemon to attach to, so each invocation rebuilds
// this in-memory placement engine from the on-disk state file below,
// runs the requested Hint/Tuning API call, and persists the result --
// the same role a debugfs/sysctl tool plays against a live kernel, just
// without a long-running process on the other end of the call.
func demoRanges() []tier.Range {
	const span = 1 << 28 // 256 MiB per tier
	start := uint64(0)
	ranges := make([]tier.Range, 0, len(tier.Order))
	for _, t := range tier.Order {
		ranges = append(ranges, tier.Range{Start: start, End: start + span, Tier: t})
		start += span
	}
	return ranges
}

func demoRegions(pageSize uint64) map[tier.Tier]tier.Region {
	regions := make(map[tier.Tier]tier.Region, len(tier.Order))
	for _, r := range demoRanges() {
		regions[r.Tier] = tier.Region{Base: r.Start, Pages: (r.End - r.Start) / pageSize}
	}
	return regions
}

// pageRecord is the on-disk shape of one tracked page, a deliberately
// small subset of tracker.TrackedPage: just enough for the CLI to
// restore importance and current tier across invocations.
type pageRecord struct {
	Addr       uint64 `json:"addr"`
	Size       uint64 `json:"size"`
	Importance int32  `json:"importance"`
	Tier       string `json:"tier"`
}

type fileState struct {
	Profile string       `json:"profile"`
	Pages   []pageRecord `json:"pages"`
}

// kernel bundles the in-process placement engine coretunectl drives.
type kernel struct {
	cfg    config.Config
	trk    *tracker.Tracker
	engine *migration.Engine
	api    *hint.API
	path   string
}

func loadKernel() (*kernel, error) {
	cfg := config.Default()
	log := capability.ZapLogger{L: obslog.Named("coretunectl")}

	classifier := tier.NewClassifier(demoRanges(), log)
	alloc := tier.NewAllocator(cfg.PageSizeBytes, demoRegions(cfg.PageSizeBytes))
	trk := tracker.New(cfg.PageSizeBytes, capability.SystemClock{})
	mem := capability.NewMemPageMemory()
	mapper := &capability.IdentityMapper{}
	engine := migration.NewEngine(cfg, classifier, alloc, trk, mem, mapper, capability.SystemClock{}, log)
	api := hint.New(trk, engine, log)

	k := &kernel{cfg: cfg, trk: trk, engine: engine, api: api, path: statePath}

	data, err := os.ReadFile(statePath)
	if err != nil {
		if os.IsNotExist(err) {
			return k, nil
		}
		return nil, fmt.Errorf("read state file %s: %w", statePath, err)
	}

	var fs fileState
	if err := json.Unmarshal(data, &fs); err != nil {
		return nil, fmt.Errorf("parse state file %s: %w", statePath, err)
	}
	if fs.Profile != "" {
		api.SetProfile(migration.Profile(fs.Profile))
	}
	for _, p := range fs.Pages {
		if err := trk.Monitor(p.Addr, p.Size, int(p.Importance)); err != nil {
			continue
		}
		if p.Tier != "" {
			trk.SetTier(p.Addr, p.Tier)
		}
	}
	return k, nil
}

// save writes every currently tracked page and the active profile back
// to the state file so the next invocation picks up where this one left
// off.
func (k *kernel) save() error {
	pages := k.trk.All()
	fs := fileState{
		Profile: string(k.api.Profile()),
		Pages:   make([]pageRecord, 0, len(pages)),
	}
	for _, p := range pages {
		fs.Pages = append(fs.Pages, pageRecord{
			Addr:       p.PhysAddr,
			Size:       p.Size,
			Importance: p.Importance,
			Tier:       p.CurrentTier,
		})
	}

	data, err := json.MarshalIndent(fs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if dir := filepath.Dir(k.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state dir %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(k.path, data, 0o644); err != nil {
		return fmt.Errorf("write state file %s: %w", k.path, err)
	}
	return nil
}
