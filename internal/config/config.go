// Package config holds the tunable defaults for the core subsystems:
// journal size, cache capacities, scrub interval, policy tick, and
// flush durability mode. An optional TOML file layered on top of the
// compiled-in defaults can override every field except
// PMemWearCriticalThreshold and ScrubChunkBytes; environment variables
// override the journal size, cache capacities, scrub interval, policy
// tick and flush mode.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// FlushMode controls how aggressively the journal forces durability on
// commit. Mirrors the three-tier durability knob the sync()
// description implies (synchronous fsync vs batched).
type FlushMode int

const (
	// FlushAuto fsyncs the journal device after every commit's log
	// write; target devices are not fsynced.
	FlushAuto FlushMode = iota
	// FlushBatched defers fsync to the next explicit sync()/checkpoint()
	// call, trading durability latency for throughput.
	FlushBatched
	// FlushFull fsyncs the journal device after every commit's log
	// write and, during that commit's writeback, every BlockDevice the
	// commit touched.
	FlushFull
)

// Config collects the tunable defaults for every core subsystem.
type Config struct {
	// JournalSizeBytes is the fixed on-device journal size (default 256 MiB).
	JournalSizeBytes int64
	// JournalCheckpointThreshold is the fraction of JournalSizeBytes used
	// at which a checkpoint is due (default 0.75). It is loaded and
	// overridable, but no component reads it: checkpoints run only when
	// Manager.Checkpoint is called.
	JournalCheckpointThreshold float64
	// FlushMode is the durability mode used by Journal.Commit/Sync.
	FlushMode FlushMode

	// BlockCacheCapacity is the max resident block cache entries (default 8192).
	BlockCacheCapacity int
	// InodeCacheCapacity is the max resident inode cache entries (default 4096).
	InodeCacheCapacity int

	// PageSizeBytes is the physical page size the tier allocator,
	// tracker, and migration engine round addresses/sizes to (default 4096).
	PageSizeBytes uint64

	// ScrubInterval is the tier health scrubbing sweep period (default 1h).
	ScrubInterval time.Duration
	// PolicyTickInterval is the migration policy evaluation period (default 60s).
	PolicyTickInterval time.Duration
	// PolicyMigrationCooldown is the minimum time between migrations of
	// the same tracked page.
	PolicyMigrationCooldown time.Duration
	// MaxMigrationsPerTick caps how many migrations a policy tick enqueues.
	MaxMigrationsPerTick int

	// MigrationEventRingSize bounds the Migration Engine's event ring.
	MigrationEventRingSize int

	// TierPressureHighWatermark is the destination-tier usage fraction
	// above which the policy may not select that tier.
	TierPressureHighWatermark float64
	// TierPressureLowWatermark is the source-tier usage fraction below
	// which demotion is skipped to avoid churn.
	TierPressureLowWatermark float64

	// PMemWearCriticalThreshold is the fraction of a PMEM device's rated
	// write-endurance budget beyond which the Tier Health Monitor forces
	// Critical regardless of the other thresholds (default 0.80).
	PMemWearCriticalThreshold float64

	// ScrubChunkBytes is the read-touch sweep granularity the Tier
	// Health Monitor's scrubbing pass uses to walk a tier's address
	// space.
	ScrubChunkBytes uint64
}

// Default returns the compiled-in default configuration.
func Default() Config {
	return Config{
		JournalSizeBytes:           256 << 20,
		JournalCheckpointThreshold: 0.75,
		FlushMode:                  FlushAuto,

		BlockCacheCapacity: 8192,
		InodeCacheCapacity: 4096,
		PageSizeBytes:      4096,

		ScrubInterval:            time.Hour,
		PolicyTickInterval:       60 * time.Second,
		PolicyMigrationCooldown:  5 * time.Minute,
		MaxMigrationsPerTick:     64,
		MigrationEventRingSize:   1000,
		TierPressureHighWatermark: 0.90,
		TierPressureLowWatermark:  0.30,

		PMemWearCriticalThreshold: 0.80,
		ScrubChunkBytes:           1 << 20,
	}
}

// tomlOverrides mirrors Config's fields using TOML-friendly primitive
// types (durations as strings) for file-based overrides.
type tomlOverrides struct {
	JournalSizeBytes           *int64   `toml:"journal_size_bytes"`
	JournalCheckpointThreshold *float64 `toml:"journal_checkpoint_threshold"`
	FlushMode                  *string  `toml:"flush_mode"`
	BlockCacheCapacity         *int     `toml:"block_cache_capacity"`
	InodeCacheCapacity         *int     `toml:"inode_cache_capacity"`
	PageSizeBytes              *uint64  `toml:"page_size_bytes"`
	ScrubInterval              *string  `toml:"scrub_interval"`
	PolicyTickInterval         *string  `toml:"policy_tick_interval"`
	PolicyMigrationCooldown    *string  `toml:"policy_migration_cooldown"`
	MaxMigrationsPerTick       *int     `toml:"max_migrations_per_tick"`
	MigrationEventRingSize     *int     `toml:"migration_event_ring_size"`
	TierPressureHighWatermark  *float64 `toml:"tier_pressure_high_watermark"`
	TierPressureLowWatermark   *float64 `toml:"tier_pressure_low_watermark"`
}

// LoadFile parses a TOML config file and applies any fields it sets on
// top of base, returning the merged result. A missing file is not an
// error; callers typically pass config.Default() as base.
func LoadFile(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return base, nil
		}
		return base, fmt.Errorf("config: read %s: %w", path, err)
	}

	var ov tomlOverrides
	if err := toml.Unmarshal(data, &ov); err != nil {
		return base, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg := base
	if ov.JournalSizeBytes != nil {
		cfg.JournalSizeBytes = *ov.JournalSizeBytes
	}
	if ov.JournalCheckpointThreshold != nil {
		cfg.JournalCheckpointThreshold = *ov.JournalCheckpointThreshold
	}
	if ov.FlushMode != nil {
		cfg.FlushMode = parseFlushMode(*ov.FlushMode)
	}
	if ov.BlockCacheCapacity != nil {
		cfg.BlockCacheCapacity = *ov.BlockCacheCapacity
	}
	if ov.InodeCacheCapacity != nil {
		cfg.InodeCacheCapacity = *ov.InodeCacheCapacity
	}
	if ov.PageSizeBytes != nil {
		cfg.PageSizeBytes = *ov.PageSizeBytes
	}
	if ov.ScrubInterval != nil {
		if d, err := time.ParseDuration(*ov.ScrubInterval); err == nil {
			cfg.ScrubInterval = d
		}
	}
	if ov.PolicyTickInterval != nil {
		if d, err := time.ParseDuration(*ov.PolicyTickInterval); err == nil {
			cfg.PolicyTickInterval = d
		}
	}
	if ov.PolicyMigrationCooldown != nil {
		if d, err := time.ParseDuration(*ov.PolicyMigrationCooldown); err == nil {
			cfg.PolicyMigrationCooldown = d
		}
	}
	if ov.MaxMigrationsPerTick != nil {
		cfg.MaxMigrationsPerTick = *ov.MaxMigrationsPerTick
	}
	if ov.MigrationEventRingSize != nil {
		cfg.MigrationEventRingSize = *ov.MigrationEventRingSize
	}
	if ov.TierPressureHighWatermark != nil {
		cfg.TierPressureHighWatermark = *ov.TierPressureHighWatermark
	}
	if ov.TierPressureLowWatermark != nil {
		cfg.TierPressureLowWatermark = *ov.TierPressureLowWatermark
	}
	return cfg, nil
}

// LoadEnv applies AETHER_-prefixed environment variable overrides on
// top of base. Unset or unparsable variables are ignored.
func LoadEnv(base Config) Config {
	cfg := base
	if v, ok := os.LookupEnv("AETHER_JOURNAL_SIZE_BYTES"); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.JournalSizeBytes = n
		}
	}
	if v, ok := os.LookupEnv("AETHER_BLOCK_CACHE_CAPACITY"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.BlockCacheCapacity = n
		}
	}
	if v, ok := os.LookupEnv("AETHER_INODE_CACHE_CAPACITY"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.InodeCacheCapacity = n
		}
	}
	if v, ok := os.LookupEnv("AETHER_SCRUB_INTERVAL"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ScrubInterval = d
		}
	}
	if v, ok := os.LookupEnv("AETHER_POLICY_TICK_INTERVAL"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.PolicyTickInterval = d
		}
	}
	if v, ok := os.LookupEnv("AETHER_FLUSH_MODE"); ok {
		cfg.FlushMode = parseFlushMode(v)
	}
	return cfg
}

func parseFlushMode(s string) FlushMode {
	switch s {
	case "batched":
		return FlushBatched
	case "full":
		return FlushFull
	default:
		return FlushAuto
	}
}
