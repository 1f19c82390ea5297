// Package health implements the Tier Health Monitor: it consumes
// hardware ECC-error callbacks, tracks per-tier-device error counters
// and faulty regions, aggregates a Healthy/Warning/Critical/Failed
// status, drives scrubbing sweeps, and asks the Migration Engine to
// relocate pages out of newly faulty regions.
//
// It also folds in a PMEM wear-level gauge, derived from the same
// TierDevice telemetry sampling cadence used for temperature and
// voltage, since PMEM endurance is bounded and a device near the end of
// its write budget should surface as Critical before it fails.
package health
