// Package tracker implements the access tracker: it monitors pages
// keyed by physical address, recording access counts, read/write split,
// and a streaming pattern classification
// (Sequential/Random/Burst/SingleAccess/...) over a bounded
// recent-access ring per page.
//
// The record store is a sharded map with a reader-writer lock per
// shard; per-record counters are atomic and updated without taking any
// shard's write lock, so the hot RecordAccess path stays contention
// free across CPUs.
package tracker
