// Package journal implements the write-ahead journal: a 64-byte header
// followed by 4 KiB-aligned transaction records, with
// Begin/Metadata/Data/Commit/Checkpoint record kinds and IEEE CRC32
// checksums.
//
// Commits are ordered by a monotonically increasing transaction id.
// The log is flushed before any record is applied to its target device,
// and the header's dirty flag brackets each checkpoint epoch, so a
// crash at any point is recoverable by rescanning the log. A single
// dedicated writeback worker drains the commit queue (FIFO, one lock),
// rather than one goroutine per commit.
package journal
