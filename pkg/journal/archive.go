package journal

import (
	"bytes"

	"github.com/klauspost/compress/zstd"
)

// ArchiveSink receives a zstd-compressed copy of journal bytes retired
// by a Checkpoint, for offline diagnosis of corruption reports; it is
// never consulted during recovery. A nil sink disables archiving.
type ArchiveSink interface {
	Archive(segment []byte) error
}

// SetArchiveSink attaches a sink that receives every retired log
// segment from future Checkpoint calls.
func (m *Manager) SetArchiveSink(sink ArchiveSink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.archive = sink
}

// archiveRetiredLog reads the log region about to be retired by a
// checkpoint (blocks [1, nextLogBlock)), zstd-compresses it, and hands
// it to the configured sink. Failures are logged, not propagated:
// archiving is a diagnostic side-channel, never load-bearing for
// correctness.
func (m *Manager) archiveRetiredLog() {
	if m.archive == nil {
		return
	}
	var raw []byte
	for i := uint64(1); i < m.nextLogBlock; i++ {
		block, err := m.dev.ReadBlock(i)
		if err != nil {
			m.log.Warn("journal archive: read failed", "block", i, "err", err)
			return
		}
		raw = append(raw, block...)
	}
	if len(raw) == 0 {
		return
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		m.log.Warn("journal archive: zstd writer init failed", "err", err)
		return
	}
	defer enc.Close()
	var out bytes.Buffer
	compressed := enc.EncodeAll(raw, out.Bytes())
	if err := m.archive.Archive(compressed); err != nil {
		m.log.Warn("journal archive: sink rejected segment", "err", err)
	}
}

// NewNoopArchiveSink returns a sink that discards every segment; used
// where archiving capability is wired but no sink is configured.
func NewNoopArchiveSink() ArchiveSink { return noopArchiveSink{} }

type noopArchiveSink struct{}

func (noopArchiveSink) Archive([]byte) error { return nil }
