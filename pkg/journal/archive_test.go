package journal_test

import (
	"sync"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"

	"github.com/menchan-Rub/AetherOS-sub000/pkg/journal"
)

type recordingSink struct {
	mu       sync.Mutex
	segments [][]byte
}

func (s *recordingSink) Archive(segment []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := append([]byte(nil), segment...)
	s.segments = append(s.segments, cp)
	return nil
}

func (s *recordingSink) last() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.segments) == 0 {
		return nil
	}
	return s.segments[len(s.segments)-1]
}

func TestCheckpoint_ArchivesRetiredLogCompressed(t *testing.T) {
	m, _, _ := newTestManager(t)
	sink := &recordingSink{}
	m.SetArchiveSink(sink)

	txID, err := m.Begin()
	require.NoError(t, err)
	payload := make([]byte, testBlockSize)
	copy(payload, []byte("archive-me"))
	require.NoError(t, m.LogData(txID, 1, 1, payload))
	require.NoError(t, m.Commit(txID))
	require.NoError(t, m.Sync())

	require.NoError(t, m.Checkpoint())

	segment := sink.last()
	require.NotEmpty(t, segment)

	dec, err := zstd.NewReader(nil)
	require.NoError(t, err)
	defer dec.Close()
	raw, err := dec.DecodeAll(segment, nil)
	require.NoError(t, err)
	require.Contains(t, string(raw), "archive-me")
}

func TestCheckpoint_NoSinkIsNoop(t *testing.T) {
	m, _, _ := newTestManager(t)

	txID, err := m.Begin()
	require.NoError(t, err)
	payload := make([]byte, testBlockSize)
	require.NoError(t, m.LogData(txID, 1, 1, payload))
	require.NoError(t, m.Commit(txID))
	require.NoError(t, m.Sync())

	require.NoError(t, m.Checkpoint())
}

func TestNoopArchiveSink_DiscardsEverything(t *testing.T) {
	sink := journal.NewNoopArchiveSink()
	require.NoError(t, sink.Archive([]byte("anything")))
}
