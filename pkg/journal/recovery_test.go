package journal_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menchan-Rub/AetherOS-sub000/internal/capability"
	"github.com/menchan-Rub/AetherOS-sub000/pkg/journal"
)

// writeLog lays records out on the journal device as one commit group:
// concatenated, padded out to whole journal blocks, starting at block
// 1. The writeback worker pads each commit group independently; tests
// covering multiple groups go through a real worker instead (see
// TestRecoveryReplaysMultipleCommitGroups).
func writeLog(t *testing.T, dev *capability.MemBlockDevice, records []journal.Record) {
	t.Helper()
	var raw []byte
	for _, r := range records {
		raw = append(raw, r.Encode()...)
	}
	blockSize := int(dev.BlockSize())
	numBlocks := (len(raw) + blockSize - 1) / blockSize
	padded := make([]byte, numBlocks*blockSize)
	copy(padded, raw)
	for i := 0; i < numBlocks; i++ {
		require.NoError(t, dev.WriteBlock(uint64(1+i), padded[i*blockSize:(i+1)*blockSize]))
	}
}

func writeDirtyHeader(t *testing.T, dev *capability.MemBlockDevice, lastCheckpointSeq uint64) {
	t.Helper()
	hdr := journal.Header{
		Version:           1,
		JournalSizeBytes:  dev.TotalBlocks() * dev.BlockSize(),
		BlockSize:         uint32(dev.BlockSize()),
		Dirty:             true,
		LastCheckpointSeq: lastCheckpointSeq,
	}
	block := make([]byte, dev.BlockSize())
	copy(block, hdr.Encode())
	require.NoError(t, dev.WriteBlock(0, block))
}

// TestRecoveryReplaysCommittedTransaction simulates power loss after the
// journal fsync but before the records were applied to their device:
// the log holds a complete Begin/Data/Metadata/Commit group, the header
// Dirty bit is set, and the data device is untouched. Init must replay
// both records.
func TestRecoveryReplaysCommittedTransaction(t *testing.T) {
	logDev := capability.NewMemBlockDevice(4096, 64)
	dataDev := capability.NewMemBlockDevice(512, 32)
	lookup := func(id uint64) (capability.BlockDevice, bool) {
		if id == 1 {
			return dataDev, true
		}
		return nil, false
	}

	dataPayload := bytes.Repeat([]byte{0x01}, 512)
	metaPayload := bytes.Repeat([]byte{0x02}, 512)
	writeDirtyHeader(t, logDev, 0)
	writeLog(t, logDev, []journal.Record{
		{Kind: journal.KindBegin, TxID: 1},
		{Kind: journal.KindData, TxID: 1, DeviceID: 1, BlockNumber: 10, Payload: dataPayload},
		{Kind: journal.KindMetadata, TxID: 1, DeviceID: 1, BlockNumber: 11, Payload: metaPayload},
		{Kind: journal.KindCommit, TxID: 1},
	})

	m := journal.New(logDev, lookup, 8, capability.SystemClock{}, capability.NoopLogger{})
	require.NoError(t, m.Init())
	assert.Equal(t, journal.StateIdle, m.State())

	got10, err := dataDev.ReadBlock(10)
	require.NoError(t, err)
	assert.Equal(t, dataPayload, got10)

	got11, err := dataDev.ReadBlock(11)
	require.NoError(t, err)
	assert.Equal(t, metaPayload, got11)
}

// TestRecoveryReplaysMultipleCommitGroups drives two separate commits
// through the real writeback worker, so each transaction lands in its
// own independently padded group, then replays the log onto a fresh
// device. The scanner must step over the first group's tail padding and
// reach the second group.
func TestRecoveryReplaysMultipleCommitGroups(t *testing.T) {
	logDev := capability.NewMemBlockDevice(4096, 64)
	applied := capability.NewMemBlockDevice(512, 32)
	lookupApplied := func(id uint64) (capability.BlockDevice, bool) { return applied, id == 1 }

	m := journal.New(logDev, lookupApplied, 8, capability.SystemClock{}, capability.NoopLogger{})
	require.NoError(t, m.Init())
	m.StartWorker(context.Background())

	first := bytes.Repeat([]byte{0x11}, 512)
	second := bytes.Repeat([]byte{0x22}, 512)

	txID, err := m.Begin()
	require.NoError(t, err)
	require.NoError(t, m.LogData(txID, 1, 10, first))
	require.NoError(t, m.Commit(txID))

	txID, err = m.Begin()
	require.NoError(t, err)
	require.NoError(t, m.LogData(txID, 1, 11, second))
	require.NoError(t, m.Commit(txID))

	require.NoError(t, m.Sync())
	m.Stop()

	// Simulate a crash after the log fsync but before the device apply:
	// replay the same log onto a device that never saw the writes. The
	// header is still dirty (no checkpoint ran), so Init recovers.
	fresh := capability.NewMemBlockDevice(512, 32)
	lookupFresh := func(id uint64) (capability.BlockDevice, bool) { return fresh, id == 1 }
	m2 := journal.New(logDev, lookupFresh, 8, capability.SystemClock{}, capability.NoopLogger{})
	require.NoError(t, m2.Init())

	got10, err := fresh.ReadBlock(10)
	require.NoError(t, err)
	assert.Equal(t, first, got10, "first commit group must be replayed")

	got11, err := fresh.ReadBlock(11)
	require.NoError(t, err)
	assert.Equal(t, second, got11, "second commit group must be replayed past the first group's padding")
}

// TestRecoveryDiscardsHalfWrittenTransaction: a Begin/Data group with no
// Commit bracket must not be replayed.
func TestRecoveryDiscardsHalfWrittenTransaction(t *testing.T) {
	logDev := capability.NewMemBlockDevice(4096, 64)
	dataDev := capability.NewMemBlockDevice(512, 32)
	lookup := func(id uint64) (capability.BlockDevice, bool) { return dataDev, id == 1 }

	payload := bytes.Repeat([]byte{0xEE}, 512)
	writeDirtyHeader(t, logDev, 0)
	writeLog(t, logDev, []journal.Record{
		{Kind: journal.KindBegin, TxID: 1},
		{Kind: journal.KindData, TxID: 1, DeviceID: 1, BlockNumber: 3, Payload: payload},
	})

	m := journal.New(logDev, lookup, 8, capability.SystemClock{}, capability.NoopLogger{})
	require.NoError(t, m.Init())

	got, err := dataDev.ReadBlock(3)
	require.NoError(t, err)
	assert.NotEqual(t, payload, got, "half-written transaction must be discarded")
}

// TestRecoverySkipsCheckpointedTransactions: transactions at or below
// the header's last checkpoint sequence were already applied before the
// checkpoint and must not be replayed again.
func TestRecoverySkipsCheckpointedTransactions(t *testing.T) {
	logDev := capability.NewMemBlockDevice(4096, 64)
	dataDev := capability.NewMemBlockDevice(512, 32)
	lookup := func(id uint64) (capability.BlockDevice, bool) { return dataDev, id == 1 }

	stale := bytes.Repeat([]byte{0xAA}, 512)
	fresh := bytes.Repeat([]byte{0xBB}, 512)
	writeDirtyHeader(t, logDev, 1)
	writeLog(t, logDev, []journal.Record{
		{Kind: journal.KindBegin, TxID: 1},
		{Kind: journal.KindData, TxID: 1, DeviceID: 1, BlockNumber: 5, Payload: stale},
		{Kind: journal.KindCommit, TxID: 1},
		{Kind: journal.KindBegin, TxID: 2},
		{Kind: journal.KindData, TxID: 2, DeviceID: 1, BlockNumber: 6, Payload: fresh},
		{Kind: journal.KindCommit, TxID: 2},
	})

	m := journal.New(logDev, lookup, 8, capability.SystemClock{}, capability.NoopLogger{})
	require.NoError(t, m.Init())

	got5, err := dataDev.ReadBlock(5)
	require.NoError(t, err)
	assert.NotEqual(t, stale, got5, "checkpointed transaction must not be replayed")

	got6, err := dataDev.ReadBlock(6)
	require.NoError(t, err)
	assert.Equal(t, fresh, got6)
}

// TestRecoveryIsIdempotent: running Init twice over the same log leaves
// the same device state.
func TestRecoveryIsIdempotent(t *testing.T) {
	logDev := capability.NewMemBlockDevice(4096, 64)
	dataDev := capability.NewMemBlockDevice(512, 32)
	lookup := func(id uint64) (capability.BlockDevice, bool) { return dataDev, id == 1 }

	payload := bytes.Repeat([]byte{0x7F}, 512)
	writeDirtyHeader(t, logDev, 0)
	writeLog(t, logDev, []journal.Record{
		{Kind: journal.KindBegin, TxID: 1},
		{Kind: journal.KindData, TxID: 1, DeviceID: 1, BlockNumber: 8, Payload: payload},
		{Kind: journal.KindCommit, TxID: 1},
	})

	m := journal.New(logDev, lookup, 8, capability.SystemClock{}, capability.NoopLogger{})
	require.NoError(t, m.Init())
	first, err := dataDev.ReadBlock(8)
	require.NoError(t, err)

	// Crash again before the clean header could matter: force the dirty
	// bit back and re-run recovery over the identical log.
	writeDirtyHeader(t, logDev, 0)
	m2 := journal.New(logDev, lookup, 8, capability.SystemClock{}, capability.NoopLogger{})
	require.NoError(t, m2.Init())
	second, err := dataDev.ReadBlock(8)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
