package txmgr_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menchan-Rub/AetherOS-sub000/internal/capability"
	"github.com/menchan-Rub/AetherOS-sub000/pkg/journal"
	"github.com/menchan-Rub/AetherOS-sub000/pkg/txmgr"
)

const blockSize = 4096

type fakeDriver struct {
	metadataBlocks map[uint64]bool
}

func (d fakeDriver) Name() string                                                  { return "fake" }
func (d fakeDriver) Mount(capability.BlockDevice, string, map[string]string) error { return nil }
func (d fakeDriver) Unmount(string) error                                          { return nil }
func (d fakeDriver) InodeBlockLocation(uint64) (uint64, uint32, error)             { return 0, 0, nil }
func (d fakeDriver) IsMetadataBlock(deviceID, blk uint64) bool                     { return d.metadataBlocks[blk] }
func (d fakeDriver) Sync() error                                                   { return nil }

func newFixture(t *testing.T) (*txmgr.Manager, *capability.MemBlockDevice) {
	t.Helper()
	logDev := capability.NewMemBlockDevice(blockSize, 64)
	dataDev := capability.NewMemBlockDevice(blockSize, 16)
	devices := func(id uint64) (capability.BlockDevice, bool) {
		if id == 1 {
			return dataDev, true
		}
		return nil, false
	}
	jr := journal.New(logDev, devices, 8, capability.SystemClock{}, capability.NoopLogger{})
	require.NoError(t, jr.Init())
	jr.StartWorker(context.Background())
	t.Cleanup(jr.Stop)

	driver := fakeDriver{metadataBlocks: map[uint64]bool{0: true}}
	drivers := func(id uint64) (capability.FilesystemDriver, bool) { return driver, id == 1 }

	return txmgr.New(jr, devices, drivers, capability.NoopLogger{}), dataDev
}

func TestCommitAppliesStagedWrites(t *testing.T) {
	mgr, dataDev := newFixture(t)
	tx := mgr.Begin()

	payload := make([]byte, blockSize)
	copy(payload, []byte("metadata-block-0"))
	require.NoError(t, tx.WriteBlock(1, 0, payload))

	dataPayload := make([]byte, blockSize)
	copy(dataPayload, []byte("data-block-2"))
	require.NoError(t, tx.WriteBlock(1, 2, dataPayload))

	require.NoError(t, tx.Commit())
	require.NoError(t, mgr.Sync())

	got0, err := dataDev.ReadBlock(0)
	require.NoError(t, err)
	assert.Equal(t, payload, got0)

	got2, err := dataDev.ReadBlock(2)
	require.NoError(t, err)
	assert.Equal(t, dataPayload, got2)
}

func TestReadBlockSeesOwnUncommittedWrite(t *testing.T) {
	mgr, _ := newFixture(t)
	tx := mgr.Begin()

	payload := make([]byte, blockSize)
	copy(payload, []byte("staged"))
	require.NoError(t, tx.WriteBlock(1, 4, payload))

	got, err := tx.ReadBlock(1, 4)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	require.NoError(t, tx.Abort())
}

func TestAbortDiscardsStagedWrites(t *testing.T) {
	mgr, dataDev := newFixture(t)
	tx := mgr.Begin()

	payload := make([]byte, blockSize)
	copy(payload, []byte("never-lands"))
	require.NoError(t, tx.WriteBlock(1, 7, payload))
	require.NoError(t, tx.Abort())

	got, err := dataDev.ReadBlock(7)
	require.NoError(t, err)
	assert.NotEqual(t, payload, got)
}

func TestLaterWriteOverwritesEarlierInSameTransaction(t *testing.T) {
	mgr, dataDev := newFixture(t)
	tx := mgr.Begin()

	first := make([]byte, blockSize)
	copy(first, []byte("first"))
	second := make([]byte, blockSize)
	copy(second, []byte("second"))

	require.NoError(t, tx.WriteBlock(1, 9, first))
	require.NoError(t, tx.WriteBlock(1, 9, second))
	require.NoError(t, tx.Commit())
	require.NoError(t, mgr.Sync())

	got, err := dataDev.ReadBlock(9)
	require.NoError(t, err)
	assert.Equal(t, second, got)
}

func TestWithTransactionAbortsOnError(t *testing.T) {
	mgr, dataDev := newFixture(t)
	sentinel := assert.AnError

	err := mgr.WithTransaction(func(tx *txmgr.Transaction) error {
		payload := make([]byte, blockSize)
		if wErr := tx.WriteBlock(1, 11, payload); wErr != nil {
			return wErr
		}
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)

	got, rErr := dataDev.ReadBlock(11)
	require.NoError(t, rErr)
	assert.True(t, allZero(got))
}

func allZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
