package capability

import (
	"sync"

	"github.com/menchan-Rub/AetherOS-sub000/pkg/kerrors"
)

// MemBlockDevice is an in-memory BlockDevice, the reference
// implementation used by this module's own tests.
type MemBlockDevice struct {
	blockSize uint64

	mu     sync.RWMutex
	blocks [][]byte
}

// NewMemBlockDevice creates a device with numBlocks blocks of blockSize
// bytes each, all zero-filled.
func NewMemBlockDevice(blockSize uint64, numBlocks uint64) *MemBlockDevice {
	blocks := make([][]byte, numBlocks)
	for i := range blocks {
		blocks[i] = make([]byte, blockSize)
	}
	return &MemBlockDevice{blockSize: blockSize, blocks: blocks}
}

func (d *MemBlockDevice) BlockSize() uint64   { return d.blockSize }
func (d *MemBlockDevice) TotalBlocks() uint64 { return uint64(len(d.blocks)) }

func (d *MemBlockDevice) ReadBlock(idx uint64) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if idx >= uint64(len(d.blocks)) {
		return nil, kerrors.New("memdevice.read_block", kerrors.NotFound, "block index out of range")
	}
	out := make([]byte, d.blockSize)
	copy(out, d.blocks[idx])
	return out, nil
}

func (d *MemBlockDevice) WriteBlock(idx uint64, data []byte) error {
	if uint64(len(data)) != d.blockSize {
		return kerrors.New("memdevice.write_block", kerrors.InvalidData, "write length does not match block size")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if idx >= uint64(len(d.blocks)) {
		return kerrors.New("memdevice.write_block", kerrors.NotFound, "block index out of range")
	}
	copy(d.blocks[idx], data)
	return nil
}

func (d *MemBlockDevice) Sync() error { return nil }
