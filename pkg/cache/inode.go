package cache

import (
	"github.com/menchan-Rub/AetherOS-sub000/internal/capability"
)

// InodeKey identifies one inode on one device.
type InodeKey struct {
	DeviceID    uint64
	InodeNumber uint64
}

// InodeCache is the C1 inode cache: a Keyed[InodeKey] whose write-back
// resolves the owning block through a capability.FilesystemDriver and
// writes the opaque inode image through the matching BlockDevice. The
// cache itself never parses the bytes it holds.
type InodeCache struct {
	*Keyed[InodeKey]
}

// NewInodeCache builds an inode cache for one mounted filesystem.
func NewInodeCache(capacity int, clock capability.Clock, log capability.Logger, driver capability.FilesystemDriver, dev capability.BlockDevice) *InodeCache {
	wb := func(key InodeKey, payload []byte) error {
		blockNum, offset, err := driver.InodeBlockLocation(key.InodeNumber)
		if err != nil {
			return err
		}
		block, err := dev.ReadBlock(blockNum)
		if err != nil {
			return err
		}
		copy(block[offset:], payload)
		return dev.WriteBlock(blockNum, block)
	}
	return &InodeCache{Keyed: New[InodeKey]("inode", capacity, clock, log, wb)}
}
