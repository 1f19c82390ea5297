package cache

import (
	"github.com/menchan-Rub/AetherOS-sub000/internal/capability"
)

// BlockKey identifies one block on one device.
type BlockKey struct {
	DeviceID    uint64
	BlockNumber uint64
}

// BlockCache is the C1 block cache: a Keyed[BlockKey] whose write-back
// writes straight through a capability.BlockDevice.
type BlockCache struct {
	*Keyed[BlockKey]
}

// NewBlockCache builds a block cache whose write-back resolves the
// owning device per BlockKey.DeviceID through devices.
func NewBlockCache(capacity int, clock capability.Clock, log capability.Logger, devices func(deviceID uint64) (capability.BlockDevice, bool)) *BlockCache {
	wb := func(key BlockKey, payload []byte) error {
		dev, ok := devices(key.DeviceID)
		if !ok {
			return errUnknownDevice{deviceID: key.DeviceID}
		}
		return dev.WriteBlock(key.BlockNumber, payload)
	}
	return &BlockCache{Keyed: New[BlockKey]("block", capacity, clock, log, wb)}
}

type errUnknownDevice struct{ deviceID uint64 }

func (e errUnknownDevice) Error() string { return "cache: no block device registered for device id" }
