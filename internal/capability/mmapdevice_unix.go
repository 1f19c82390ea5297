//go:build linux || freebsd

package capability

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/menchan-Rub/AetherOS-sub000/pkg/kerrors"
)

// MMapBlockDevice is a file-backed BlockDevice using a shared mmap,
// flushed with msync per write and fdatasync on Sync.
type MMapBlockDevice struct {
	f         *os.File
	data      []byte
	blockSize uint64
}

// OpenMMapBlockDevice maps the file at path. The file must already be
// sized to an exact multiple of blockSize; BlockDevice implementations
// do not grow their backing store on behalf of callers.
func OpenMMapBlockDevice(path string, blockSize uint64) (*MMapBlockDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, kerrors.Wrap("mmapdevice.open", kerrors.DeviceError, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, kerrors.Wrap("mmapdevice.open", kerrors.DeviceError, err)
	}
	size := info.Size()
	if size == 0 || uint64(size)%blockSize != 0 {
		f.Close()
		return nil, kerrors.New("mmapdevice.open", kerrors.InvalidData, "file size is not a multiple of block size")
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, kerrors.Wrap("mmapdevice.open", kerrors.DeviceError, err)
	}
	return &MMapBlockDevice{f: f, data: data, blockSize: blockSize}, nil
}

func (d *MMapBlockDevice) BlockSize() uint64   { return d.blockSize }
func (d *MMapBlockDevice) TotalBlocks() uint64 { return uint64(len(d.data)) / d.blockSize }

func (d *MMapBlockDevice) ReadBlock(idx uint64) ([]byte, error) {
	off, ok := d.offset(idx)
	if !ok {
		return nil, kerrors.New("mmapdevice.read_block", kerrors.NotFound, "block index out of range")
	}
	out := make([]byte, d.blockSize)
	copy(out, d.data[off:off+d.blockSize])
	return out, nil
}

func (d *MMapBlockDevice) WriteBlock(idx uint64, data []byte) error {
	if uint64(len(data)) != d.blockSize {
		return kerrors.New("mmapdevice.write_block", kerrors.InvalidData, "write length does not match block size")
	}
	off, ok := d.offset(idx)
	if !ok {
		return kerrors.New("mmapdevice.write_block", kerrors.NotFound, "block index out of range")
	}
	copy(d.data[off:off+d.blockSize], data)
	return unix.Msync(d.data[off:off+d.blockSize], unix.MS_SYNC)
}

// Sync fdatasyncs the underlying file descriptor; the block payloads
// are all the durable state, so syncing file metadata is not needed.
func (d *MMapBlockDevice) Sync() error {
	return unix.Fdatasync(int(d.f.Fd()))
}

// Close unmaps and closes the backing file.
func (d *MMapBlockDevice) Close() error {
	if err := unix.Munmap(d.data); err != nil {
		return err
	}
	return d.f.Close()
}

func (d *MMapBlockDevice) offset(idx uint64) (uint64, bool) {
	off := idx * d.blockSize
	if off+d.blockSize > uint64(len(d.data)) {
		return 0, false
	}
	return off, true
}
