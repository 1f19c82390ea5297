package capability

import (
	"sync"

	"github.com/menchan-Rub/AetherOS-sub000/pkg/kerrors"
)

// MemPageMemory is an in-memory PageMemory, the reference implementation
// used by this module's own tests: physical pages are simply byte
// slices in a Go map keyed by address, the same idiom as MemBlockDevice
// applied to physical pages instead of device blocks.
type MemPageMemory struct {
	mu    sync.RWMutex
	pages map[uint64][]byte
}

// NewMemPageMemory creates an empty backing store; pages are created
// lazily on first write and read back as zero-filled if never written.
func NewMemPageMemory() *MemPageMemory {
	return &MemPageMemory{pages: make(map[uint64][]byte)}
}

func (m *MemPageMemory) ReadPage(phys uint64, size uint64) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]byte, size)
	if b, ok := m.pages[phys]; ok {
		copy(out, b)
	}
	return out, nil
}

func (m *MemPageMemory) WritePage(phys uint64, data []byte) error {
	if len(data) == 0 {
		return kerrors.New("mempage.write_page", kerrors.InvalidData, "empty page write")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	m.pages[phys] = buf
	return nil
}
