package fsregistry

import (
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/menchan-Rub/AetherOS-sub000/internal/capability"
	"github.com/menchan-Rub/AetherOS-sub000/pkg/kerrors"
)

// Mount is one registered mountpoint binding, identified by a uuid.UUID
// so callers can correlate it across log lines and metrics.
type Mount struct {
	ID         uuid.UUID
	Name       string
	Driver     capability.FilesystemDriver
	Device     capability.BlockDevice
	Mountpoint string
	Options    map[string]string
}

// Registry maps filesystem-type names to driver capabilities and
// holds the mount bindings.
type Registry struct {
	mu      sync.RWMutex
	drivers map[string]capability.FilesystemDriver
	mounts  map[string]*Mount // keyed by mountpoint
}

func New() *Registry {
	return &Registry{
		drivers: make(map[string]capability.FilesystemDriver),
		mounts:  make(map[string]*Mount),
	}
}

// Register adds a named driver implementation.
func (r *Registry) Register(name string, driver capability.FilesystemDriver) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.drivers[name]; exists {
		return kerrors.New("fsregistry.register", kerrors.AlreadyExists, "driver already registered")
	}
	r.drivers[name] = driver
	return nil
}

// Mount binds a registered driver to a device at mountpoint.
func (r *Registry) Mount(name string, device capability.BlockDevice, mountpoint string, options map[string]string) (*Mount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	driver, ok := r.drivers[name]
	if !ok {
		return nil, kerrors.New("fsregistry.mount", kerrors.NotFound, "no such filesystem driver registered")
	}
	if _, exists := r.mounts[mountpoint]; exists {
		return nil, kerrors.New("fsregistry.mount", kerrors.AlreadyExists, "mountpoint already in use")
	}
	if err := driver.Mount(device, mountpoint, options); err != nil {
		return nil, kerrors.Wrap("fsregistry.mount", kerrors.DeviceError, err)
	}
	m := &Mount{
		ID:         uuid.New(),
		Name:       name,
		Driver:     driver,
		Device:     device,
		Mountpoint: mountpoint,
		Options:    options,
	}
	r.mounts[mountpoint] = m
	return m, nil
}

// Unmount syncs the driver and tears the mount down. Flushing cache
// entries for the device is the caller's responsibility before calling
// Unmount; the registry holds no cache references of its own.
func (r *Registry) Unmount(mountpoint string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.mounts[mountpoint]
	if !ok {
		return kerrors.New("fsregistry.unmount", kerrors.NotFound, "mountpoint not mounted")
	}
	if err := m.Driver.Sync(); err != nil {
		return kerrors.Wrap("fsregistry.unmount", kerrors.IoError, err)
	}
	if err := m.Driver.Unmount(mountpoint); err != nil {
		return kerrors.Wrap("fsregistry.unmount", kerrors.DeviceError, err)
	}
	delete(r.mounts, mountpoint)
	return nil
}

// Resolve finds the mount owning path by longest-prefix match on
// mountpoint, returning the driver and path relative to the mountpoint.
func (r *Registry) Resolve(path string) (capability.FilesystemDriver, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var candidates []string
	for mp := range r.mounts {
		if isPrefixMountpoint(mp, path) {
			candidates = append(candidates, mp)
		}
	}
	if len(candidates) == 0 {
		return nil, "", kerrors.New("fsregistry.resolve", kerrors.NotFound, "no mount covers this path")
	}
	sort.Slice(candidates, func(i, j int) bool { return len(candidates[i]) > len(candidates[j]) })
	best := candidates[0]
	m := r.mounts[best]

	rel := strings.TrimPrefix(path, best)
	rel = strings.TrimPrefix(rel, "/")
	if rel == "" {
		rel = "."
	}
	return m.Driver, rel, nil
}

func isPrefixMountpoint(mountpoint, path string) bool {
	if mountpoint == "/" {
		return true
	}
	if path == mountpoint {
		return true
	}
	return strings.HasPrefix(path, mountpoint+"/")
}
