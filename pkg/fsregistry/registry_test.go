package fsregistry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menchan-Rub/AetherOS-sub000/internal/capability"
	"github.com/menchan-Rub/AetherOS-sub000/pkg/fsregistry"
)

type stubDriver struct{ name string }

func (d stubDriver) Name() string                                                  { return d.name }
func (d stubDriver) Mount(capability.BlockDevice, string, map[string]string) error { return nil }
func (d stubDriver) Unmount(string) error                                          { return nil }
func (d stubDriver) InodeBlockLocation(uint64) (uint64, uint32, error)             { return 0, 0, nil }
func (d stubDriver) IsMetadataBlock(uint64, uint64) bool                           { return false }
func (d stubDriver) Sync() error                                                   { return nil }

func TestLongestPrefixMatchWins(t *testing.T) {
	reg := fsregistry.New()
	require.NoError(t, reg.Register("root-fs", stubDriver{name: "root-fs"}))
	require.NoError(t, reg.Register("data-fs", stubDriver{name: "data-fs"}))

	dev := capability.NewMemBlockDevice(4096, 4)
	_, err := reg.Mount("root-fs", dev, "/", nil)
	require.NoError(t, err)
	_, err = reg.Mount("data-fs", dev, "/mnt/data", nil)
	require.NoError(t, err)

	driver, rel, err := reg.Resolve("/mnt/data/file.txt")
	require.NoError(t, err)
	assert.Equal(t, "data-fs", driver.Name())
	assert.Equal(t, "file.txt", rel)

	driver, rel, err = reg.Resolve("/etc/config")
	require.NoError(t, err)
	assert.Equal(t, "root-fs", driver.Name())
	assert.Equal(t, "etc/config", rel)
}

func TestResolveWithNoMountsFails(t *testing.T) {
	reg := fsregistry.New()
	_, _, err := reg.Resolve("/anything")
	assert.Error(t, err)
}

func TestUnmountThenResolveFails(t *testing.T) {
	reg := fsregistry.New()
	require.NoError(t, reg.Register("root-fs", stubDriver{name: "root-fs"}))
	dev := capability.NewMemBlockDevice(4096, 4)
	_, err := reg.Mount("root-fs", dev, "/", nil)
	require.NoError(t, err)

	require.NoError(t, reg.Unmount("/"))
	_, _, err = reg.Resolve("/x")
	assert.Error(t, err)
}

func TestDoubleMountSamePointFails(t *testing.T) {
	reg := fsregistry.New()
	require.NoError(t, reg.Register("root-fs", stubDriver{name: "root-fs"}))
	dev := capability.NewMemBlockDevice(4096, 4)
	_, err := reg.Mount("root-fs", dev, "/mnt", nil)
	require.NoError(t, err)
	_, err = reg.Mount("root-fs", dev, "/mnt", nil)
	assert.Error(t, err)
}
