// Package fsregistry implements the Filesystem Registry: registers
// named FilesystemDriver implementations,
// mounts one onto a device at a mountpoint, and resolves paths to
// (driver, relative_path) by longest-prefix match on the mountpoint.
package fsregistry
