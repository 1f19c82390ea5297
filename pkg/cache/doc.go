// Package cache implements the block/inode cache: a single generic
// keyed dirty cache parametrized by key type, with the block and inode
// caches as its two instantiations.
//
// The cache holds opaque byte payloads; it never parses the bytes it
// stores, so a driver's serialized inode image and a raw device block
// go through the same machinery. Eviction is LRU-by-idle restricted to
// entries with no outstanding handle; dirty entries are flushed through
// a caller-supplied write-back function before eviction. One map plus
// an intrusive doubly-linked LRU list, rather than a sharded design,
// because eviction needs a single least-recently-used scan across the
// whole cache.
package cache
