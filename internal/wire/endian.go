// Package wire contains the little-endian encode/decode helpers and the
// CRC32 variant used by the journal's on-device record format.
package wire

import "encoding/binary"

// U16 reads a little-endian uint16 from b. Returns 0 when b is too short.
func U16(b []byte) uint16 {
	if len(b) < 2 {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

// U32 reads a little-endian uint32 from b. Returns 0 when b is too short.
func U32(b []byte) uint32 {
	if len(b) < 4 {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

// U64 reads a little-endian uint64 from b. Returns 0 when b is too short.
func U64(b []byte) uint64 {
	if len(b) < 8 {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

// PutU32 writes a little-endian uint32 into b[:4].
func PutU32(b []byte, v uint32) {
	binary.LittleEndian.PutUint32(b, v)
}

// PutU64 writes a little-endian uint64 into b[:8].
func PutU64(b []byte, v uint64) {
	binary.LittleEndian.PutUint64(b, v)
}

// PutU16 writes a little-endian uint16 into b[:2].
func PutU16(b []byte, v uint16) {
	binary.LittleEndian.PutUint16(b, v)
}
