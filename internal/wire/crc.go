package wire

import "hash/crc32"

// CRC32 computes the journal's record checksum: reflected polynomial
// 0xEDB88320, initial 0xFFFFFFFF, final XOR 0xFFFFFFFF. That is the
// standard CRC-32 (IEEE 802.3) variant, so crc32.ChecksumIEEE computes
// it exactly.
func CRC32(b []byte) uint32 {
	return crc32.ChecksumIEEE(b)
}
