package journal

import (
	"github.com/menchan-Rub/AetherOS-sub000/internal/wire"
	"github.com/menchan-Rub/AetherOS-sub000/pkg/kerrors"
)

// RecordKind tags one on-device journal record.
type RecordKind uint8

const (
	KindBegin      RecordKind = 1
	KindMetadata   RecordKind = 2
	KindData       RecordKind = 3
	KindCommit     RecordKind = 4
	KindCheckpoint RecordKind = 5
)

const (
	magic = 0x41455448 // "AETH"

	// HeaderSize is the on-device journal header size. The named fields
	// only sum to 52 bytes; the reserved tail pads the header out to a
	// full 64 so it stays cache-line sized.
	HeaderSize = 64

	headerReservedSize = HeaderSize - (4 + 4 + 4 + 8 + 4 + 4 + 8)

	flagDirty uint32 = 1 << 0

	// recordFixedSize is kind+tx_id+device_id+block_number+payload_size+crc32.
	recordFixedSize = 1 + 8 + 8 + 8 + 4 + 4
)

// Header is the journal's on-device superblock.
type Header struct {
	Version           uint32
	JournalSizeBytes  uint64
	BlockSize         uint32
	Dirty             bool
	LastCheckpointSeq uint64
}

// Encode serializes the header to exactly HeaderSize bytes, with the
// CRC32 computed over bytes [4..64) while the crc32 field itself is zero.
func (h Header) Encode() []byte {
	buf := make([]byte, HeaderSize)
	wire.PutU32(buf[0:4], magic)
	// buf[4:8] crc32, filled below
	wire.PutU32(buf[8:12], h.Version)
	wire.PutU64(buf[12:20], h.JournalSizeBytes)
	wire.PutU32(buf[20:24], h.BlockSize)
	var flags uint32
	if h.Dirty {
		flags |= flagDirty
	}
	wire.PutU32(buf[24:28], flags)
	wire.PutU64(buf[28:36], h.LastCheckpointSeq)
	// buf[36:64] reserved, left zero
	crc := wire.CRC32(buf[4:HeaderSize])
	wire.PutU32(buf[4:8], crc)
	return buf
}

// DecodeHeader parses and validates a header block (magic + CRC32).
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, kerrors.New("journal.decode_header", kerrors.BadMagic, "header block too short")
	}
	if wire.U32(buf[0:4]) != magic {
		return Header{}, kerrors.New("journal.decode_header", kerrors.BadMagic, "bad journal magic")
	}
	wantCRC := wire.U32(buf[4:8])
	check := make([]byte, HeaderSize)
	copy(check, buf[:HeaderSize])
	wire.PutU32(check[4:8], 0)
	gotCRC := wire.CRC32(check[4:HeaderSize])
	if wantCRC != gotCRC {
		return Header{}, kerrors.New("journal.decode_header", kerrors.CorruptedFs, "header CRC32 mismatch")
	}
	flags := wire.U32(buf[24:28])
	return Header{
		Version:           wire.U32(buf[8:12]),
		JournalSizeBytes:  wire.U64(buf[12:20]),
		BlockSize:         wire.U32(buf[20:24]),
		Dirty:             flags&flagDirty != 0,
		LastCheckpointSeq: wire.U64(buf[28:36]),
	}, nil
}

// Record is one on-device journal record. BlockNumber is 0 for
// Begin/Commit/Checkpoint.
type Record struct {
	Kind        RecordKind
	TxID        uint64
	DeviceID    uint64
	BlockNumber uint64
	Payload     []byte
}

// Encode serializes one record: fixed header then payload bytes.
func (r Record) Encode() []byte {
	buf := make([]byte, recordFixedSize+len(r.Payload))
	buf[0] = byte(r.Kind)
	wire.PutU64(buf[1:9], r.TxID)
	wire.PutU64(buf[9:17], r.DeviceID)
	wire.PutU64(buf[17:25], r.BlockNumber)
	wire.PutU32(buf[25:29], uint32(len(r.Payload)))
	wire.PutU32(buf[29:33], wire.CRC32(r.Payload))
	copy(buf[recordFixedSize:], r.Payload)
	return buf
}

// decodeRecord parses one record from the front of buf, returning the
// record and the number of bytes consumed. It returns ok=false (not an
// error) when buf doesn't yet hold a complete record, so callers can
// keep reading more blocks; it returns an error only for a CRC mismatch,
// which truncates the transaction and everything after it (the caller
// stops replaying, it does not treat this as fatal to the journal
// itself).
func decodeRecord(buf []byte) (rec Record, consumed int, ok bool, err error) {
	if len(buf) < recordFixedSize {
		return Record{}, 0, false, nil
	}
	payloadSize := wire.U32(buf[25:29])
	total := recordFixedSize + int(payloadSize)
	if len(buf) < total {
		return Record{}, 0, false, nil
	}
	payload := make([]byte, payloadSize)
	copy(payload, buf[recordFixedSize:total])
	wantCRC := wire.U32(buf[29:33])
	if wire.CRC32(payload) != wantCRC {
		return Record{}, total, true, kerrors.New("journal.decode_record", kerrors.CorruptedFs, "record CRC32 mismatch")
	}
	rec = Record{
		Kind:        RecordKind(buf[0]),
		TxID:        wire.U64(buf[1:9]),
		DeviceID:    wire.U64(buf[9:17]),
		BlockNumber: wire.U64(buf[17:25]),
		Payload:     payload,
	}
	return rec, total, true, nil
}
