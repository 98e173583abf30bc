package database

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"

	"github.com/hupe1980/ndb/internal/hash"
)

const headerMagic = "NDB1"

const flagDirty uint8 = 1 << 0

// header is the store header at offset 0 of chunk 0.
//
// Layout (little endian):
//
//	 0  magic          [4]byte "NDB1"
//	 4  format version uint16
//	 6  chunk log2     uint8
//	 7  flags          uint8
//	 8  schema version uint32
//	12  fingerprint    uint32
//	16  root           uint64
//	24  high water     uint64
//	32  store id       [16]byte
//	48  reserved       [12]byte
//	60  crc32c         uint32 over bytes [0, 60)
type header struct {
	formatVersion uint16
	chunkLog2     uint8
	flags         uint8
	schemaVersion uint32
	fingerprint   uint32
	root          Address
	highWater     uint64
	id            uuid.UUID
}

func (h *header) dirty() bool {
	return h.flags&flagDirty != 0
}

func (h *header) encode(b []byte) {
	_ = b[HeaderSize-1]
	copy(b[0:4], headerMagic)
	binary.LittleEndian.PutUint16(b[4:6], h.formatVersion)
	b[6] = h.chunkLog2
	b[7] = h.flags
	binary.LittleEndian.PutUint32(b[8:12], h.schemaVersion)
	binary.LittleEndian.PutUint32(b[12:16], h.fingerprint)
	binary.LittleEndian.PutUint64(b[16:24], uint64(h.root))
	binary.LittleEndian.PutUint64(b[24:32], h.highWater)
	copy(b[32:48], h.id[:])
	clear(b[48:60])
	binary.LittleEndian.PutUint32(b[60:64], hash.CRC32C(b[:60]))
}

func decodeHeader(b []byte) (header, error) {
	if len(b) < HeaderSize {
		return header{}, &CorruptionError{Op: "open", Reason: fmt.Sprintf("short header (%d bytes)", len(b))}
	}
	if string(b[0:4]) != headerMagic {
		return header{}, &CorruptionError{Op: "open", Reason: fmt.Sprintf("invalid magic %q", b[0:4])}
	}
	if stored, got := binary.LittleEndian.Uint32(b[60:64]), hash.CRC32C(b[:60]); stored != got {
		return header{}, &CorruptionError{Op: "open", Reason: fmt.Sprintf("header checksum mismatch: stored %08x, computed %08x", stored, got)}
	}

	var h header
	h.formatVersion = binary.LittleEndian.Uint16(b[4:6])
	h.chunkLog2 = b[6]
	h.flags = b[7]
	h.schemaVersion = binary.LittleEndian.Uint32(b[8:12])
	h.fingerprint = binary.LittleEndian.Uint32(b[12:16])
	h.root = Address(binary.LittleEndian.Uint64(b[16:24]))
	h.highWater = binary.LittleEndian.Uint64(b[24:32])
	copy(h.id[:], b[32:48])

	if h.formatVersion != FormatVersion {
		return h, &IncompatibleVersionError{Field: "format version", Stored: uint64(h.formatVersion), Expected: FormatVersion}
	}
	if h.chunkLog2 < 16 || h.chunkLog2 > 30 {
		return h, &CorruptionError{Op: "open", Reason: fmt.Sprintf("invalid chunk size 2^%d", h.chunkLog2)}
	}
	return h, nil
}

// HeaderInfo is the decoded store header.
type HeaderInfo struct {
	FormatVersion uint16
	ChunkSize     int
	SchemaVersion uint32
	Fingerprint   uint32
	Root          Address
	HighWater     uint64
	ID            uuid.UUID
	Clean         bool
}

// FileSize returns the size of a store file holding HighWater bytes.
func (h HeaderInfo) FileSize() int64 {
	cs := uint64(h.ChunkSize)
	return int64((h.HighWater + cs - 1) / cs * cs)
}

// InspectHeader decodes and verifies the first HeaderSize bytes of a store
// file or image.
func InspectHeader(b []byte) (HeaderInfo, error) {
	h, err := decodeHeader(b)
	if err != nil {
		return HeaderInfo{}, err
	}
	return HeaderInfo{
		FormatVersion: h.formatVersion,
		ChunkSize:     1 << h.chunkLog2,
		SchemaVersion: h.schemaVersion,
		Fingerprint:   h.fingerprint,
		Root:          h.root,
		HighWater:     h.highWater,
		ID:            h.id,
		Clean:         !h.dirty(),
	}, nil
}
