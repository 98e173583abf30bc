package database

import "fmt"

// Address is the file-relative offset of a record's first byte.
//
// Addresses are stable for the lifetime of a record and never reused while
// the record is live. The zero Address is Null.
type Address uint64

// Null is the null address. No record is ever allocated at Null.
const Null Address = 0

// IsNull reports whether a is the null address.
func (a Address) IsNull() bool {
	return a == Null
}

// Add returns a displaced by off bytes.
func (a Address) Add(off int) Address {
	return Address(int64(a) + int64(off))
}

func (a Address) String() string {
	return fmt.Sprintf("%#x", uint64(a))
}

const (
	// HeaderSize is the size of the store header at the start of chunk 0.
	HeaderSize = 64
	// BlockHeaderSize precedes every record: size(4) state(2) kind(2).
	BlockHeaderSize = 8
	// Alignment of every block and record address.
	Alignment = 8
	// MinBlockSize is the smallest block, header included, that can hold a record.
	MinBlockSize = 16

	// DefaultChunkSize is the default mapping granularity (1 MiB).
	DefaultChunkSize = 1 << 20
	// MinChunkSize keeps chunk offsets page aligned on every supported platform.
	MinChunkSize = 1 << 16
	// MaxChunkSize bounds chunks so block sizes fit into the 32-bit size field.
	MaxChunkSize = 1 << 30

	// FormatVersion is the on-disk format written by this package.
	FormatVersion = 1
)

const (
	stateAllocated uint16 = 0xA10C
	stateFree      uint16 = 0xF4EE
)

// blockSizeFor returns the block size (header included) needed for a record of size bytes.
func blockSizeFor(size int) (uint64, error) {
	if size < 0 {
		return 0, fmt.Errorf("database: negative record size %d", size)
	}
	need := uint64(size) + BlockHeaderSize
	need = (need + Alignment - 1) &^ (Alignment - 1)
	if need < MinBlockSize {
		need = MinBlockSize
	}
	return need, nil
}

// Block describes one block of the address space.
type Block struct {
	// Addr is the record address (first payload byte).
	Addr Address
	// Size is the payload capacity in bytes.
	Size int
	// Kind is the record kind id stored with the block (0 for raw blobs).
	Kind uint16
	// Free reports whether the block is on the free list.
	Free bool
}
