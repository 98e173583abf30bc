package persistence

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// MagicNumber identifies snapshot files (bytes "NDBS" on disk).
	MagicNumber = 0x5342444E
	// Version is the current snapshot format version.
	Version = 1

	// DefaultBlockSize is the amount of image data per compressed block.
	DefaultBlockSize = 4 << 20
	// MaxBlockSize bounds the block size accepted when reading.
	MaxBlockSize = 64 << 20
)

var (
	ErrInvalidMagic       = errors.New("persistence: invalid magic number")
	ErrInvalidVersion     = errors.New("persistence: unsupported version")
	ErrInvalidCompression = errors.New("persistence: unknown compression")
	ErrInvalidBlock       = errors.New("persistence: invalid block")
	ErrSizeMismatch       = errors.New("persistence: image size mismatch")
)

// Compression selects the block compression of a snapshot.
type Compression uint8

const (
	// CompressionNone stores blocks as is.
	CompressionNone Compression = 0
	// CompressionLZ4 uses LZ4 block compression.
	CompressionLZ4 Compression = 1
	// CompressionZSTD uses Zstandard.
	CompressionZSTD Compression = 2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

// ParseCompression parses "none", "lz4" or "zstd".
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZSTD, nil
	default:
		return CompressionNone, fmt.Errorf("%w: %q", ErrInvalidCompression, s)
	}
}

// FileHeader is the 32-byte header at the start of every snapshot.
type FileHeader struct {
	Magic       uint32
	Version     uint32
	Compression Compression
	Padding     [3]byte
	BlockSize   uint32
	Reserved    [16]byte
}

// Trailer closes a snapshot.
type Trailer struct {
	ImageSize uint64
	Checksum  uint32
	Magic     uint32
}
