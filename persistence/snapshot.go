package persistence

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/hupe1980/ndb/database"
	"github.com/hupe1980/ndb/internal/resource"
)

// Options configures snapshot writing and reading.
type Options struct {
	// Compression of newly written snapshots. Readers take it from the file.
	Compression Compression
	// BlockSize is the amount of image data per block.
	BlockSize int
	// Resources throttles snapshot IO. Nil means unlimited.
	Resources *resource.Controller
}

// DefaultOptions returns zstd compression with DefaultBlockSize blocks.
func DefaultOptions() Options {
	return Options{
		Compression: CompressionZSTD,
		BlockSize:   DefaultBlockSize,
	}
}

// Option configures Options.
type Option func(*Options)

// WithCompression sets the compression of written snapshots.
func WithCompression(c Compression) Option {
	return func(o *Options) {
		o.Compression = c
	}
}

// WithBlockSize sets the block size of written snapshots.
func WithBlockSize(n int) Option {
	return func(o *Options) {
		o.BlockSize = n
	}
}

// WithResourceController throttles snapshot IO through rc.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *Options) {
		o.Resources = rc
	}
}

func applyOptions(optFns []Option) (Options, error) {
	opts := DefaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.BlockSize <= 0 || opts.BlockSize > MaxBlockSize {
		return opts, fmt.Errorf("persistence: block size %d out of range (0, %d]", opts.BlockSize, MaxBlockSize)
	}
	if opts.Compression > CompressionZSTD {
		return opts, fmt.Errorf("%w: %d", ErrInvalidCompression, opts.Compression)
	}
	return opts, nil
}

// Info describes a snapshot.
type Info struct {
	Compression Compression
	// ImageSize is the size of the uncompressed store image.
	ImageSize int64
	// Checksum is the CRC32C of the image.
	Checksum uint32
	// Size is the size of the snapshot stream.
	Size int64
	// Header is the store header contained in the image.
	Header database.HeaderInfo
}

// Write streams a snapshot of db to w. It must not run concurrently with
// writers of db.
func Write(ctx context.Context, w io.Writer, db *database.Database, optFns ...Option) (Info, error) {
	opts, err := applyOptions(optFns)
	if err != nil {
		return Info{}, err
	}

	wire := NewChecksumWriter(resource.NewRateLimitedWriter(ctx, w, opts.Resources))
	fh := FileHeader{
		Magic:       MagicNumber,
		Version:     Version,
		Compression: opts.Compression,
		BlockSize:   uint32(opts.BlockSize),
	}
	if err := binary.Write(wire, binary.LittleEndian, &fh); err != nil {
		return Info{}, err
	}

	info := Info{Compression: opts.Compression}
	bw := newBlockWriter(wire, opts.Compression, opts.BlockSize)
	img := NewChecksumWriter(bw)

	size, err := db.WriteImage(func(p []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if img.Len() == 0 {
			hdr, err := database.InspectHeader(p)
			if err != nil {
				return err
			}
			info.Header = hdr
		}
		_, err := img.Write(p)
		return err
	})
	if err != nil {
		return Info{}, err
	}
	if err := bw.Close(); err != nil {
		return Info{}, err
	}

	info.ImageSize = size
	info.Checksum = img.Sum()
	tr := Trailer{ImageSize: uint64(size), Checksum: info.Checksum, Magic: MagicNumber}
	if err := binary.Write(wire, binary.LittleEndian, &tr); err != nil {
		return Info{}, err
	}
	info.Size = wire.Len()
	return info, nil
}

// Read decodes a snapshot from r and writes the store image to w. The image
// is verified against the trailer only after it has been written; callers
// writing to a final destination use Restore instead.
func Read(ctx context.Context, r io.Reader, w io.Writer, optFns ...Option) (Info, error) {
	opts, err := applyOptions(optFns)
	if err != nil {
		return Info{}, err
	}
	rl := &countingReader{r: resource.NewRateLimitedReader(ctx, r, opts.Resources)}

	var fh FileHeader
	if err := binary.Read(rl, binary.LittleEndian, &fh); err != nil {
		return Info{}, fmt.Errorf("persistence: read header: %w", err)
	}
	if fh.Magic != MagicNumber {
		return Info{}, fmt.Errorf("%w: got 0x%08x", ErrInvalidMagic, fh.Magic)
	}
	if fh.Version != Version {
		return Info{}, fmt.Errorf("%w: got %d", ErrInvalidVersion, fh.Version)
	}
	if fh.Compression > CompressionZSTD {
		return Info{}, fmt.Errorf("%w: %d", ErrInvalidCompression, fh.Compression)
	}
	if fh.BlockSize == 0 || fh.BlockSize > MaxBlockSize {
		return Info{}, fmt.Errorf("%w: block size %d", ErrInvalidBlock, fh.BlockSize)
	}

	info := Info{Compression: fh.Compression}
	br := newBlockReader(rl, fh.Compression, fh.BlockSize)
	img := NewChecksumWriter(w)

	head := make([]byte, database.HeaderSize)
	if _, err := io.ReadFull(br, head); err != nil {
		return Info{}, fmt.Errorf("persistence: read store header: %w", unexpected(err))
	}
	if info.Header, err = database.InspectHeader(head); err != nil {
		return Info{}, err
	}
	if _, err := img.Write(head); err != nil {
		return Info{}, err
	}
	if _, err := io.Copy(img, &contextReader{ctx: ctx, r: br}); err != nil {
		return Info{}, err
	}

	var tr Trailer
	if err := binary.Read(rl, binary.LittleEndian, &tr); err != nil {
		return Info{}, fmt.Errorf("persistence: read trailer: %w", unexpected(err))
	}
	if tr.Magic != MagicNumber {
		return Info{}, fmt.Errorf("%w: trailer 0x%08x", ErrInvalidMagic, tr.Magic)
	}
	if int64(tr.ImageSize) != img.Len() || uint64(img.Len()) != info.Header.HighWater {
		return Info{}, fmt.Errorf("%w: read %d bytes, trailer %d, high water %d",
			ErrSizeMismatch, img.Len(), tr.ImageSize, info.Header.HighWater)
	}
	if tr.Checksum != img.Sum() {
		return Info{}, &ChecksumMismatchError{Expected: tr.Checksum, Actual: img.Sum()}
	}

	info.ImageSize = img.Len()
	info.Checksum = img.Sum()
	info.Size = rl.n
	return info, nil
}

// Verify reads a snapshot and checks its integrity without writing it
// anywhere.
func Verify(ctx context.Context, r io.Reader, optFns ...Option) (Info, error) {
	return Read(ctx, r, io.Discard, optFns...)
}

// Restore decodes a snapshot from r into a store file at path, replacing
// any existing file only after the snapshot was verified.
func Restore(ctx context.Context, r io.Reader, path string, optFns ...Option) (Info, error) {
	var info Info
	err := atomicWrite(path, func(f *os.File) error {
		buf := bufio.NewWriterSize(f, ioBufferSize)
		var err error
		if info, err = Read(ctx, r, buf, optFns...); err != nil {
			return err
		}
		if err := buf.Flush(); err != nil {
			return err
		}
		return f.Truncate(info.Header.FileSize())
	})
	if err != nil {
		return Info{}, err
	}
	return info, nil
}

// SaveFile atomically writes a snapshot of db to filename.
func SaveFile(ctx context.Context, filename string, db *database.Database, optFns ...Option) (Info, error) {
	var info Info
	err := SaveToFile(filename, func(w io.Writer) error {
		var err error
		info, err = Write(ctx, w, db, optFns...)
		return err
	})
	return info, err
}

// RestoreFile restores the snapshot file snapshot into a store at path.
func RestoreFile(ctx context.Context, snapshot, path string, optFns ...Option) (Info, error) {
	var info Info
	err := LoadFromFile(snapshot, func(r io.Reader) error {
		var err error
		info, err = Restore(ctx, r, path, optFns...)
		return err
	})
	return info, err
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
