package persistence

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

const blockHeaderSize = 8

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func putZstdEncoder(enc *zstd.Encoder) {
	zstdEncoderPool.Put(enc)
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

func putZstdDecoder(dec *zstd.Decoder) {
	zstdDecoderPool.Put(dec)
}

// compress returns the compressed form of data, or nil when compression does
// not save at least a tenth of the block.
func compress(data []byte, c Compression) ([]byte, error) {
	var out []byte
	switch c {
	case CompressionNone:
		return nil, nil
	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, err
		}
		out = buf[:n]
	case CompressionZSTD:
		enc := getZstdEncoder()
		out = enc.EncodeAll(data, nil)
		putZstdEncoder(enc)
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidCompression, c)
	}
	if len(out) == 0 || float64(len(out)) > float64(len(data))*0.9 {
		return nil, nil
	}
	return out, nil
}

func decompress(data []byte, size uint32, c Compression) ([]byte, error) {
	switch c {
	case CompressionLZ4:
		out := make([]byte, size)
		n, err := lz4.UncompressBlock(data, out)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidBlock, err)
		}
		if uint32(n) != size {
			return nil, fmt.Errorf("%w: decompressed %d bytes, want %d", ErrInvalidBlock, n, size)
		}
		return out, nil
	case CompressionZSTD:
		dec := getZstdDecoder()
		defer putZstdDecoder(dec)
		out, err := dec.DecodeAll(data, make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidBlock, err)
		}
		if uint32(len(out)) != size {
			return nil, fmt.Errorf("%w: decompressed %d bytes, want %d", ErrInvalidBlock, len(out), size)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: compressed block in a %s snapshot", ErrInvalidBlock, c)
	}
}

// blockWriter splits a stream into compressed blocks.
type blockWriter struct {
	w           io.Writer
	compression Compression
	blockSize   int
	buf         []byte
}

func newBlockWriter(w io.Writer, c Compression, blockSize int) *blockWriter {
	return &blockWriter{w: w, compression: c, blockSize: blockSize, buf: make([]byte, 0, blockSize)}
}

func (b *blockWriter) Write(p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		n := min(len(p), b.blockSize-len(b.buf))
		b.buf = append(b.buf, p[:n]...)
		p = p[n:]
		total += n
		if len(b.buf) == b.blockSize {
			if err := b.flush(); err != nil {
				return total, err
			}
		}
	}
	return total, nil
}

func (b *blockWriter) flush() error {
	if len(b.buf) == 0 {
		return nil
	}
	packed, err := compress(b.buf, b.compression)
	if err != nil {
		return err
	}
	var hdr [blockHeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[0:], uint32(len(b.buf)))
	binary.LittleEndian.PutUint32(hdr[4:], uint32(len(packed)))
	if _, err := b.w.Write(hdr[:]); err != nil {
		return err
	}
	data := b.buf
	if packed != nil {
		data = packed
	}
	if _, err := b.w.Write(data); err != nil {
		return err
	}
	b.buf = b.buf[:0]
	return nil
}

// Close flushes the pending block and writes the end marker.
func (b *blockWriter) Close() error {
	if err := b.flush(); err != nil {
		return err
	}
	var end [blockHeaderSize]byte
	_, err := b.w.Write(end[:])
	return err
}

// blockReader reassembles the stream written by a blockWriter.
type blockReader struct {
	r           io.Reader
	compression Compression
	maxBlock    uint32
	cur         []byte
	done        bool
}

func newBlockReader(r io.Reader, c Compression, maxBlock uint32) *blockReader {
	return &blockReader{r: r, compression: c, maxBlock: maxBlock}
}

func (b *blockReader) Read(p []byte) (int, error) {
	for len(b.cur) == 0 {
		if b.done {
			return 0, io.EOF
		}
		if err := b.next(); err != nil {
			return 0, err
		}
	}
	n := copy(p, b.cur)
	b.cur = b.cur[n:]
	return n, nil
}

func (b *blockReader) next() error {
	var hdr [blockHeaderSize]byte
	if _, err := io.ReadFull(b.r, hdr[:]); err != nil {
		return fmt.Errorf("%w: block header: %w", ErrInvalidBlock, unexpected(err))
	}
	size := binary.LittleEndian.Uint32(hdr[0:])
	packed := binary.LittleEndian.Uint32(hdr[4:])
	if size == 0 {
		if packed != 0 {
			return fmt.Errorf("%w: empty block with %d compressed bytes", ErrInvalidBlock, packed)
		}
		b.done = true
		return nil
	}
	if size > b.maxBlock || packed > b.maxBlock {
		return fmt.Errorf("%w: block of %d bytes exceeds %d", ErrInvalidBlock, max(size, packed), b.maxBlock)
	}

	n := size
	if packed != 0 {
		n = packed
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(b.r, data); err != nil {
		return fmt.Errorf("%w: block data: %w", ErrInvalidBlock, unexpected(err))
	}
	if packed == 0 {
		b.cur = data
		return nil
	}
	out, err := decompress(data, size, b.compression)
	if err != nil {
		return err
	}
	b.cur = out
	return nil
}

func unexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
