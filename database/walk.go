package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

type chunkScan struct {
	end        uint64
	liveBlocks int64
	liveBytes  int64
	freeBlocks int64 // indexable free blocks only
	freeBytes  int64
	free       [][2]uint64 // (offset, size) of indexable free blocks, rebuild only
}

// scanChunk walks the block chain in [start, end). With stopAtZero the walk
// ends at the first all-zero block header (never written space).
func (db *Database) scanChunk(start, end uint64, stopAtZero, collect, checkIndex bool) (chunkScan, error) {
	res := chunkScan{}
	off := start
	for off < end {
		bs, state, _ := db.blockHeader(off)
		if stopAtZero && bs == 0 && state == 0 {
			break
		}
		if bs < BlockHeaderSize || bs%Alignment != 0 || off+bs > end {
			return res, db.corrupt("walk", Address(off+BlockHeaderSize), nil, "invalid block size %d (chain ends at %#x)", bs, end)
		}
		switch state {
		case stateAllocated:
			res.liveBlocks++
			res.liveBytes += int64(bs)
		case stateFree:
			if bs >= MinBlockSize {
				res.freeBlocks++
				res.freeBytes += int64(bs)
				if collect {
					res.free = append(res.free, [2]uint64{off, bs})
				}
				if checkIndex && !db.free.contains(off, bs) {
					return res, db.corrupt("walk", Address(off+BlockHeaderSize), nil, "free block of %d bytes missing from free index", bs)
				}
			}
		default:
			return res, db.corrupt("walk", Address(off+BlockHeaderSize), nil, "invalid block state %#04x", state)
		}
		off += bs
	}
	res.end = off
	return res, nil
}

func (db *Database) chunkBounds(i uint64) (start, end uint64) {
	start = i * db.chunkSize
	end = start + db.chunkSize
	if i == 0 {
		start = HeaderSize
	}
	return start, end
}

// rebuild reconstructs the free index and counters by walking every chunk.
// After an unclean shutdown the high-water mark is recovered from the walk.
func (db *Database) rebuild(recovering bool) error {
	n := uint64(len(*db.chunks.Load()))
	limit := db.hdr.highWater
	if !recovering && (limit < HeaderSize || limit > n*db.chunkSize) {
		return db.corrupt("open", Null, nil, "high water mark %#x outside file of %d chunks", limit, n)
	}

	db.free.reset()
	var live, liveBytes, free, freeBytes int64
	hw := uint64(HeaderSize)
	for i := uint64(0); i < n; i++ {
		start, end := db.chunkBounds(i)
		if !recovering {
			if start >= limit {
				break
			}
			end = min(end, limit)
		}
		res, err := db.scanChunk(start, end, recovering, true, false)
		if err != nil {
			return err
		}
		for _, b := range res.free {
			db.free.add(b[0], b[1])
		}
		live += res.liveBlocks
		liveBytes += res.liveBytes
		free += res.freeBlocks
		freeBytes += res.freeBytes
		hw = res.end
		if res.end < end {
			break
		}
	}
	if !recovering && hw != limit {
		return db.corrupt("open", Address(hw), nil, "block chain ends at %#x, header records %#x", hw, limit)
	}

	db.highWater.Store(hw)
	db.liveBlocks.Store(live)
	db.liveBytes.Store(liveBytes)
	db.freeBlocks.Store(free)
	db.freeBytes.Store(freeBytes)
	return nil
}

// Walk calls fn for every block below the high-water mark in address order.
// It must not run concurrently with Allocate or Free, and fn must not
// allocate or free.
func (db *Database) Walk(fn func(Block) error) error {
	if err := db.check(); err != nil {
		return err
	}
	hw := db.highWater.Load()
	n := uint64(len(*db.chunks.Load()))
	for i := uint64(0); i < n; i++ {
		start, end := db.chunkBounds(i)
		if start >= hw {
			break
		}
		end = min(end, hw)
		for off := start; off < end; {
			bs, state, kind := db.blockHeader(off)
			if bs < BlockHeaderSize || off+bs > end {
				return db.corrupt("walk", Address(off+BlockHeaderSize), nil, "invalid block size %d", bs)
			}
			if state != stateAllocated && state != stateFree {
				return db.corrupt("walk", Address(off+BlockHeaderSize), nil, "invalid block state %#04x", state)
			}
			if bs >= MinBlockSize {
				b := Block{Addr: Address(off + BlockHeaderSize), Size: int(bs - BlockHeaderSize), Kind: kind, Free: state == stateFree}
				if err := fn(b); err != nil {
					return err
				}
			}
			off += bs
		}
	}
	return nil
}

// Validate checks the header and the block chain of every chunk in parallel
// and cross-checks the free index and counters. A successful validation
// clears a sticky corruption error.
func (db *Database) Validate(ctx context.Context) error {
	if db.closed.Load() {
		return ErrClosed
	}
	if err := db.opts.Resources.AcquireBackground(ctx); err != nil {
		return err
	}
	defer db.opts.Resources.ReleaseBackground()

	db.mu.Lock()
	defer db.mu.Unlock()

	begin := time.Now()
	if !db.opts.ReadOnly {
		db.writeHeader()
	}
	if _, err := decodeHeader(db.raw(0, HeaderSize)); err != nil {
		if ce, ok := err.(*CorruptionError); ok {
			return db.corrupt("validate", Null, ce.Err, "%s", ce.Reason)
		}
		return err
	}

	hw := db.highWater.Load()
	n := uint64(len(*db.chunks.Load()))
	results := make([]chunkScan, n)
	ends := make([]uint64, n)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(db.opts.ValidateWorkers)
	for i := uint64(0); i < n; i++ {
		start, end := db.chunkBounds(i)
		if start >= hw {
			break
		}
		end = min(end, hw)
		ends[i] = end
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := db.scanChunk(start, end, false, false, true)
			results[i] = res
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var live, liveBytes, free, freeBytes int64
	for i := range results {
		if ends[i] == 0 {
			continue
		}
		if results[i].end != ends[i] {
			return db.corrupt("validate", Address(results[i].end), nil, "chunk %d chain ends at %#x, want %#x", i, results[i].end, ends[i])
		}
		live += results[i].liveBlocks
		liveBytes += results[i].liveBytes
		free += results[i].freeBlocks
		freeBytes += results[i].freeBytes
	}
	if live != db.liveBlocks.Load() || liveBytes != db.liveBytes.Load() {
		return db.corrupt("validate", Null, nil, "live blocks %d/%d bytes, counters report %d/%d", live, liveBytes, db.liveBlocks.Load(), db.liveBytes.Load())
	}
	if free != db.free.blocks || freeBytes != db.free.bytes {
		return db.corrupt("validate", Null, nil, "free blocks %d/%d bytes, index holds %d/%d", free, freeBytes, db.free.blocks, db.free.bytes)
	}

	if prev := db.fatal.Swap(nil); prev != nil {
		db.logger.Warn("cleared corruption after successful validation", slog.String("previous", prev.Error()))
	}
	db.logger.Info("validated store",
		slog.Uint64("chunks", n),
		slog.Int64("live_blocks", live),
		slog.Int64("free_blocks", free),
		slog.Duration("elapsed", time.Since(begin)),
	)
	return nil
}

// WriteImage writes the header followed by every byte below the high-water
// mark to fn, chunk by chunk. The header copy is marked clean. It must not
// run concurrently with Allocate or Free.
func (db *Database) WriteImage(fn func([]byte) error) (int64, error) {
	if err := db.check(); err != nil {
		return 0, err
	}
	db.mu.Lock()
	defer db.mu.Unlock()

	hdr := db.hdr
	hdr.flags &^= flagDirty
	hdr.highWater = db.highWater.Load()
	buf := make([]byte, HeaderSize)
	hdr.encode(buf)
	if err := fn(buf); err != nil {
		return 0, err
	}

	written := int64(HeaderSize)
	hw := hdr.highWater
	for i := uint64(0); i < uint64(len(*db.chunks.Load())); i++ {
		start, end := db.chunkBounds(i)
		if start >= hw {
			break
		}
		end = min(end, hw)
		if err := fn(db.raw(start, end-start)); err != nil {
			return written, fmt.Errorf("database: write image: %w", err)
		}
		written += int64(end - start)
	}
	return written, nil
}
