package database

import (
	"encoding/binary"
	"fmt"
)

// Allocate reserves a zero-filled record of size bytes tagged with kind and
// returns its address. The record never overlaps another live record.
//
// Free blocks are reused first fit: the lowest-address block of the smallest
// adequate size class, split when the remainder can hold another block.
// Otherwise the record is appended at the high-water mark, growing the store
// by one chunk when needed.
func (db *Database) Allocate(size int, kind uint16) (Address, error) {
	if err := db.checkWritable(); err != nil {
		return Null, err
	}
	need, err := blockSizeFor(size)
	if err != nil {
		return Null, err
	}
	if need > db.chunkSize {
		return Null, fmt.Errorf("%w: %d bytes, max %d", ErrTooLarge, size, db.MaxRecordSize())
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	off, bs, ok := db.free.take(need)
	if ok {
		db.freeBlocks.Add(-1)
		db.freeBytes.Add(-int64(bs))
		if rem := bs - need; rem >= MinBlockSize {
			db.putBlockHeader(off+need, rem, stateFree, 0)
			db.free.add(off+need, rem)
			db.freeBlocks.Add(1)
			db.freeBytes.Add(int64(rem))
			bs = need
		}
	} else {
		off, err = db.appendBlock(need)
		if err != nil {
			return Null, err
		}
		bs = need
	}

	db.putBlockHeader(off, bs, stateAllocated, kind)
	clear(db.raw(off+BlockHeaderSize, bs-BlockHeaderSize))
	db.liveBlocks.Add(1)
	db.liveBytes.Add(int64(bs))

	return Address(off + BlockHeaderSize), nil
}

// appendBlock carves need bytes at the high-water mark. Caller holds mu.
func (db *Database) appendBlock(need uint64) (uint64, error) {
	hw := db.highWater.Load()
	chunkEnd := (hw | (db.chunkSize - 1)) + 1
	start := hw
	if hw+need > chunkEnd {
		start = chunkEnd
	}

	for start>>db.chunkLog2 >= uint64(len(*db.chunks.Load())) {
		if err := db.grow(); err != nil {
			db.logger.Warn("store cannot grow", "error", err)
			return 0, err
		}
	}

	// The tail of the previous chunk becomes a free block so the block chain
	// of every chunk stays contiguous.
	if start != hw {
		rem := chunkEnd - hw
		db.putBlockHeader(hw, rem, stateFree, 0)
		if rem >= MinBlockSize {
			db.free.add(hw, rem)
			db.freeBlocks.Add(1)
			db.freeBytes.Add(int64(rem))
		}
	}

	db.highWater.Store(start + need)
	return start, nil
}

// Free releases the record at addr, which must have been allocated with size
// bytes. Releasing anything else (a free block, a wrong size, an address that
// is not a record) is reported as corruption.
func (db *Database) Free(addr Address, size int) error {
	if err := db.checkWritable(); err != nil {
		return err
	}
	need, err := blockSizeFor(size)
	if err != nil {
		return err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	off, err := db.blockOffset("free", addr)
	if err != nil {
		return err
	}
	bs, state, _ := db.blockHeader(off)
	if state != stateAllocated {
		return db.corrupt("free", addr, nil, "block is not allocated (state %#04x)", state)
	}
	if bs < need || bs >= need+MinBlockSize {
		return db.corrupt("free", addr, nil, "size mismatch: block holds %d bytes, released as %d", bs-BlockHeaderSize, size)
	}
	db.liveBlocks.Add(-1)
	db.liveBytes.Add(-int64(bs))

	// Coalesce with following free blocks in the same chunk.
	hw := db.highWater.Load()
	for next := off + bs; next < hw && next&(db.chunkSize-1) != 0; next = off + bs {
		nbs, nstate, _ := db.blockHeader(next)
		if nstate != stateFree || nbs < BlockHeaderSize {
			break
		}
		if db.free.remove(next, nbs) {
			db.freeBlocks.Add(-1)
			db.freeBytes.Add(-int64(nbs))
		}
		bs += nbs
	}

	db.putBlockHeader(off, bs, stateFree, 0)
	db.free.add(off, bs)
	db.freeBlocks.Add(1)
	db.freeBytes.Add(int64(bs))
	return nil
}

// Block returns the block holding the record at addr.
func (db *Database) Block(addr Address) (Block, error) {
	if err := db.check(); err != nil {
		return Block{}, err
	}
	off, err := db.blockOffset("block", addr)
	if err != nil {
		return Block{}, err
	}
	bs, state, kind := db.blockHeader(off)
	if state != stateAllocated && state != stateFree {
		return Block{}, db.corrupt("block", addr, nil, "invalid block state %#04x", state)
	}
	if bs < MinBlockSize || off+bs > db.highWater.Load() {
		return Block{}, db.corrupt("block", addr, nil, "invalid block size %d", bs)
	}
	return Block{Addr: addr, Size: int(bs - BlockHeaderSize), Kind: kind, Free: state == stateFree}, nil
}

// blockOffset validates a record address and returns its block offset.
func (db *Database) blockOffset(op string, addr Address) (uint64, error) {
	a := uint64(addr)
	if a < HeaderSize+BlockHeaderSize || a%Alignment != 0 || a+MinBlockSize-BlockHeaderSize > db.highWater.Load() {
		return 0, db.corrupt(op, addr, ErrOutOfRange, "not a record address (high water %#x)", db.highWater.Load())
	}
	if a&(db.chunkSize-1) < BlockHeaderSize {
		return 0, db.corrupt(op, addr, ErrOutOfRange, "block header crosses chunk boundary")
	}
	return a - BlockHeaderSize, nil
}

func (db *Database) blockHeader(off uint64) (size uint64, state, kind uint16) {
	b := db.raw(off, BlockHeaderSize)
	return uint64(binary.LittleEndian.Uint32(b[0:4])), binary.LittleEndian.Uint16(b[4:6]), binary.LittleEndian.Uint16(b[6:8])
}

func (db *Database) putBlockHeader(off, size uint64, state, kind uint16) {
	b := db.raw(off, BlockHeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], uint32(size))
	binary.LittleEndian.PutUint16(b[4:6], state)
	binary.LittleEndian.PutUint16(b[6:8], kind)
}

// raw returns the mapped bytes [off, off+n) without checks. The range must
// lie inside one mapped chunk.
func (db *Database) raw(off, n uint64) []byte {
	chunks := *db.chunks.Load()
	c := chunks[off>>db.chunkLog2].Bytes()
	i := off & (db.chunkSize - 1)
	return c[i : i+n : i+n]
}
