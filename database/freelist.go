package database

import (
	"slices"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

// freeIndex tracks free blocks by exact block size. Each size class holds the
// block offsets in a roaring bitmap so the lowest-address block of a class is
// found in O(1).
type freeIndex struct {
	classes map[uint64]*roaring64.Bitmap
	sizes   []uint64 // sorted sizes with a non-empty class
	blocks  int64
	bytes   int64
}

func newFreeIndex() *freeIndex {
	return &freeIndex{classes: make(map[uint64]*roaring64.Bitmap)}
}

func (f *freeIndex) add(off, size uint64) {
	bm, ok := f.classes[size]
	if !ok {
		bm = roaring64.New()
		f.classes[size] = bm
	}
	if bm.IsEmpty() {
		i, _ := slices.BinarySearch(f.sizes, size)
		f.sizes = slices.Insert(f.sizes, i, size)
	}
	if !bm.Contains(off) {
		bm.Add(off)
		f.blocks++
		f.bytes += int64(size)
	}
}

func (f *freeIndex) remove(off, size uint64) bool {
	bm, ok := f.classes[size]
	if !ok || !bm.Contains(off) {
		return false
	}
	bm.Remove(off)
	f.blocks--
	f.bytes -= int64(size)
	if bm.IsEmpty() {
		if i, found := slices.BinarySearch(f.sizes, size); found {
			f.sizes = slices.Delete(f.sizes, i, i+1)
		}
	}
	return true
}

// take removes and returns the lowest-address block of the smallest size
// class that can hold need bytes.
func (f *freeIndex) take(need uint64) (off, size uint64, ok bool) {
	i, _ := slices.BinarySearch(f.sizes, need)
	if i == len(f.sizes) {
		return 0, 0, false
	}
	size = f.sizes[i]
	off = f.classes[size].Minimum()
	f.remove(off, size)
	return off, size, true
}

func (f *freeIndex) contains(off, size uint64) bool {
	bm, ok := f.classes[size]
	return ok && bm.Contains(off)
}

func (f *freeIndex) reset() {
	clear(f.classes)
	f.sizes = f.sizes[:0]
	f.blocks = 0
	f.bytes = 0
}
