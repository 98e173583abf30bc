package hash

import "github.com/cespare/xxhash/v2"

// Bytes returns the 64-bit xxHash of b.
func Bytes(b []byte) uint64 {
	return xxhash.Sum64(b)
}

// String returns the 64-bit xxHash of s without copying it.
func String(s string) uint64 {
	return xxhash.Sum64String(s)
}

// Bucket maps h onto one of n buckets. n must be positive.
func Bucket(h uint64, n uint32) uint32 {
	return uint32(h % uint64(n))
}
