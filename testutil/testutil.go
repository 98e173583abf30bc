package testutil

import (
	"math/rand"
	"sync"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// IntRange returns a pseudo-random number in [lo,hi].
func (r *RNG) IntRange(lo, hi int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo + r.rand.Intn(hi-lo+1)
}

// Bool returns a pseudo-random bool.
func (r *RNG) Bool() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(2) == 1
}

// Uint64 returns a pseudo-random uint64.
func (r *RNG) Uint64() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Uint64()
}

// Float64 returns a pseudo-random number in [0.0,1.0).
func (r *RNG) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float64()
}

// Perm returns a pseudo-random permutation of [0,n).
func (r *RNG) Perm(n int) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Perm(n)
}

// Bytes returns n pseudo-random bytes.
func (r *RNG) Bytes(n int) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := make([]byte, n)
	r.rand.Read(b)
	return b
}

const identAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789_$"

// Identifier returns a random identifier-like string with length in [1,maxLen].
func (r *RNG) Identifier(maxLen int) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 1 + r.rand.Intn(maxLen)
	b := make([]byte, n)
	for i := range b {
		b[i] = identAlphabet[r.rand.Intn(len(identAlphabet))]
	}
	return string(b)
}

// TypeSignature returns a random reference type signature such as
// "Lcom/acme/Widget;".
func (r *RNG) TypeSignature() string {
	parts := 1 + r.Intn(3)
	sig := "L"
	for i := 0; i < parts; i++ {
		if i > 0 {
			sig += "/"
		}
		sig += r.Identifier(12)
	}
	return sig + ";"
}

// Sizes returns n random sizes in [1,maxSize], skewed towards small records.
func (r *RNG) Sizes(n, maxSize int) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, n)
	for i := range out {
		if r.rand.Intn(8) == 0 {
			out[i] = 1 + r.rand.Intn(maxSize)
		} else {
			out[i] = 1 + r.rand.Intn(min(64, maxSize))
		}
	}
	return out
}
