// Package testutil provides testing utilities for ndb.
//
// This package is intended for use in tests and benchmarks only.
//
// # Deterministic Randomness
//
//	rng := testutil.NewRNG(4711)
//	sizes := rng.Sizes(1000, 4096)   // record sizes for allocate/free runs
//	sig := rng.TypeSignature()       // "Lcom/acme/Widget;"
//
// Every generator is seeded, so a failing property test is reproduced by
// rerunning it with the same seed.
package testutil
