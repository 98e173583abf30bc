// Package conv checks integer narrowing where on-disk widths meet Go int.
//
// Record sizes, string lengths and bucket counts are uint32 in the store;
// back-reference and intern counts are uint64. Values read from a mapped file
// may be corrupt, and values from callers may not fit, so every crossing goes
// through these helpers and fails with ErrOverflow instead of wrapping.
//
// Conversions bounded by construction (field offsets of a finalized layout,
// loop indices below a checked length) use plain casts.
package conv
