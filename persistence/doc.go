// Package persistence writes and restores snapshots of a database.
//
// A snapshot is a portable copy of a store file: the store header followed by
// every byte below the high-water mark. The stream is split into blocks that
// are individually compressed (none, lz4 or zstd) and closed by a trailer
// carrying the image size and its CRC32C:
//
//	FileHeader  magic "NDBS", version, compression, block size
//	Block*      [uncompressed u32][compressed u32][data]
//	End         [0 u32][0 u32]
//	Trailer     [image size u64][crc32c u32][magic u32]
//
// A block whose compressed size is 0 is stored uncompressed. Restoring writes
// the image into a temporary file next to the target, pads it to whole
// chunks and renames it into place, so a failed restore never leaves a
// partial store behind.
package persistence
