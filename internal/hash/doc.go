// Package hash provides the hashing utilities used by the store.
//
// # CRC32-Castagnoli (CRC32C)
//
// Every checksum in ndb (store header, snapshot header and body, archive
// uploads) is CRC32C. Go's crc32 package uses SSE4.2 / ARM CRC instructions
// when available.
//
//	checksum := hash.CRC32C(data)
//
//	h := hash.NewCRC32C()
//	h.Write(chunk1)
//	h.Write(chunk2)
//	checksum := h.Sum32()
//
// # xxHash
//
// Intern tables place records into buckets with xxHash64, which is stable
// across processes and platforms, so a persisted bucket index stays valid
// after reopening the store.
//
//	b := hash.Bucket(hash.String("java/lang/Object"), buckets)
package hash
