// Package database implements the growable address space underneath ndb.
//
// A store is a single file split into power-of-two chunks. Every record is a
// block inside one chunk:
//
//	+----------+------------+-----------+---------------------+
//	| size u32 | state u16  | kind u16  | payload (zeroed)... |
//	+----------+------------+-----------+---------------------+
//	^ block offset                      ^ record Address
//
// Chunk 0 starts with a 64 byte header carrying the format version, schema
// version, layout fingerprint, root address, high-water mark, store id and a
// CRC32C. Records are appended at the high-water mark; released blocks go to
// a free index keyed by exact block size (one roaring64 bitmap per size) and
// are reused first fit with splitting. Records never move and are never
// compacted.
//
// # Errors
//
// Three classes of failure are distinguished:
//
//   - Corruption ([ErrCorrupt], [ErrOutOfRange], [*CorruptionError]): an
//     address outside the allocated range, a bad block header, a double free.
//     Corruption is sticky: every further operation returns it until
//     [Database.Validate] succeeds.
//   - Capacity ([ErrCapacity], [ErrTooLarge]): the file cannot grow or the
//     configured limit is reached. No partial record is left behind.
//   - Version ([ErrIncompatibleVersion], [ErrUncleanShutdown]): the store
//     was written by a different format or schema, or was not closed cleanly.
//
// # Usage
//
//	db, err := database.Open("index.ndb", database.WithSchemaVersion(3))
//	if err != nil { ... }
//	defer db.Close()
//
//	addr, err := db.Allocate(24, kindID)
//	err = db.PutUint64(addr, 42)
package database
