// Package ndb is an embedded, memory-mapped record store for source
// indexes. It keeps compile-time constants (literals, class and enum
// references, arrays and annotations) as typed records in a single growable
// file, with interned type signatures and automatically maintained
// back-references.
//
// # Quick Start
//
//	idx, err := ndb.Open("index.ndb")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer idx.Close()
//
//	addr, _ := idx.Create(constant.Class{Signature: "Ljava/lang/String;"})
//	v, _ := idx.Decode(addr) // constant.Class{Signature: "Ljava/lang/String;"}
//
// # Layers
//
//   - database: the growable address space (allocation, mapping, validation)
//   - nd: kinds, typed fields and many-to-one relations with back-references
//   - intern: persistent hash tables over nd kinds
//   - constant: the constant variants and their Store
//
// Index wires these together and adds locking, logging and metrics.
//
// # Errors
//
// Errors returned by Index satisfy errors.Is against the sentinels of this
// package (ErrCorrupt, ErrCapacity, ErrIncompatibleVersion, ErrInvariant,
// ...) and keep the originating error in the chain.
//
// # Snapshots and Archives
//
// SaveSnapshot and RestoreSnapshot copy a store through a compressed,
// checksummed stream. An Archiver pushes snapshots to any blobstore.Store
// (local, memory, S3, MinIO) and optionally records them in a
// blobstore.Catalog such as the DynamoDB catalog of blobstore/s3.
package ndb
