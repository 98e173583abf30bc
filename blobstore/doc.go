// Package blobstore abstracts the storage that snapshot archives are pushed
// to and pulled from.
//
// Store is a flat namespace of immutable blobs. Implementations must be safe
// for concurrent use.
//
// # Built-in Implementations
//
//   - MemoryStore: in-process, for tests
//   - LocalStore: a local directory, read through read-only memory mappings
//   - s3.Store: Amazon S3 with range reads and multipart streaming uploads
//   - minio.Store: MinIO and other S3-compatible services
//
// Archives are written with Create and read back sequentially:
//
//	w, _ := store.Create(ctx, "4f1c.../1700000000.ndbs")
//	_, _ = persistence.Write(ctx, w, db)
//	_ = w.Close()
//
//	blob, _ := store.Open(ctx, name)
//	r := blobstore.NewReader(ctx, blob)
package blobstore
