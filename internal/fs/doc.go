// Package fs abstracts the file operations of the address space so tests
// can inject failures.
//
// Production code uses [Default], which is [LocalFS]. Tests wrap it in a
// [FaultyFS], for example a disk that refuses to grow the store beyond
// 4 MiB:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule(".ndb", fs.Fault{MaxSize: 4 << 20})
//	db, err := database.Open(path, database.WithFileSystem(ffs))
//
// Operations take no context: local file system calls are not
// interruptible. Remote storage lives in the blobstore package.
package fs
