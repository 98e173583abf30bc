package persistence

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
)

const ioBufferSize = 256 * 1024

// SaveToFile atomically replaces filename with the bytes produced by
// writeFunc.
func SaveToFile(filename string, writeFunc func(io.Writer) error) error {
	return atomicWrite(filename, func(f *os.File) error {
		buf := bufio.NewWriterSize(f, ioBufferSize)
		if err := writeFunc(buf); err != nil {
			return err
		}
		return buf.Flush()
	})
}

// LoadFromFile opens filename and hands a buffered reader to readFunc.
func LoadFromFile(filename string, readFunc func(io.Reader) error) error {
	f, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	return readFunc(bufio.NewReaderSize(f, ioBufferSize))
}

// atomicWrite writes a temporary file in the directory of filename and
// renames it over filename once fn succeeded and the data is synced.
func atomicWrite(filename string, fn func(f *os.File) error) error {
	dir := filepath.Dir(filename)
	base := filepath.Base(filename)

	tmp, err := os.CreateTemp(dir, base+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		if tmpName != "" {
			_ = os.Remove(tmpName)
		}
	}()

	_ = tmp.Chmod(0o644)

	if err := fn(tmp); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, filename); err != nil {
		return err
	}

	// Best-effort: fsync the directory so the rename is durable on POSIX.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}

	tmpName = ""
	return nil
}
