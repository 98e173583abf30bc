package fs

import (
	"errors"
	"os"
	"strings"
	"sync"
)

// ErrInjected is returned by faults without their own Err.
var ErrInjected = errors.New("fs: injected fault")

// Fault describes the failures injected into files whose name matches a rule.
type Fault struct {
	FailOnOpen     bool
	FailOnSync     bool
	FailOnClose    bool
	FailOnTruncate bool  // Fail any Truncate that grows the file.
	MaxSize        int64 // Fail Truncate beyond this size. 0 to disable.
	Err            error
}

func (f Fault) err() error {
	if f.Err != nil {
		return f.Err
	}
	return ErrInjected
}

// FaultyFS is a FileSystem wrapper that can inject errors.
type FaultyFS struct {
	FS FileSystem

	mu    sync.Mutex
	rules map[string]Fault // name substring -> fault
	opens int
}

// NewFaultyFS creates a new FaultyFS wrapping fsys (or Default if nil).
func NewFaultyFS(fsys FileSystem) *FaultyFS {
	if fsys == nil {
		fsys = Default
	}
	return &FaultyFS{FS: fsys, rules: make(map[string]Fault)}
}

// AddRule injects fault into every file opened later whose name contains
// pattern. With several matching rules the longest pattern wins.
func (f *FaultyFS) AddRule(pattern string, fault Fault) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules[pattern] = fault
}

// Opens returns the number of files opened successfully.
func (f *FaultyFS) Opens() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens
}

func (f *FaultyFS) match(name string) (Fault, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var (
		best  Fault
		found bool
		blen  = -1
	)
	for pattern, rule := range f.rules {
		if strings.Contains(name, pattern) && len(pattern) > blen {
			best, found, blen = rule, true, len(pattern)
		}
	}
	return best, found
}

func (f *FaultyFS) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	fault, ok := f.match(name)
	if ok && fault.FailOnOpen {
		return nil, &os.PathError{Op: "open", Path: name, Err: fault.err()}
	}
	file, err := f.FS.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.opens++
	f.mu.Unlock()
	if !ok {
		return file, nil
	}
	return &faultyFile{File: file, fault: fault}, nil
}

func (f *FaultyFS) Remove(name string) error              { return f.FS.Remove(name) }
func (f *FaultyFS) Stat(name string) (os.FileInfo, error) { return f.FS.Stat(name) }

type faultyFile struct {
	File
	fault Fault
}

func (ff *faultyFile) Truncate(size int64) error {
	info, err := ff.File.Stat()
	if err != nil {
		return err
	}
	grows := size > info.Size()
	if grows && (ff.fault.FailOnTruncate || (ff.fault.MaxSize > 0 && size > ff.fault.MaxSize)) {
		return &os.PathError{Op: "truncate", Path: ff.Name(), Err: ff.fault.err()}
	}
	return ff.File.Truncate(size)
}

func (ff *faultyFile) Sync() error {
	if ff.fault.FailOnSync {
		return &os.PathError{Op: "sync", Path: ff.Name(), Err: ff.fault.err()}
	}
	return ff.File.Sync()
}

func (ff *faultyFile) Close() error {
	if ff.fault.FailOnClose {
		_ = ff.File.Close()
		return &os.PathError{Op: "close", Path: ff.Name(), Err: ff.fault.err()}
	}
	return ff.File.Close()
}
