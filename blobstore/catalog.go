package blobstore

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrConflict is returned by Catalog.Commit when another writer committed
// the same version first.
var ErrConflict = errors.New("blobstore: concurrent commit")

// Entry records one archived blob in a Catalog.
type Entry struct {
	// Key groups the entries of one archived store, e.g. its UUID.
	Key string
	// Version is assigned by Commit and increases by one per commit.
	Version  uint64
	Name     string
	Size     int64
	Checksum uint32
	Created  time.Time
}

// Catalog is a versioned index of archived blobs. Commit is a
// compare-and-swap on the next version of a key, so concurrent writers never
// overwrite each other's entries.
type Catalog interface {
	// Commit stores e as the next version of e.Key and returns it with the
	// assigned version.
	Commit(ctx context.Context, e Entry) (Entry, error)
	// Latest returns the newest entry of key, or ErrNotFound.
	Latest(ctx context.Context, key string) (Entry, error)
	// History returns up to limit entries of key, newest first. A limit of
	// zero or less returns all entries.
	History(ctx context.Context, key string, limit int) ([]Entry, error)
}

// MemoryCatalog is an in-memory Catalog.
type MemoryCatalog struct {
	mu      sync.Mutex
	entries map[string][]Entry
}

// NewMemoryCatalog creates an empty catalog.
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{entries: make(map[string][]Entry)}
}

// Commit implements Catalog.
func (c *MemoryCatalog) Commit(_ context.Context, e Entry) (Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	list := c.entries[e.Key]
	next := uint64(len(list)) + 1
	if e.Version != 0 && e.Version != next {
		return Entry{}, ErrConflict
	}
	e.Version = next
	if e.Created.IsZero() {
		e.Created = time.Now().UTC()
	}
	c.entries[e.Key] = append(list, e)
	return e, nil
}

// Latest implements Catalog.
func (c *MemoryCatalog) Latest(_ context.Context, key string) (Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	list := c.entries[key]
	if len(list) == 0 {
		return Entry{}, ErrNotFound
	}
	return list[len(list)-1], nil
}

// History implements Catalog.
func (c *MemoryCatalog) History(_ context.Context, key string, limit int) ([]Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	list := append([]Entry(nil), c.entries[key]...)
	sort.Slice(list, func(i, j int) bool { return list[i].Version > list[j].Version })
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}
