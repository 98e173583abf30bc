package ndb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/ndb/blobstore"
	"github.com/hupe1980/ndb/persistence"
)

// ArchiveExt is the extension of archived snapshots.
const ArchiveExt = ".ndbs"

// ArchiveName returns the blob name of a snapshot of store id taken at t:
// "<id>/<unix-nanos>.ndbs". The timestamp is zero padded so names sort
// chronologically.
func ArchiveName(id uuid.UUID, t time.Time) string {
	return fmt.Sprintf("%s/%020d%s", id, t.UnixNano(), ArchiveExt)
}

// ParseArchiveName is the inverse of ArchiveName.
func ParseArchiveName(name string) (uuid.UUID, time.Time, error) {
	dir, file := path.Split(name)
	id, err := uuid.Parse(strings.TrimSuffix(dir, "/"))
	if err != nil {
		return uuid.Nil, time.Time{}, fmt.Errorf("ndb: archive name %q: %w", name, err)
	}
	if !strings.HasSuffix(file, ArchiveExt) {
		return uuid.Nil, time.Time{}, fmt.Errorf("ndb: archive name %q: missing %s extension", name, ArchiveExt)
	}
	nanos, err := strconv.ParseInt(strings.TrimSuffix(file, ArchiveExt), 10, 64)
	if err != nil {
		return uuid.Nil, time.Time{}, fmt.Errorf("ndb: archive name %q: %w", name, err)
	}
	return id, time.Unix(0, nanos).UTC(), nil
}

// Archiver uploads snapshots of an Index to a blob store and restores them.
// With a catalog, every upload is committed as the next version of the
// store's UUID; without one, the blob names are the only record.
type Archiver struct {
	store   blobstore.Store
	catalog blobstore.Catalog
	opts    options
	now     func() time.Time
}

// NewArchiver creates an archiver. catalog may be nil.
func NewArchiver(store blobstore.Store, catalog blobstore.Catalog, optFns ...Option) *Archiver {
	return &Archiver{
		store:   store,
		catalog: catalog,
		opts:    applyOptions(optFns),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Push uploads a snapshot of idx and returns its catalog entry. Without a
// catalog the version is the position of the archive among those of the
// store.
func (a *Archiver) Push(ctx context.Context, idx *Index) (blobstore.Entry, error) {
	id := idx.Stats().ID
	now := a.now()
	name := ArchiveName(id, now)

	w, err := a.store.Create(ctx, name)
	if err != nil {
		return blobstore.Entry{}, translateError(err)
	}
	info, err := idx.Snapshot(ctx, w)
	if err != nil {
		_ = blobstore.Abort(w)
		return blobstore.Entry{}, err
	}
	if err := w.Close(); err != nil {
		a.opts.logger.LogSnapshot(ctx, name, 0, err)
		return blobstore.Entry{}, translateError(err)
	}

	entry := blobstore.Entry{
		Key:      id.String(),
		Name:     name,
		Size:     info.Size,
		Checksum: info.Checksum,
		Created:  now,
	}
	if a.catalog != nil {
		committed, err := a.catalog.Commit(ctx, entry)
		if err != nil {
			_ = a.store.Delete(ctx, name)
			return blobstore.Entry{}, translateError(err)
		}
		entry = committed
	} else if entries, err := a.List(ctx, id); err == nil {
		for _, e := range entries {
			if e.Name == name {
				entry.Version = e.Version
				break
			}
		}
	}
	a.opts.logger.InfoContext(ctx, "archive pushed",
		"name", name,
		"version", entry.Version,
		"bytes", entry.Size,
	)
	return entry, nil
}

// List returns the archives of store id, newest first.
func (a *Archiver) List(ctx context.Context, id uuid.UUID) ([]blobstore.Entry, error) {
	if a.catalog != nil {
		entries, err := a.catalog.History(ctx, id.String(), 0)
		return entries, translateError(err)
	}

	names, err := a.store.List(ctx, id.String()+"/")
	if err != nil {
		return nil, translateError(err)
	}
	entries := make([]blobstore.Entry, 0, len(names))
	for _, name := range names {
		_, created, err := ParseArchiveName(name)
		if err != nil {
			continue
		}
		entries = append(entries, blobstore.Entry{Key: id.String(), Name: name, Created: created})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	for i := range entries {
		entries[i].Version = uint64(i + 1)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Version > entries[j].Version })
	return entries, nil
}

// Latest returns the newest archive of store id.
func (a *Archiver) Latest(ctx context.Context, id uuid.UUID) (blobstore.Entry, error) {
	if a.catalog != nil {
		e, err := a.catalog.Latest(ctx, id.String())
		return e, translateError(err)
	}
	entries, err := a.List(ctx, id)
	if err != nil {
		return blobstore.Entry{}, err
	}
	if len(entries) == 0 {
		return blobstore.Entry{}, fmt.Errorf("%w: no archive of store %s", ErrNotFound, id)
	}
	return entries[0], nil
}

// Pull restores the archive e into a store file at dst and validates it.
// An existing file at dst is replaced only if the archive is intact and
// matches the checksum recorded in e.
func (a *Archiver) Pull(ctx context.Context, e blobstore.Entry, dst string) (persistence.Info, error) {
	start := time.Now()
	info, err := a.pull(ctx, e, dst)
	a.opts.metricsCollector.RecordRestore(info.Size, time.Since(start), err)
	a.opts.logger.LogRestore(ctx, e.Name, dst, err)
	return info, translateError(err)
}

func (a *Archiver) pull(ctx context.Context, e blobstore.Entry, dst string) (persistence.Info, error) {
	blob, err := a.store.Open(ctx, e.Name)
	if err != nil {
		return persistence.Info{}, err
	}
	defer func() { _ = blob.Close() }()

	r := blobstore.NewReader(ctx, blob)
	defer func() { _ = r.Close() }()

	staging := dst + ".pull"
	info, err := persistence.Restore(ctx, r, staging, a.opts.snapshotOptions(a.opts.resources())...)
	if err != nil {
		return persistence.Info{}, err
	}
	if e.Checksum != 0 && info.Checksum != e.Checksum {
		_ = os.Remove(staging)
		return persistence.Info{}, &persistence.ChecksumMismatchError{Expected: e.Checksum, Actual: info.Checksum}
	}
	if err := validateFile(ctx, staging, a.opts); err != nil {
		_ = os.Remove(staging)
		return persistence.Info{}, err
	}
	if err := os.Rename(staging, dst); err != nil {
		_ = os.Remove(staging)
		return persistence.Info{}, err
	}
	return info, nil
}

// PullLatest restores the newest archive of store id into dst.
func (a *Archiver) PullLatest(ctx context.Context, id uuid.UUID, dst string) (blobstore.Entry, persistence.Info, error) {
	e, err := a.Latest(ctx, id)
	if err != nil {
		return blobstore.Entry{}, persistence.Info{}, err
	}
	info, err := a.Pull(ctx, e, dst)
	return e, info, err
}

// IsConflict reports whether err is a lost race on a catalog commit.
func IsConflict(err error) bool {
	return errors.Is(err, blobstore.ErrConflict)
}
