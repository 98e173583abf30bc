// Package intern implements persistent intern tables over nd records.
//
// A Table maps string keys to records of one kind so that equal keys share a
// single record and compare by address. The table is a fixed-size bucket
// array stored as a raw record; each entry record carries its key in a
// nd.String field and the next entry of its bucket chain in a nd.Pointer
// field. Buckets are chosen by xxHash64 of the key, which is stable across
// processes.
package intern

import (
	"errors"
	"fmt"

	"github.com/hupe1980/ndb/database"
	"github.com/hupe1980/ndb/internal/conv"
	"github.com/hupe1980/ndb/internal/hash"
	"github.com/hupe1980/ndb/nd"
)

// DefaultBuckets is the bucket count used when none is configured.
const DefaultBuckets = 1024

// ErrNotInterned is returned by Remove for records that are not in the table.
var ErrNotInterned = errors.New("intern: record not in table")

// Layout of the bucket array record: buckets(4) pad(4) count(8) heads(8 each).
const (
	arrBuckets = 0
	arrCount   = 8
	arrHeads   = 16
)

// Table describes an intern table for records of one kind.
type Table struct {
	kind *nd.Kind
	key  *nd.String
	next *nd.Pointer
}

// New returns a table for records of kind, keyed by key and chained by next.
// Both fields must belong to kind.
func New(kind *nd.Kind, key *nd.String, next *nd.Pointer) *Table {
	if !kind.IsA(key.Owner()) || !kind.IsA(next.Owner()) {
		panic(fmt.Sprintf("intern: fields of %s do not belong to %s", key.Owner(), kind))
	}
	return &Table{kind: kind, key: key, next: next}
}

// Kind returns the entry kind.
func (t *Table) Kind() *nd.Kind { return t.kind }

// Create allocates an empty bucket array with the given number of buckets and
// returns its address.
func (t *Table) Create(db *database.Database, buckets int) (database.Address, error) {
	if buckets <= 0 {
		buckets = DefaultBuckets
	}
	n, err := conv.IntToUint32(buckets)
	if err != nil {
		return database.Null, fmt.Errorf("intern: %d buckets: %w: %w", buckets, database.ErrTooLarge, err)
	}
	if buckets > (db.MaxRecordSize()-arrHeads)/8 {
		return database.Null, fmt.Errorf("intern: %d buckets exceed the maximum record size: %w", buckets, database.ErrTooLarge)
	}
	arr, err := db.Allocate(arrHeads+8*buckets, 0)
	if err != nil {
		return database.Null, err
	}
	if err := db.PutUint32(arr.Add(arrBuckets), n); err != nil {
		return database.Null, err
	}
	return arr, nil
}

// buckets reads the bucket count of arr.
func (t *Table) buckets(db *database.Database, arr database.Address) (int, error) {
	n, err := db.GetUint32(arr.Add(arrBuckets))
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, &database.CorruptionError{Op: "intern", Addr: arr, Reason: "bucket array without buckets"}
	}
	c, err := conv.Uint32ToInt(n)
	if err != nil {
		return 0, &database.CorruptionError{Op: "intern", Addr: arr, Reason: err.Error()}
	}
	return c, nil
}

// Drop releases the bucket array. Entries are not released.
func (t *Table) Drop(db *database.Database, arr database.Address) error {
	n, err := t.buckets(db, arr)
	if err != nil {
		return err
	}
	return db.Free(arr, arrHeads+8*n)
}

func (t *Table) bucket(db *database.Database, arr database.Address, key string) (database.Address, error) {
	n, err := t.buckets(db, arr)
	if err != nil {
		return database.Null, err
	}
	return arr.Add(arrHeads + 8*int(hash.Bucket(hash.String(key), uint32(n)))), nil
}

// Lookup returns the entry for key, or Null.
func (t *Table) Lookup(db *database.Database, arr database.Address, key string) (database.Address, error) {
	slot, err := t.bucket(db, arr, key)
	if err != nil {
		return database.Null, err
	}
	cur, err := db.GetAddress(slot)
	if err != nil {
		return database.Null, err
	}
	for !cur.IsNull() {
		k, err := t.key.Get(db, cur)
		if err != nil {
			return database.Null, err
		}
		if k == key {
			return cur, nil
		}
		if cur, err = t.next.Get(db, cur); err != nil {
			return database.Null, err
		}
	}
	return database.Null, nil
}

// Intern returns the entry for key, allocating it when absent. created
// reports whether a new entry was allocated.
func (t *Table) Intern(db *database.Database, arr database.Address, key string) (addr database.Address, created bool, err error) {
	if addr, err = t.Lookup(db, arr, key); err != nil || !addr.IsNull() {
		return addr, false, err
	}

	slot, err := t.bucket(db, arr, key)
	if err != nil {
		return database.Null, false, err
	}
	head, err := db.GetAddress(slot)
	if err != nil {
		return database.Null, false, err
	}

	addr, err = t.kind.Allocate(db)
	if err != nil {
		return database.Null, false, err
	}
	if err := t.key.Put(db, addr, key); err != nil {
		_ = t.kind.Release(db, addr)
		return database.Null, false, err
	}
	if err := t.next.Put(db, addr, head); err != nil {
		_ = t.kind.Release(db, addr)
		return database.Null, false, err
	}
	if err := db.PutAddress(slot, addr); err != nil {
		return database.Null, false, err
	}
	return addr, true, t.addCount(db, arr, 1)
}

// Remove unlinks rec from its bucket chain. The record itself is not released.
func (t *Table) Remove(db *database.Database, arr, rec database.Address) error {
	key, err := t.key.Get(db, rec)
	if err != nil {
		return err
	}
	slot, err := t.bucket(db, arr, key)
	if err != nil {
		return err
	}
	after, err := t.next.Get(db, rec)
	if err != nil {
		return err
	}

	prev := database.Null
	cur, err := db.GetAddress(slot)
	if err != nil {
		return err
	}
	for !cur.IsNull() && cur != rec {
		prev = cur
		if cur, err = t.next.Get(db, cur); err != nil {
			return err
		}
	}
	if cur.IsNull() {
		return fmt.Errorf("%w: %s", ErrNotInterned, rec)
	}

	if prev.IsNull() {
		err = db.PutAddress(slot, after)
	} else {
		err = t.next.Put(db, prev, after)
	}
	if err != nil {
		return err
	}
	if err := t.next.Put(db, rec, database.Null); err != nil {
		return err
	}
	return t.addCount(db, arr, -1)
}

// Len returns the number of entries.
func (t *Table) Len(db *database.Database, arr database.Address) (int, error) {
	n, err := db.GetUint64(arr.Add(arrCount))
	if err != nil {
		return 0, err
	}
	c, err := conv.Uint64ToInt(n)
	if err != nil {
		return 0, &database.CorruptionError{Op: "intern", Addr: arr, Reason: err.Error()}
	}
	return c, nil
}

// ForEach calls fn for every entry, bucket by bucket. fn must not modify the
// table; collect entries first to remove them.
func (t *Table) ForEach(db *database.Database, arr database.Address, fn func(rec database.Address, key string) error) error {
	n, err := t.buckets(db, arr)
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		cur, err := db.GetAddress(arr.Add(arrHeads + 8*i))
		if err != nil {
			return err
		}
		for !cur.IsNull() {
			key, err := t.key.Get(db, cur)
			if err != nil {
				return err
			}
			if err := fn(cur, key); err != nil {
				return err
			}
			if cur, err = t.next.Get(db, cur); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *Table) addCount(db *database.Database, arr database.Address, delta int64) error {
	n, err := db.GetUint64(arr.Add(arrCount))
	if err != nil {
		return err
	}
	return db.PutUint64(arr.Add(arrCount), uint64(int64(n)+delta))
}
