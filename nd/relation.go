package nd

import (
	"errors"
	"fmt"

	"github.com/hupe1980/ndb/database"
	"github.com/hupe1980/ndb/internal/conv"
)

// Layout of a ManyToOne field inside the owner record.
const (
	m2oTarget = 0
	m2oNext   = 8
	m2oPrev   = 16
	m2oSize   = 24
)

// Layout of a BackReference field inside the target record.
const (
	brHead  = 0
	brTail  = 8
	brCount = 16
	brSize  = 24
)

// BackReference is the inverse of exactly one ManyToOne field: the set of
// records whose ManyToOne points at this record. It is an intrusive doubly
// linked list threaded through the owners, kept in insertion order, and is
// maintained by ManyToOne.Put only.
type BackReference struct {
	field
	forward *ManyToOne
}

// NewBackReference adds a back-reference set to k. It must be bound to a
// ManyToOne field with NewManyToOne before the schema is used.
func NewBackReference(k *Kind, name string) *BackReference {
	b := &BackReference{field: field{owner: k, name: name, size: brSize, typ: "back-reference"}}
	b.offset = k.addField(b, name, brSize, 8)
	return b
}

// Forward returns the ManyToOne field b is the inverse of.
func (b *BackReference) Forward() *ManyToOne { return b.forward }

// Count returns the number of records referencing rec.
func (b *BackReference) Count(db *database.Database, rec database.Address) (int, error) {
	if err := b.owner.Check(db, rec); err != nil {
		return 0, err
	}
	return b.count(db, rec)
}

func (b *BackReference) count(db *database.Database, rec database.Address) (int, error) {
	n, err := db.GetUint64(b.addr(rec).Add(brCount))
	if err != nil {
		return 0, err
	}
	c, err := conv.Uint64ToInt(n)
	if err != nil {
		return 0, &ChainError{Addr: rec, Field: b.String(), Reason: err.Error()}
	}
	return c, nil
}

// IsEmpty reports whether no record references rec.
func (b *BackReference) IsEmpty(db *database.Database, rec database.Address) (bool, error) {
	n, err := b.Count(db, rec)
	return n == 0, err
}

// Owners returns the records referencing rec in insertion order.
func (b *BackReference) Owners(db *database.Database, rec database.Address) ([]database.Address, error) {
	var out []database.Address
	err := b.ForEach(db, rec, func(owner database.Address) error {
		out = append(out, owner)
		return nil
	})
	return out, err
}

// Contains reports whether owner is in the back-reference set of rec.
func (b *BackReference) Contains(db *database.Database, rec, owner database.Address) (bool, error) {
	found := false
	err := b.ForEach(db, rec, func(o database.Address) error {
		if o == owner {
			found = true
			return errStop
		}
		return nil
	})
	if err == errStop {
		err = nil
	}
	return found, err
}

var errStop = errors.New("stop")

// ForEach calls fn for each record referencing rec in insertion order.
// fn may change the ManyToOne of the owner it is called with.
func (b *BackReference) ForEach(db *database.Database, rec database.Address, fn func(owner database.Address) error) error {
	if b.forward == nil {
		return fmt.Errorf("nd: back reference %s is not bound", b)
	}
	if err := b.owner.Check(db, rec); err != nil {
		return err
	}
	base := b.addr(rec)
	count, err := db.GetUint64(base.Add(brCount))
	if err != nil {
		return err
	}
	cur, err := db.GetAddress(base.Add(brHead))
	if err != nil {
		return err
	}

	var seen uint64
	for !cur.IsNull() {
		if seen++; seen > count {
			return &ChainError{Addr: rec, Field: b.String(), Reason: fmt.Sprintf("chain longer than count %d", count)}
		}
		next, err := db.GetAddress(b.forward.addr(cur).Add(m2oNext))
		if err != nil {
			return err
		}
		if err := fn(cur); err != nil {
			return err
		}
		cur = next
	}
	if seen != count {
		return &ChainError{Addr: rec, Field: b.String(), Reason: fmt.Sprintf("chain of %d records, count %d", seen, count)}
	}
	return nil
}

func (b *BackReference) guard(db *database.Database, rec database.Address) error {
	n, err := b.count(db, rec)
	if err != nil {
		return err
	}
	if n != 0 {
		return &BackReferenceError{Addr: rec, Kind: b.owner.name, Field: b.name, Count: n}
	}
	return nil
}

// ManyToOne is a reference from the owner record to a target record of a
// fixed kind. Every Put keeps the inverse BackReference of the old and the
// new target up to date.
type ManyToOne struct {
	field
	target  *Kind
	inverse *BackReference
}

// NewManyToOne adds a many-to-one reference to k whose inverse is inverse.
// The target kind is the kind inverse was declared on.
func NewManyToOne(k *Kind, name string, inverse *BackReference) *ManyToOne {
	if inverse.forward != nil {
		panic(fmt.Sprintf("nd: back reference %s is already bound to %s", inverse, inverse.forward))
	}
	m := &ManyToOne{
		field:   field{owner: k, name: name, size: m2oSize, typ: fmt.Sprintf("many-to-one(%s.%s)", inverse.owner.name, inverse.name)},
		target:  inverse.owner,
		inverse: inverse,
	}
	m.offset = k.addField(m, name, m2oSize, 8)
	inverse.forward = m
	return m
}

// Target returns the kind of the referenced records.
func (m *ManyToOne) Target() *Kind { return m.target }

// Inverse returns the back-reference set maintained by m.
func (m *ManyToOne) Inverse() *BackReference { return m.inverse }

// Get returns the record referenced by rec, or Null.
func (m *ManyToOne) Get(db *database.Database, rec database.Address) (database.Address, error) {
	if err := m.owner.Check(db, rec); err != nil {
		return database.Null, err
	}
	return db.GetAddress(m.addr(rec).Add(m2oTarget))
}

// Put points rec at target (or Null), moving rec from the back-reference set
// of the previous target to the one of the new target. target must be a live
// record of the target kind.
func (m *ManyToOne) Put(db *database.Database, rec, target database.Address) error {
	if err := m.owner.Check(db, rec); err != nil {
		return err
	}
	if !target.IsNull() {
		if err := m.target.Check(db, target); err != nil {
			return err
		}
	}

	link := m.addr(rec)
	old, err := db.GetAddress(link.Add(m2oTarget))
	if err != nil {
		return err
	}
	if old == target {
		return nil
	}
	if !old.IsNull() {
		if err := m.unlink(db, old, rec); err != nil {
			return err
		}
	}
	if err := db.PutAddress(link.Add(m2oTarget), target); err != nil {
		return err
	}
	if !target.IsNull() {
		return m.link(db, target, rec)
	}
	return nil
}

// link appends rec at the tail of target's back-reference list.
func (m *ManyToOne) link(db *database.Database, target, rec database.Address) error {
	set := m.inverse.addr(target)
	tail, err := db.GetAddress(set.Add(brTail))
	if err != nil {
		return err
	}
	node := m.addr(rec)
	if err := db.PutAddress(node.Add(m2oPrev), tail); err != nil {
		return err
	}
	if err := db.PutAddress(node.Add(m2oNext), database.Null); err != nil {
		return err
	}
	if tail.IsNull() {
		err = db.PutAddress(set.Add(brHead), rec)
	} else {
		err = db.PutAddress(m.addr(tail).Add(m2oNext), rec)
	}
	if err != nil {
		return err
	}
	if err := db.PutAddress(set.Add(brTail), rec); err != nil {
		return err
	}
	return m.addCount(db, set, 1)
}

// unlink removes rec from target's back-reference list.
func (m *ManyToOne) unlink(db *database.Database, target, rec database.Address) error {
	set := m.inverse.addr(target)
	node := m.addr(rec)
	next, err := db.GetAddress(node.Add(m2oNext))
	if err != nil {
		return err
	}
	prev, err := db.GetAddress(node.Add(m2oPrev))
	if err != nil {
		return err
	}

	if prev.IsNull() {
		err = db.PutAddress(set.Add(brHead), next)
	} else {
		err = db.PutAddress(m.addr(prev).Add(m2oNext), next)
	}
	if err != nil {
		return err
	}
	if next.IsNull() {
		err = db.PutAddress(set.Add(brTail), prev)
	} else {
		err = db.PutAddress(m.addr(next).Add(m2oPrev), prev)
	}
	if err != nil {
		return err
	}
	if err := db.PutAddress(node.Add(m2oNext), database.Null); err != nil {
		return err
	}
	if err := db.PutAddress(node.Add(m2oPrev), database.Null); err != nil {
		return err
	}
	return m.addCount(db, set, -1)
}

func (m *ManyToOne) addCount(db *database.Database, set database.Address, delta int64) error {
	n, err := db.GetUint64(set.Add(brCount))
	if err != nil {
		return err
	}
	if delta < 0 && n == 0 {
		return &ChainError{Addr: set, Field: m.inverse.String(), Reason: "unlink from an empty set"}
	}
	return db.PutUint64(set.Add(brCount), uint64(int64(n)+delta))
}

func (m *ManyToOne) destruct(db *database.Database, rec database.Address) error {
	return m.Put(db, rec, database.Null)
}
