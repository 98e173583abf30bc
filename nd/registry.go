package nd

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/hupe1980/ndb/database"
	"github.com/hupe1980/ndb/internal/hash"
)

// Registry holds the record kinds of a schema. Kinds are defined once at
// startup; their ids are assigned in definition order starting at 1, so the
// definition order is part of the on-disk format and covered by Fingerprint.
type Registry struct {
	kinds  []*Kind
	byName map[string]*Kind
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Kind)}
}

// Define starts a new kind. Fields of base come first in the layout; base
// must be finalized. Define panics on duplicate names.
func (r *Registry) Define(name string, base *Kind) *Kind {
	if _, dup := r.byName[name]; dup {
		panic(fmt.Sprintf("nd: kind %q already defined", name))
	}
	if len(r.kinds) >= math.MaxUint16 {
		panic("nd: too many kinds")
	}
	k := &Kind{
		reg:  r,
		id:   uint16(len(r.kinds) + 1),
		name: name,
		base: base,
	}
	if base != nil {
		if base.reg != r {
			panic(fmt.Sprintf("nd: base %q of %q belongs to another registry", base.name, name))
		}
		if !base.done {
			panic(fmt.Sprintf("nd: base %q of %q is not finalized", base.name, name))
		}
		k.size = base.size
	}
	r.kinds = append(r.kinds, k)
	r.byName[name] = k
	return k
}

// Kind returns the kind with the given id.
func (r *Registry) Kind(id uint16) (*Kind, bool) {
	if id == 0 || int(id) > len(r.kinds) {
		return nil, false
	}
	return r.kinds[id-1], true
}

// KindByName returns the kind with the given name.
func (r *Registry) KindByName(name string) (*Kind, bool) {
	k, ok := r.byName[name]
	return k, ok
}

// Kinds returns all kinds in definition order.
func (r *Registry) Kinds() []*Kind {
	return append([]*Kind(nil), r.kinds...)
}

// Fingerprint is a CRC32C over the complete layout: kind ids, names, bases,
// sizes and every field's name, offset, size and type. Stores stamp it in
// their header so a changed layout is detected on open. Panics if a kind is
// not finalized.
func (r *Registry) Fingerprint() uint32 {
	var crc uint32
	var buf [8]byte
	put := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		crc = hash.UpdateCRC32C(crc, buf[:])
	}
	str := func(s string) {
		put(uint64(len(s)))
		crc = hash.UpdateCRC32C(crc, []byte(s))
	}
	for _, k := range r.kinds {
		if !k.done {
			panic(fmt.Sprintf("nd: kind %q is not finalized", k.name))
		}
		put(uint64(k.id))
		str(k.name)
		if k.base != nil {
			put(uint64(k.base.id))
		} else {
			put(0)
		}
		put(uint64(k.size))
		for _, f := range k.own {
			str(f.Name())
			put(uint64(f.Offset()))
			put(uint64(f.Size()))
			str(f.Type())
		}
	}
	return crc
}

// KindOf returns the kind a record was allocated as.
func (r *Registry) KindOf(db *database.Database, addr database.Address) (*Kind, error) {
	blk, err := db.Block(addr)
	if err != nil {
		return nil, err
	}
	if blk.Free {
		return nil, &KindMismatchError{Addr: addr, Want: "a live record", Got: "free"}
	}
	k, ok := r.Kind(blk.Kind)
	if !ok {
		return nil, &KindMismatchError{Addr: addr, Want: "a registered kind", Got: fmt.Sprintf("kind #%d", blk.Kind)}
	}
	return k, nil
}

// Kind is the layout of one record kind.
type Kind struct {
	reg  *Registry
	id   uint16
	name string
	base *Kind
	own  []Field
	size int
	done bool
}

// ID returns the kind id stored in each record's block header.
func (k *Kind) ID() uint16 { return k.id }

// Name returns the kind name.
func (k *Kind) Name() string { return k.name }

// Base returns the base kind, or nil.
func (k *Kind) Base() *Kind { return k.base }

// Registry returns the registry k belongs to.
func (k *Kind) Registry() *Registry { return k.reg }

// Size returns the record size. Only meaningful once the kind is finalized.
func (k *Kind) Size() int { return k.size }

// Done finalizes the layout. Adding fields afterwards panics.
func (k *Kind) Done() *Kind {
	k.size = (k.size + 7) &^ 7
	k.done = true
	return k
}

// Fields returns all fields, inherited ones first.
func (k *Kind) Fields() []Field {
	var out []Field
	if k.base != nil {
		out = k.base.Fields()
	}
	return append(out, k.own...)
}

// FieldByName looks up a field, including inherited ones. Inherited fields
// are returned as the base kind's handle.
func (k *Kind) FieldByName(name string) (Field, bool) {
	for c := k; c != nil; c = c.base {
		for _, f := range c.own {
			if f.Name() == name {
				return f, true
			}
		}
	}
	return nil, false
}

// IsA reports whether k is other or derives from it.
func (k *Kind) IsA(other *Kind) bool {
	for c := k; c != nil; c = c.base {
		if c == other {
			return true
		}
	}
	return false
}

func (k *Kind) String() string { return k.name }

// addField appends a field of size bytes aligned to align and returns its offset.
func (k *Kind) addField(f Field, name string, size, align int) int {
	if k.done {
		panic(fmt.Sprintf("nd: field %q added to finalized kind %q", name, k.name))
	}
	if _, dup := k.FieldByName(name); dup {
		panic(fmt.Sprintf("nd: kind %q already has a field %q", k.name, name))
	}
	off := (k.size + align - 1) &^ (align - 1)
	k.size = off + size
	k.own = append(k.own, f)
	return off
}

// Allocate allocates a zero-filled record of kind k.
func (k *Kind) Allocate(db *database.Database) (database.Address, error) {
	if !k.done {
		return database.Null, fmt.Errorf("nd: kind %q is not finalized", k.name)
	}
	return db.Allocate(k.size, k.id)
}

// Check verifies that addr is a live record of kind k or a derived kind.
func (k *Kind) Check(db *database.Database, addr database.Address) error {
	_, err := k.actual(db, addr)
	return err
}

func (k *Kind) actual(db *database.Database, addr database.Address) (*Kind, error) {
	got, err := k.reg.KindOf(db, addr)
	if err != nil {
		var km *KindMismatchError
		if errors.As(err, &km) {
			km.Want = k.name
		}
		return nil, err
	}
	if !got.IsA(k) {
		return nil, &KindMismatchError{Addr: addr, Want: k.name, Got: got.name}
	}
	return got, nil
}

// ForEach calls fn for every live record of kind k or a derived kind, in
// address order. fn must not allocate or release records.
func (k *Kind) ForEach(db *database.Database, fn func(addr database.Address, actual *Kind) error) error {
	return db.Walk(func(b database.Block) error {
		if b.Free {
			return nil
		}
		got, ok := k.reg.Kind(b.Kind)
		if !ok || !got.IsA(k) {
			return nil
		}
		return fn(b.Addr, got)
	})
}
