package constant

import (
	"errors"
	"fmt"

	"github.com/hupe1980/ndb/database"
	"github.com/hupe1980/ndb/intern"
	"github.com/hupe1980/ndb/nd"
)

// Store creates, decodes and deletes constants in a database.
//
// Elements of arrays and values of annotation pairs are owned by their
// parent: they can be read like any constant but are deleted with it. A Store is not safe for concurrent use.
type Store struct {
	db     *database.Database
	schema *Schema
	root   database.Address

	sigs   *intern.Table
	strs   *intern.Table
	sigArr database.Address
	strArr database.Address

	tags map[uint16]Tag
}

type options struct {
	buckets int
}

// Option configures Open.
type Option func(*options)

// WithBuckets sets the bucket count of the intern tables of a new store.
// Existing stores keep the count they were created with.
func WithBuckets(n int) Option {
	return func(o *options) {
		o.buckets = n
	}
}

// Open attaches a store to db. An empty database is initialized with a root
// record and empty intern tables.
func Open(db *database.Database, schema *Schema, optFns ...Option) (*Store, error) {
	opts := options{buckets: intern.DefaultBuckets}
	for _, fn := range optFns {
		fn(&opts)
	}

	s := &Store{
		db:     db,
		schema: schema,
		sigs:   intern.New(schema.Signature, schema.SignatureName, schema.SignatureNext),
		strs:   intern.New(schema.PoolString, schema.PoolStringValue, schema.PoolStringNext),
		tags:   make(map[uint16]Tag),
	}
	for t := TagBoolean; t <= TagAnnotation; t++ {
		s.tags[schema.variants[t].ID()] = t
	}

	root := db.Root()
	if root.IsNull() {
		if db.ReadOnly() {
			return nil, fmt.Errorf("constant: database has no root: %w", database.ErrReadOnly)
		}
		if err := s.init(opts.buckets); err != nil {
			return nil, err
		}
		return s, nil
	}

	if err := schema.Root.Check(db, root); err != nil {
		return nil, fmt.Errorf("constant: root record: %w", err)
	}
	var err error
	if s.sigArr, err = schema.RootSignatures.Get(db, root); err != nil {
		return nil, err
	}
	if s.strArr, err = schema.RootStrings.Get(db, root); err != nil {
		return nil, err
	}
	if s.sigArr.IsNull() || s.strArr.IsNull() {
		return nil, &database.CorruptionError{Op: "open", Addr: root, Reason: "root without intern tables"}
	}
	s.root = root
	return s, nil
}

func (s *Store) init(buckets int) error {
	sc := s.schema
	root, err := sc.Root.Allocate(s.db)
	if err != nil {
		return err
	}
	if s.sigArr, err = s.sigs.Create(s.db, buckets); err != nil {
		return err
	}
	if s.strArr, err = s.strs.Create(s.db, buckets); err != nil {
		return err
	}
	if err := sc.RootSignatures.Put(s.db, root, s.sigArr); err != nil {
		return err
	}
	if err := sc.RootStrings.Put(s.db, root, s.strArr); err != nil {
		return err
	}
	if err := s.db.SetRoot(root); err != nil {
		return err
	}
	s.root = root
	return nil
}

// Schema returns the schema of the store.
func (s *Store) Schema() *Schema { return s.schema }

// Database returns the underlying database.
func (s *Store) Database() *database.Database { return s.db }

// Signature interns the type signature name and returns its record.
func (s *Store) Signature(name string) (database.Address, error) {
	if name == "" {
		return database.Null, fmt.Errorf("%w: empty type signature", ErrInvalidValue)
	}
	addr, _, err := s.sigs.Intern(s.db, s.sigArr, name)
	return addr, err
}

// LookupSignature returns the record of an interned type signature, or Null.
func (s *Store) LookupSignature(name string) (database.Address, error) {
	return s.sigs.Lookup(s.db, s.sigArr, name)
}

// SignatureName returns the name of a type signature record.
func (s *Store) SignatureName(sig database.Address) (string, error) {
	return s.schema.SignatureName.Get(s.db, sig)
}

// PoolString interns v in the string pool and returns its record.
func (s *Store) PoolString(v string) (database.Address, error) {
	addr, _, err := s.strs.Intern(s.db, s.strArr, v)
	return addr, err
}

// LookupPoolString returns the record of a pooled string, or Null.
func (s *Store) LookupPoolString(v string) (database.Address, error) {
	return s.strs.Lookup(s.db, s.strArr, v)
}

// Create stores v and returns the address of the new constant. On error no
// constant records remain allocated; interned records created on the way are
// left for Purge.
func (s *Store) Create(v Value) (database.Address, error) {
	if err := validate(v); err != nil {
		return database.Null, err
	}
	return s.create(v)
}

// CreateClass stores a class literal referencing the signature record sig.
func (s *Store) CreateClass(sig database.Address) (database.Address, error) {
	sc := s.schema
	if err := sc.Signature.Check(s.db, sig); err != nil {
		return database.Null, err
	}
	rec, err := sc.Class.Allocate(s.db)
	if err != nil {
		return database.Null, err
	}
	err = sc.ConstantTag.Put(s.db, rec, uint8(TagClass))
	if err == nil {
		err = sc.ClassValue.Put(s.db, rec, sig)
	}
	if err != nil {
		return database.Null, s.abort(rec, err)
	}
	return rec, nil
}

func validate(v Value) error {
	switch x := v.(type) {
	case nil:
		return fmt.Errorf("%w: nil", ErrInvalidValue)
	case Class:
		if x.Signature == "" {
			return fmt.Errorf("%w: class literal without signature", ErrInvalidValue)
		}
	case Enum:
		if x.Type == "" {
			return fmt.Errorf("%w: enum literal without type", ErrInvalidValue)
		}
	case Array:
		for i, e := range x {
			if err := validate(e); err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
		}
	case Annotation:
		if x.Type == "" {
			return fmt.Errorf("%w: annotation without type", ErrInvalidValue)
		}
		for _, p := range x.Pairs {
			if err := validate(p.Value); err != nil {
				return fmt.Errorf("pair %q: %w", p.Name, err)
			}
		}
	}
	return nil
}

func (s *Store) create(v Value) (database.Address, error) {
	kind, ok := s.schema.Variant(v.Tag())
	if !ok {
		return database.Null, fmt.Errorf("%w: tag %s", ErrInvalidValue, v.Tag())
	}
	rec, err := kind.Allocate(s.db)
	if err != nil {
		return database.Null, err
	}
	if err := s.fill(rec, v); err != nil {
		return database.Null, s.abort(rec, err)
	}
	return rec, nil
}

func (s *Store) abort(rec database.Address, err error) error {
	if derr := s.delete(rec); derr != nil {
		return errors.Join(err, derr)
	}
	return err
}

func (s *Store) fill(rec database.Address, v Value) error {
	sc, db := s.schema, s.db
	if err := sc.ConstantTag.Put(db, rec, uint8(v.Tag())); err != nil {
		return err
	}

	switch x := v.(type) {
	case Boolean:
		return sc.BooleanValue.Put(db, rec, bool(x))
	case Byte:
		return sc.ByteValue.Put(db, rec, int8(x))
	case Short:
		return sc.ShortValue.Put(db, rec, int16(x))
	case Char:
		return sc.CharValue.Put(db, rec, uint16(x))
	case Int:
		return sc.IntValue.Put(db, rec, int32(x))
	case Long:
		return sc.LongValue.Put(db, rec, int64(x))
	case Float:
		return sc.FloatValue.Put(db, rec, float32(x))
	case Double:
		return sc.DoubleValue.Put(db, rec, float64(x))
	case String:
		ps, err := s.PoolString(string(x))
		if err != nil {
			return err
		}
		return sc.StringValue.Put(db, rec, ps)
	case Class:
		sig, err := s.Signature(x.Signature)
		if err != nil {
			return err
		}
		return sc.ClassValue.Put(db, rec, sig)
	case Enum:
		sig, err := s.Signature(x.Type)
		if err != nil {
			return err
		}
		name, err := s.PoolString(x.Name)
		if err != nil {
			return err
		}
		if err := sc.EnumType.Put(db, rec, sig); err != nil {
			return err
		}
		return sc.EnumName.Put(db, rec, name)
	case Array:
		for _, e := range x {
			if err := s.addChild(rec, sc.Element, sc.ElementParent, nil, "", e); err != nil {
				return err
			}
		}
		return nil
	case Annotation:
		sig, err := s.Signature(x.Type)
		if err != nil {
			return err
		}
		if err := sc.AnnotationType.Put(db, rec, sig); err != nil {
			return err
		}
		for _, p := range x.Pairs {
			if err := s.addChild(rec, sc.Pair, sc.PairParent, sc.PairName, p.Name, p.Value); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: %T", ErrInvalidValue, v)
	}
}

// addChild appends a slot holding a nested constant to parent. The slot is
// linked before the nested constant is created, so a failure leaves
// everything reachable from parent.
func (s *Store) addChild(parent database.Address, kind *nd.Kind, link *nd.ManyToOne, nameField *nd.String, name string, v Value) error {
	db := s.db
	child, err := kind.Allocate(db)
	if err != nil {
		return err
	}
	if err := link.Put(db, child, parent); err != nil {
		if rerr := kind.Release(db, child); rerr != nil {
			return errors.Join(err, rerr)
		}
		return err
	}
	if nameField != nil {
		if err := nameField.Put(db, child, name); err != nil {
			return err
		}
	}
	nested, err := s.create(v)
	if err != nil {
		return err
	}
	if err := s.schema.SlotValue.Put(db, child, nested); err != nil {
		return s.abort(nested, err)
	}
	return nil
}

// Delete releases the constant at addr together with the array elements and
// annotation pairs it owns. Interned signatures and strings stay; Purge
// releases the unreferenced ones. Constants nested in an array or annotation
// are deleted with their parent only; deleting one directly fails with
// ErrOwned.
func (s *Store) Delete(addr database.Address) error {
	if _, _, err := s.constant(addr); err != nil {
		return err
	}
	owner, err := s.Owner(addr)
	if err != nil {
		return err
	}
	if !owner.IsNull() {
		return &OwnedError{Addr: addr, Owner: owner}
	}
	return s.delete(addr)
}

// Owner returns the array or annotation owning the nested constant at addr,
// or Null for a top-level constant.
func (s *Store) Owner(addr database.Address) (database.Address, error) {
	sc := s.schema
	slots, err := sc.ConstantOwner.Owners(s.db, addr)
	if err != nil {
		return database.Null, err
	}
	switch len(slots) {
	case 0:
		return database.Null, nil
	case 1:
	default:
		return database.Null, &nd.ChainError{Addr: addr, Field: sc.ConstantOwner.String(), Reason: fmt.Sprintf("owned by %d slots", len(slots))}
	}
	kind, err := sc.Registry.KindOf(s.db, slots[0])
	if err != nil {
		return database.Null, err
	}
	switch kind {
	case sc.Element:
		return sc.ElementParent.Get(s.db, slots[0])
	case sc.Pair:
		return sc.PairParent.Get(s.db, slots[0])
	}
	return database.Null, &nd.KindMismatchError{Addr: slots[0], Want: sc.Slot.String(), Got: kind.String()}
}

func (s *Store) delete(rec database.Address) error {
	sc := s.schema
	kind, err := sc.Registry.KindOf(s.db, rec)
	if err != nil {
		return err
	}
	switch kind {
	case sc.Array:
		err = s.deleteChildren(rec, sc.ArrayElements)
	case sc.Annotation:
		err = s.deleteChildren(rec, sc.AnnotationPairs)
	}
	if err != nil {
		return err
	}
	return kind.Release(s.db, rec)
}

// deleteChildren releases each slot of parent before the constant it holds,
// so the constant is no longer owned when it is released.
func (s *Store) deleteChildren(parent database.Address, set *nd.BackReference) error {
	children, err := set.Owners(s.db, parent)
	if err != nil {
		return err
	}
	for _, child := range children {
		nested, err := s.schema.SlotValue.Get(s.db, child)
		if err != nil {
			return err
		}
		if err := s.schema.Registry.Release(s.db, child); err != nil {
			return err
		}
		if !nested.IsNull() {
			if err := s.delete(nested); err != nil {
				return err
			}
		}
	}
	return nil
}

// constant checks that addr holds a constant whose discriminator agrees
// with the kind it was allocated as.
func (s *Store) constant(addr database.Address) (*nd.Kind, Tag, error) {
	sc := s.schema
	kind, err := sc.Registry.KindOf(s.db, addr)
	if err != nil {
		return nil, TagInvalid, err
	}
	want, ok := s.tags[kind.ID()]
	if !ok {
		return nil, TagInvalid, fmt.Errorf("%w: %s is a %s", ErrNotConstant, addr, kind)
	}
	raw, err := sc.ConstantTag.Get(s.db, addr)
	if err != nil {
		return nil, TagInvalid, err
	}
	if got := Tag(raw); got != want {
		return nil, TagInvalid, &WrongVariantError{Addr: addr, Want: want, Got: got}
	}
	return kind, want, nil
}

// Tag returns the variant of the constant at addr.
func (s *Store) Tag(addr database.Address) (Tag, error) {
	_, t, err := s.constant(addr)
	return t, err
}

// Decode reads the constant at addr.
func (s *Store) Decode(addr database.Address) (Value, error) {
	_, t, err := s.constant(addr)
	if err != nil {
		return nil, err
	}
	return s.decode(addr, t)
}

// DecodeAs reads the constant at addr, failing with a WrongVariantError
// unless it is of variant want.
func (s *Store) DecodeAs(addr database.Address, want Tag) (Value, error) {
	_, t, err := s.constant(addr)
	if err != nil {
		return nil, err
	}
	if t != want {
		return nil, &WrongVariantError{Addr: addr, Want: want, Got: t}
	}
	return s.decode(addr, t)
}

// ClassSignature returns the signature record referenced by the class
// literal at addr.
func (s *Store) ClassSignature(addr database.Address) (database.Address, error) {
	if err := s.expect(addr, TagClass); err != nil {
		return database.Null, err
	}
	return s.schema.ClassValue.Get(s.db, addr)
}

// EnumLiteral returns the type signature and name records of the enum
// literal at addr.
func (s *Store) EnumLiteral(addr database.Address) (typ, name database.Address, err error) {
	if err = s.expect(addr, TagEnum); err != nil {
		return database.Null, database.Null, err
	}
	if typ, err = s.schema.EnumType.Get(s.db, addr); err != nil {
		return database.Null, database.Null, err
	}
	name, err = s.schema.EnumName.Get(s.db, addr)
	return typ, name, err
}

// StringLiteral returns the pool string referenced by the string constant at
// addr.
func (s *Store) StringLiteral(addr database.Address) (database.Address, error) {
	if err := s.expect(addr, TagString); err != nil {
		return database.Null, err
	}
	return s.schema.StringValue.Get(s.db, addr)
}

func (s *Store) expect(addr database.Address, want Tag) error {
	_, t, err := s.constant(addr)
	if err != nil {
		return err
	}
	if t != want {
		return &WrongVariantError{Addr: addr, Want: want, Got: t}
	}
	return nil
}

func (s *Store) decode(rec database.Address, t Tag) (Value, error) {
	sc, db := s.schema, s.db
	switch t {
	case TagBoolean:
		v, err := sc.BooleanValue.Get(db, rec)
		return Boolean(v), err
	case TagByte:
		v, err := sc.ByteValue.Get(db, rec)
		return Byte(v), err
	case TagShort:
		v, err := sc.ShortValue.Get(db, rec)
		return Short(v), err
	case TagChar:
		v, err := sc.CharValue.Get(db, rec)
		return Char(v), err
	case TagInt:
		v, err := sc.IntValue.Get(db, rec)
		return Int(v), err
	case TagLong:
		v, err := sc.LongValue.Get(db, rec)
		return Long(v), err
	case TagFloat:
		v, err := sc.FloatValue.Get(db, rec)
		return Float(v), err
	case TagDouble:
		v, err := sc.DoubleValue.Get(db, rec)
		return Double(v), err
	case TagString:
		v, err := s.target(rec, sc.StringValue, sc.PoolStringValue)
		return String(v), err
	case TagClass:
		v, err := s.target(rec, sc.ClassValue, sc.SignatureName)
		return Class{Signature: v}, err
	case TagEnum:
		typ, err := s.target(rec, sc.EnumType, sc.SignatureName)
		if err != nil {
			return nil, err
		}
		name, err := s.target(rec, sc.EnumName, sc.PoolStringValue)
		return Enum{Type: typ, Name: name}, err
	case TagArray:
		out := Array{}
		err := s.children(rec, sc.ArrayElements, func(_ database.Address, v Value) error {
			out = append(out, v)
			return nil
		})
		return out, err
	case TagAnnotation:
		typ, err := s.target(rec, sc.AnnotationType, sc.SignatureName)
		if err != nil {
			return nil, err
		}
		out := Annotation{Type: typ, Pairs: []Pair{}}
		err = s.children(rec, sc.AnnotationPairs, func(child database.Address, v Value) error {
			name, err := sc.PairName.Get(db, child)
			if err != nil {
				return err
			}
			out.Pairs = append(out.Pairs, Pair{Name: name, Value: v})
			return nil
		})
		return out, err
	default:
		return nil, fmt.Errorf("%w: tag %s", ErrNotConstant, t)
	}
}

// target reads the key of the interned record referenced by link. A null
// reference reads as the empty string.
func (s *Store) target(rec database.Address, link *nd.ManyToOne, key *nd.String) (string, error) {
	ref, err := link.Get(s.db, rec)
	if err != nil || ref.IsNull() {
		return "", err
	}
	return key.Get(s.db, ref)
}

func (s *Store) children(parent database.Address, set *nd.BackReference, fn func(child database.Address, v Value) error) error {
	return set.ForEach(s.db, parent, func(child database.Address) error {
		nested, err := s.schema.SlotValue.Get(s.db, child)
		if err != nil {
			return err
		}
		if nested.IsNull() {
			return &nd.ChainError{Addr: child, Field: set.String(), Reason: "child without value"}
		}
		v, err := s.Decode(nested)
		if err != nil {
			return err
		}
		return fn(child, v)
	})
}
