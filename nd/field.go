package nd

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/hupe1980/ndb/database"
	"github.com/hupe1980/ndb/internal/conv"
)

// Field is a typed accessor bound to an offset of a kind's layout.
type Field interface {
	Name() string
	Offset() int
	Size() int
	Owner() *Kind
	// Type names the field codec, e.g. "int32" or "many-to-one(TypeSignature)".
	Type() string
}

// destructor is implemented by fields that own storage or links which must
// be released together with the record.
type destructor interface {
	destruct(db *database.Database, rec database.Address) error
}

// releaseGuard is implemented by fields that can veto a release.
type releaseGuard interface {
	guard(db *database.Database, rec database.Address) error
}

type field struct {
	owner  *Kind
	name   string
	offset int
	size   int
	typ    string
}

func (f *field) Name() string   { return f.name }
func (f *field) Offset() int    { return f.offset }
func (f *field) Size() int      { return f.size }
func (f *field) Owner() *Kind   { return f.owner }
func (f *field) Type() string   { return f.typ }
func (f *field) String() string { return f.owner.name + "." + f.name }

func (f *field) addr(rec database.Address) database.Address {
	return rec.Add(f.offset)
}

// read returns the field bytes of rec after checking rec's kind.
func (f *field) read(db *database.Database, rec database.Address) ([]byte, error) {
	if err := f.owner.Check(db, rec); err != nil {
		return nil, err
	}
	return db.Bytes(f.addr(rec), f.size)
}

func (f *field) write(db *database.Database, rec database.Address, b []byte) error {
	if err := f.owner.Check(db, rec); err != nil {
		return err
	}
	return db.Write(f.addr(rec), b)
}

// Scalar is a fixed-width value field.
type Scalar[T any] struct {
	field
	decode func([]byte) T
	encode func([]byte, T)
}

// Get reads the field of rec.
func (s *Scalar[T]) Get(db *database.Database, rec database.Address) (T, error) {
	b, err := s.read(db, rec)
	if err != nil {
		var zero T
		return zero, err
	}
	return s.decode(b), nil
}

// Put writes the field of rec.
func (s *Scalar[T]) Put(db *database.Database, rec database.Address, v T) error {
	var buf [8]byte
	s.encode(buf[:s.size], v)
	return s.write(db, rec, buf[:s.size])
}

func newScalar[T any](k *Kind, name, typ string, size int, decode func([]byte) T, encode func([]byte, T)) *Scalar[T] {
	s := &Scalar[T]{decode: decode, encode: encode}
	s.field = field{owner: k, name: name, size: size, typ: typ}
	s.offset = k.addField(s, name, size, size)
	return s
}

// NewUint8 adds an 8-bit unsigned field.
func NewUint8(k *Kind, name string) *Scalar[uint8] {
	return newScalar(k, name, "uint8", 1,
		func(b []byte) uint8 { return b[0] },
		func(b []byte, v uint8) { b[0] = v })
}

// NewInt8 adds an 8-bit signed field.
func NewInt8(k *Kind, name string) *Scalar[int8] {
	return newScalar(k, name, "int8", 1,
		func(b []byte) int8 { return int8(b[0]) },
		func(b []byte, v int8) { b[0] = byte(v) })
}

// NewBool adds a boolean field stored as one byte.
func NewBool(k *Kind, name string) *Scalar[bool] {
	return newScalar(k, name, "bool", 1,
		func(b []byte) bool { return b[0] != 0 },
		func(b []byte, v bool) {
			b[0] = 0
			if v {
				b[0] = 1
			}
		})
}

// NewUint16 adds a 16-bit unsigned field.
func NewUint16(k *Kind, name string) *Scalar[uint16] {
	return newScalar(k, name, "uint16", 2, binary.LittleEndian.Uint16, binary.LittleEndian.PutUint16)
}

// NewChar adds a UTF-16 code unit field.
func NewChar(k *Kind, name string) *Scalar[uint16] {
	return newScalar(k, name, "char", 2, binary.LittleEndian.Uint16, binary.LittleEndian.PutUint16)
}

// NewInt16 adds a 16-bit signed field.
func NewInt16(k *Kind, name string) *Scalar[int16] {
	return newScalar(k, name, "int16", 2,
		func(b []byte) int16 { return int16(binary.LittleEndian.Uint16(b)) },
		func(b []byte, v int16) { binary.LittleEndian.PutUint16(b, uint16(v)) })
}

// NewUint32 adds a 32-bit unsigned field.
func NewUint32(k *Kind, name string) *Scalar[uint32] {
	return newScalar(k, name, "uint32", 4, binary.LittleEndian.Uint32, binary.LittleEndian.PutUint32)
}

// NewInt32 adds a 32-bit signed field.
func NewInt32(k *Kind, name string) *Scalar[int32] {
	return newScalar(k, name, "int32", 4,
		func(b []byte) int32 { return int32(binary.LittleEndian.Uint32(b)) },
		func(b []byte, v int32) { binary.LittleEndian.PutUint32(b, uint32(v)) })
}

// NewUint64 adds a 64-bit unsigned field.
func NewUint64(k *Kind, name string) *Scalar[uint64] {
	return newScalar(k, name, "uint64", 8, binary.LittleEndian.Uint64, binary.LittleEndian.PutUint64)
}

// NewInt64 adds a 64-bit signed field.
func NewInt64(k *Kind, name string) *Scalar[int64] {
	return newScalar(k, name, "int64", 8,
		func(b []byte) int64 { return int64(binary.LittleEndian.Uint64(b)) },
		func(b []byte, v int64) { binary.LittleEndian.PutUint64(b, uint64(v)) })
}

// NewFloat32 adds an IEEE 754 single precision field. Values are stored
// bit-exact, NaN payloads included.
func NewFloat32(k *Kind, name string) *Scalar[float32] {
	return newScalar(k, name, "float32", 4,
		func(b []byte) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(b)) },
		func(b []byte, v float32) { binary.LittleEndian.PutUint32(b, math.Float32bits(v)) })
}

// NewFloat64 adds an IEEE 754 double precision field, stored bit-exact.
func NewFloat64(k *Kind, name string) *Scalar[float64] {
	return newScalar(k, name, "float64", 8,
		func(b []byte) float64 { return math.Float64frombits(binary.LittleEndian.Uint64(b)) },
		func(b []byte, v float64) { binary.LittleEndian.PutUint64(b, math.Float64bits(v)) })
}

// Pointer is an untracked reference to another record. Unlike ManyToOne it
// maintains no back-references and does not check the target.
type Pointer struct {
	field
}

// NewPointer adds a pointer field.
func NewPointer(k *Kind, name string) *Pointer {
	p := &Pointer{field: field{owner: k, name: name, size: 8, typ: "pointer"}}
	p.offset = k.addField(p, name, 8, 8)
	return p
}

// Get reads the pointer of rec.
func (p *Pointer) Get(db *database.Database, rec database.Address) (database.Address, error) {
	b, err := p.read(db, rec)
	if err != nil {
		return database.Null, err
	}
	return database.Address(binary.LittleEndian.Uint64(b)), nil
}

// Put writes the pointer of rec.
func (p *Pointer) Put(db *database.Database, rec database.Address, v database.Address) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(v))
	return p.write(db, rec, buf[:])
}

// String is a field owning a length-prefixed byte blob. The empty string is
// stored as a null blob address.
type String struct {
	field
}

// NewString adds a string field.
func NewString(k *Kind, name string) *String {
	s := &String{field: field{owner: k, name: name, size: 8, typ: "string"}}
	s.offset = k.addField(s, name, 8, 8)
	return s
}

const stringPrefix = 4

// Get reads the string of rec.
func (s *String) Get(db *database.Database, rec database.Address) (string, error) {
	b, err := s.read(db, rec)
	if err != nil {
		return "", err
	}
	blob := database.Address(binary.LittleEndian.Uint64(b))
	if blob.IsNull() {
		return "", nil
	}
	n, err := s.blobLen(db, blob)
	if err != nil {
		return "", err
	}
	data, err := db.Bytes(blob.Add(stringPrefix), n)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Put replaces the string of rec. The previous blob is checked before the
// new one is allocated and released after the new one is in place, so a
// failed Put leaves no unreachable blob behind.
func (s *String) Put(db *database.Database, rec database.Address, v string) error {
	if err := s.owner.Check(db, rec); err != nil {
		return err
	}
	n, err := conv.IntToUint32(len(v))
	if err != nil {
		return fmt.Errorf("%w: string of %d bytes: %w", database.ErrTooLarge, len(v), err)
	}
	if len(v)+stringPrefix > db.MaxRecordSize() {
		return fmt.Errorf("%w: string of %d bytes", database.ErrTooLarge, len(v))
	}

	old, err := db.GetAddress(s.addr(rec))
	if err != nil {
		return err
	}
	oldLen := 0
	if !old.IsNull() {
		if oldLen, err = s.blobLen(db, old); err != nil {
			return err
		}
	}

	var blob database.Address
	if v != "" {
		if blob, err = db.Allocate(len(v)+stringPrefix, 0); err != nil {
			return err
		}
		err = db.PutUint32(blob, n)
		if err == nil {
			err = db.Write(blob.Add(stringPrefix), []byte(v))
		}
		if err == nil {
			err = db.PutAddress(s.addr(rec), blob)
		}
		if err != nil {
			if ferr := db.Free(blob, len(v)+stringPrefix); ferr != nil {
				return errors.Join(err, ferr)
			}
			return err
		}
	} else if err := db.PutAddress(s.addr(rec), database.Null); err != nil {
		return err
	}

	if old.IsNull() {
		return nil
	}
	return db.Free(old, oldLen+stringPrefix)
}

func (s *String) blobLen(db *database.Database, blob database.Address) (int, error) {
	n, err := db.GetUint32(blob)
	if err != nil {
		return 0, err
	}
	size, err := conv.Uint32ToInt(n)
	if err != nil {
		return 0, &database.CorruptionError{Op: "string", Addr: blob, Reason: err.Error()}
	}
	return size, nil
}

func (s *String) destruct(db *database.Database, rec database.Address) error {
	old, err := db.GetAddress(s.addr(rec))
	if err != nil || old.IsNull() {
		return err
	}
	n, err := s.blobLen(db, old)
	if err != nil {
		return err
	}
	if err := db.Free(old, n+stringPrefix); err != nil {
		return err
	}
	return db.PutAddress(s.addr(rec), database.Null)
}
