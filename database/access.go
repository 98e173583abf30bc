package database

import (
	"encoding/binary"
	"math"
)

// Bytes returns the mapped bytes [addr, addr+n) without copying. The slice
// aliases the store and is valid until Close; writes to it bypass the
// read-only check.
func (db *Database) Bytes(addr Address, n int) ([]byte, error) {
	return db.slice("read", addr, n)
}

// Read copies n bytes starting at addr.
func (db *Database) Read(addr Address, n int) ([]byte, error) {
	b, err := db.slice("read", addr, n)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), b...), nil
}

// Write copies b to addr.
func (db *Database) Write(addr Address, b []byte) error {
	dst, err := db.writeSlice(addr, len(b))
	if err != nil {
		return err
	}
	copy(dst, b)
	return nil
}

// Zero clears n bytes starting at addr.
func (db *Database) Zero(addr Address, n int) error {
	dst, err := db.writeSlice(addr, n)
	if err != nil {
		return err
	}
	clear(dst)
	return nil
}

// GetUint8 reads a byte.
func (db *Database) GetUint8(addr Address) (uint8, error) {
	b, err := db.slice("read", addr, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// PutUint8 writes a byte.
func (db *Database) PutUint8(addr Address, v uint8) error {
	b, err := db.writeSlice(addr, 1)
	if err != nil {
		return err
	}
	b[0] = v
	return nil
}

// GetUint16 reads a little-endian uint16.
func (db *Database) GetUint16(addr Address) (uint16, error) {
	b, err := db.slice("read", addr, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// PutUint16 writes a little-endian uint16.
func (db *Database) PutUint16(addr Address, v uint16) error {
	b, err := db.writeSlice(addr, 2)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(b, v)
	return nil
}

// GetUint32 reads a little-endian uint32.
func (db *Database) GetUint32(addr Address) (uint32, error) {
	b, err := db.slice("read", addr, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// PutUint32 writes a little-endian uint32.
func (db *Database) PutUint32(addr Address, v uint32) error {
	b, err := db.writeSlice(addr, 4)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(b, v)
	return nil
}

// GetUint64 reads a little-endian uint64.
func (db *Database) GetUint64(addr Address) (uint64, error) {
	b, err := db.slice("read", addr, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// PutUint64 writes a little-endian uint64.
func (db *Database) PutUint64(addr Address, v uint64) error {
	b, err := db.writeSlice(addr, 8)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(b, v)
	return nil
}

// GetFloat64 reads an IEEE 754 double, bit-exact.
func (db *Database) GetFloat64(addr Address) (float64, error) {
	v, err := db.GetUint64(addr)
	return math.Float64frombits(v), err
}

// PutFloat64 writes an IEEE 754 double, bit-exact.
func (db *Database) PutFloat64(addr Address, v float64) error {
	return db.PutUint64(addr, math.Float64bits(v))
}

// GetAddress reads an address.
func (db *Database) GetAddress(addr Address) (Address, error) {
	v, err := db.GetUint64(addr)
	return Address(v), err
}

// PutAddress writes an address.
func (db *Database) PutAddress(addr Address, v Address) error {
	return db.PutUint64(addr, uint64(v))
}

func (db *Database) writeSlice(addr Address, n int) ([]byte, error) {
	if db.opts.ReadOnly {
		return nil, ErrReadOnly
	}
	return db.slice("write", addr, n)
}

// slice bounds-checks [addr, addr+n) against the allocated range and the
// chunk containing addr. Violations are fatal.
func (db *Database) slice(op string, addr Address, n int) ([]byte, error) {
	if err := db.check(); err != nil {
		return nil, err
	}
	a := uint64(addr)
	hw := db.highWater.Load()
	if n < 0 || a < HeaderSize+BlockHeaderSize || a+uint64(n) > hw || a+uint64(n) < a {
		return nil, db.corrupt(op, addr, ErrOutOfRange, "%d bytes outside allocated range [%#x, %#x)", n, HeaderSize, hw)
	}
	if (a&(db.chunkSize-1))+uint64(n) > db.chunkSize {
		return nil, db.corrupt(op, addr, ErrOutOfRange, "%d bytes cross a chunk boundary", n)
	}
	if n == 0 {
		return []byte{}, nil
	}
	return db.raw(a, uint64(n)), nil
}
