package database

import (
	"errors"
	"fmt"
)

var (
	// ErrCorrupt is the root of every corruption error. Corruption is fatal:
	// the database refuses further operations until Validate succeeds.
	ErrCorrupt = errors.New("database: corrupt")

	// ErrOutOfRange is returned for accesses outside the allocated address range.
	ErrOutOfRange = fmt.Errorf("%w: address out of range", ErrCorrupt)

	// ErrCapacity is returned when the store cannot grow. It is recoverable.
	ErrCapacity = errors.New("database: capacity exhausted")

	// ErrTooLarge is returned for records that cannot fit into a single chunk.
	ErrTooLarge = fmt.Errorf("%w: record larger than a chunk", ErrCapacity)

	// ErrIncompatibleVersion is returned when the stored format, schema version
	// or layout fingerprint differs from the expected one.
	ErrIncompatibleVersion = errors.New("database: incompatible version")

	// ErrUncleanShutdown is returned when the store was not closed cleanly.
	ErrUncleanShutdown = errors.New("database: unclean shutdown")

	// ErrClosed is returned for operations on a closed database.
	ErrClosed = errors.New("database: closed")

	// ErrReadOnly is returned for mutations of a read-only database.
	ErrReadOnly = errors.New("database: read-only")
)

// CorruptionError describes a detected corruption or an invalid address.
type CorruptionError struct {
	Op     string
	Addr   Address
	Reason string
	Err    error
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("database: %s at %s: %s", e.Op, e.Addr, e.Reason)
}

func (e *CorruptionError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrCorrupt
}

// IncompatibleVersionError reports which stamp of the store header did not match.
type IncompatibleVersionError struct {
	Field    string
	Stored   uint64
	Expected uint64
}

func (e *IncompatibleVersionError) Error() string {
	return fmt.Sprintf("database: incompatible %s: stored %d, expected %d", e.Field, e.Stored, e.Expected)
}

func (e *IncompatibleVersionError) Unwrap() error {
	return ErrIncompatibleVersion
}
