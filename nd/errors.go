package nd

import (
	"errors"
	"fmt"

	"github.com/hupe1980/ndb/database"
)

var (
	// ErrInvariant is the root of every relational invariant violation:
	// a record used under the wrong kind, a dangling reference, a release
	// that would leave references behind.
	ErrInvariant = errors.New("nd: invariant violation")

	// ErrBackReferences is returned when releasing a record that is still
	// referenced. The store is left unchanged.
	ErrBackReferences = fmt.Errorf("%w: record is still referenced", ErrInvariant)
)

// KindMismatchError is returned when a record is accessed through a field or
// kind it was not allocated as.
type KindMismatchError struct {
	Addr database.Address
	Want string
	Got  string
}

func (e *KindMismatchError) Error() string {
	return fmt.Sprintf("nd: record %s is %s, not %s", e.Addr, e.Got, e.Want)
}

func (e *KindMismatchError) Unwrap() error {
	return ErrInvariant
}

// BackReferenceError names the back-reference set that blocked a release.
type BackReferenceError struct {
	Addr  database.Address
	Kind  string
	Field string
	Count int
}

func (e *BackReferenceError) Error() string {
	return fmt.Sprintf("nd: cannot release %s %s: %s has %d back references", e.Kind, e.Addr, e.Field, e.Count)
}

func (e *BackReferenceError) Unwrap() error {
	return ErrBackReferences
}

// ChainError reports an inconsistent back-reference list.
type ChainError struct {
	Addr   database.Address
	Field  string
	Reason string
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("nd: back references %s of %s: %s", e.Field, e.Addr, e.Reason)
}

func (e *ChainError) Unwrap() error {
	return ErrInvariant
}
