package constant

import (
	"errors"
	"fmt"

	"github.com/hupe1980/ndb/database"
	"github.com/hupe1980/ndb/nd"
)

var (
	// ErrWrongVariant is returned when a constant is read through the
	// accessor of another variant. It wraps nd.ErrInvariant.
	ErrWrongVariant = fmt.Errorf("constant: wrong variant: %w", nd.ErrInvariant)

	// ErrInvalidValue is returned by Create for nil or malformed values.
	ErrInvalidValue = errors.New("constant: invalid value")

	// ErrNotConstant is returned when an address does not hold a top-level
	// constant record.
	ErrNotConstant = fmt.Errorf("constant: not a constant: %w", nd.ErrInvariant)

	// ErrOwned is returned by Delete for a constant nested in an array or an
	// annotation. It wraps nd.ErrInvariant.
	ErrOwned = fmt.Errorf("constant: owned by another constant: %w", nd.ErrInvariant)
)

// WrongVariantError reports a constant read through the wrong variant.
type WrongVariantError struct {
	Addr database.Address
	Want Tag
	Got  Tag
}

func (e *WrongVariantError) Error() string {
	return fmt.Sprintf("constant %s: want %s, got %s", e.Addr, e.Want, e.Got)
}

func (e *WrongVariantError) Unwrap() error { return ErrWrongVariant }

// OwnedError reports a delete of a nested constant.
type OwnedError struct {
	Addr  database.Address
	Owner database.Address
}

func (e *OwnedError) Error() string {
	return fmt.Sprintf("constant %s is owned by %s", e.Addr, e.Owner)
}

func (e *OwnedError) Unwrap() error { return ErrOwned }
