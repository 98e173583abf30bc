package conv

import (
	"errors"
	"fmt"
	"math"
)

// ErrOverflow is returned when a value does not fit the target width.
var ErrOverflow = errors.New("conv: integer overflow")

// OverflowError names the value and the width it did not fit.
type OverflowError struct {
	Value string
	To    string
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("conv: %s does not fit %s", e.Value, e.To)
}

func (e *OverflowError) Unwrap() error { return ErrOverflow }

// IntToUint32 narrows a Go length or count to an on-disk uint32.
func IntToUint32(v int) (uint32, error) {
	if v < 0 || uint64(v) > math.MaxUint32 {
		return 0, &OverflowError{Value: fmt.Sprint(v), To: "uint32"}
	}
	return uint32(v), nil
}

// Uint32ToInt widens an on-disk uint32. It only fails where int is 32 bits.
func Uint32ToInt(v uint32) (int, error) {
	if uint64(v) > uint64(math.MaxInt) {
		return 0, &OverflowError{Value: fmt.Sprint(v), To: "int"}
	}
	return int(v), nil
}

// Uint64ToInt converts an on-disk uint64 count to int.
func Uint64ToInt(v uint64) (int, error) {
	if v > uint64(math.MaxInt) {
		return 0, &OverflowError{Value: fmt.Sprint(v), To: "int"}
	}
	return int(v), nil
}
