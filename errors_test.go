package ndb

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hupe1980/ndb/blobstore"
	"github.com/hupe1980/ndb/constant"
	"github.com/hupe1980/ndb/database"
	"github.com/hupe1980/ndb/nd"
	"github.com/hupe1980/ndb/persistence"
)

func TestTranslateError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"closed", database.ErrClosed, ErrClosed},
		{"read-only", fmt.Errorf("constant: %w", database.ErrReadOnly), ErrReadOnly},
		{"version", &database.IncompatibleVersionError{Field: "schema version", Stored: 1, Expected: 2}, ErrIncompatibleVersion},
		{"unclean", database.ErrUncleanShutdown, ErrUncleanShutdown},
		{"too large", database.ErrTooLarge, ErrCapacity},
		{"corrupt", &database.CorruptionError{Op: "block", Reason: "bad"}, ErrCorrupt},
		{"out of range", database.ErrOutOfRange, ErrCorrupt},
		{"back references", &nd.BackReferenceError{Kind: "sig", Field: "users", Count: 1}, ErrInvariant},
		{"wrong variant", &constant.WrongVariantError{Want: constant.TagInt, Got: constant.TagLong}, ErrInvariant},
		{"invalid value", constant.ErrInvalidValue, ErrInvalidValue},
		{"not found", os.ErrNotExist, ErrNotFound},
		{"blob not found", blobstore.ErrNotFound, ErrNotFound},
		{"checksum", &persistence.ChecksumMismatchError{Expected: 1, Actual: 2}, ErrInvalidSnapshot},
		{"magic", persistence.ErrInvalidMagic, ErrInvalidSnapshot},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := translateError(tt.err)
			assert.ErrorIs(t, got, tt.want)
			assert.ErrorIs(t, got, tt.err)
		})
	}

	assert.NoError(t, translateError(nil))
	plain := errors.New("plain")
	assert.Same(t, plain, translateError(plain))
}
