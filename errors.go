package ndb

import (
	"errors"
	"fmt"

	"github.com/hupe1980/ndb/blobstore"
	"github.com/hupe1980/ndb/constant"
	"github.com/hupe1980/ndb/database"
	"github.com/hupe1980/ndb/nd"
	"github.com/hupe1980/ndb/persistence"
)

var (
	// ErrCorrupt is returned when the store, or an address into it, fails
	// validation. The store refuses further operations until Validate
	// succeeds.
	ErrCorrupt = errors.New("ndb: corrupt store")

	// ErrCapacity is returned when the store cannot grow. It is recoverable.
	ErrCapacity = errors.New("ndb: capacity exhausted")

	// ErrIncompatibleVersion is returned when a store was written with a
	// different format or schema. Rebuild the store.
	ErrIncompatibleVersion = errors.New("ndb: incompatible version")

	// ErrUncleanShutdown is returned when a store was not closed cleanly and
	// WithRecoverUnclean is not set.
	ErrUncleanShutdown = errors.New("ndb: unclean shutdown")

	// ErrInvariant is returned for relational invariant violations: a record
	// used as the wrong kind or variant, or a release that would leave
	// dangling references.
	ErrInvariant = errors.New("ndb: invariant violation")

	// ErrInvalidValue is returned when creating a malformed constant.
	ErrInvalidValue = errors.New("ndb: invalid value")

	// ErrInvalidSnapshot is returned for damaged or foreign snapshot streams.
	ErrInvalidSnapshot = errors.New("ndb: invalid snapshot")

	// ErrNotFound is returned when an archive or blob does not exist.
	ErrNotFound = errors.New("ndb: not found")

	// ErrClosed is returned by operations on a closed Index.
	ErrClosed = errors.New("ndb: closed")

	// ErrReadOnly is returned by mutations of a read-only Index.
	ErrReadOnly = errors.New("ndb: read-only")
)

// translateError maps sub-package errors onto the package sentinels. The
// original error stays in the chain.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, database.ErrClosed):
		return fmt.Errorf("%w: %w", ErrClosed, err)
	case errors.Is(err, database.ErrReadOnly):
		return fmt.Errorf("%w: %w", ErrReadOnly, err)
	case errors.Is(err, database.ErrIncompatibleVersion):
		return fmt.Errorf("%w: %w", ErrIncompatibleVersion, err)
	case errors.Is(err, database.ErrUncleanShutdown):
		return fmt.Errorf("%w: %w", ErrUncleanShutdown, err)
	case errors.Is(err, database.ErrCapacity):
		return fmt.Errorf("%w: %w", ErrCapacity, err)
	case errors.Is(err, database.ErrCorrupt):
		return fmt.Errorf("%w: %w", ErrCorrupt, err)
	case errors.Is(err, nd.ErrInvariant):
		return fmt.Errorf("%w: %w", ErrInvariant, err)
	case errors.Is(err, constant.ErrInvalidValue):
		return fmt.Errorf("%w: %w", ErrInvalidValue, err)
	case errors.Is(err, blobstore.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case isSnapshotError(err):
		return fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
	}

	return err
}

func isSnapshotError(err error) bool {
	for _, target := range []error{
		persistence.ErrInvalidMagic,
		persistence.ErrInvalidVersion,
		persistence.ErrInvalidCompression,
		persistence.ErrInvalidBlock,
		persistence.ErrSizeMismatch,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return persistence.IsChecksumMismatch(err)
}
