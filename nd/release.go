package nd

import (
	"github.com/hupe1980/ndb/database"
)

// Release releases the record at addr, which must be of kind k or a derived
// kind.
//
// A record with a non-empty back-reference set is not released: Release
// returns a BackReferenceError and the store is left unchanged. Otherwise
// every outgoing ManyToOne is nulled (leaving the targets' sets), owned
// strings are freed and the block returns to the address space.
func (k *Kind) Release(db *database.Database, addr database.Address) error {
	actual, err := k.actual(db, addr)
	if err != nil {
		return err
	}
	fields := actual.Fields()

	for _, f := range fields {
		if g, ok := f.(releaseGuard); ok {
			if err := g.guard(db, addr); err != nil {
				return err
			}
		}
	}
	for _, f := range fields {
		if d, ok := f.(destructor); ok {
			if err := d.destruct(db, addr); err != nil {
				return err
			}
		}
	}
	return db.Free(addr, actual.size)
}

// Release releases addr under whatever kind it was allocated as.
func (r *Registry) Release(db *database.Database, addr database.Address) error {
	k, err := r.KindOf(db, addr)
	if err != nil {
		return err
	}
	return k.Release(db, addr)
}
