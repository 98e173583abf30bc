// Package nd maps typed records onto a database.Database.
//
// A schema is a Registry of kinds. Each kind is a fixed layout of fields;
// a kind may extend one base kind, in which case the base's fields come first
// and keep their offsets, so a base-kind field handle reads the same bytes
// from a record of any derived kind.
//
//	reg := nd.NewRegistry()
//
//	sig := reg.Define("TypeSignature", nil)
//	sigName := nd.NewString(sig, "name")
//	usedAsConstant := nd.NewBackReference(sig, "usedAsConstant")
//	sig.Done()
//
//	class := reg.Define("ClassConstant", nil)
//	value := nd.NewManyToOne(class, "value", usedAsConstant)
//	class.Done()
//
// # Relations
//
// A ManyToOne field references a record of its target kind. Its inverse, a
// BackReference declared on the target kind, holds every record currently
// referencing the target. The set is an intrusive doubly linked list: the
// owner's ManyToOne slot stores (target, next, prev), the target's
// BackReference slot stores (head, tail, count). ManyToOne.Put moves the
// owner between sets in O(1); nothing else writes these slots.
//
// # Release
//
// Kind.Release refuses to release a record that is still referenced and
// returns ErrBackReferences without modifying the store. Callers redirect or
// null the inbound references first.
//
// # Kind checks
//
// Every field access reads the block header of the record and checks that
// the record was allocated as the field's kind or a kind derived from it.
// A mismatch is a KindMismatchError (ErrInvariant).
package nd
