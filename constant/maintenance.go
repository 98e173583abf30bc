package constant

import (
	"github.com/hupe1980/ndb/database"
	"github.com/hupe1980/ndb/intern"
	"github.com/hupe1980/ndb/nd"
)

// Counts summarizes the records of a store.
type Counts struct {
	// Constants counts constant records per variant, nested ones included.
	Constants   map[Tag]int
	Signatures  int
	PoolStrings int
}

// Total returns the number of constant records.
func (c Counts) Total() int {
	n := 0
	for _, v := range c.Constants {
		n += v
	}
	return n
}

// Count walks the database and counts its records.
func (s *Store) Count() (Counts, error) {
	c := Counts{Constants: make(map[Tag]int)}
	err := s.schema.Constant.ForEach(s.db, func(_ database.Address, actual *nd.Kind) error {
		if t, ok := s.tags[actual.ID()]; ok {
			c.Constants[t]++
		}
		return nil
	})
	if err != nil {
		return Counts{}, err
	}
	if c.Signatures, err = s.sigs.Len(s.db, s.sigArr); err != nil {
		return Counts{}, err
	}
	if c.PoolStrings, err = s.strs.Len(s.db, s.strArr); err != nil {
		return Counts{}, err
	}
	return c, nil
}

// Users returns the class literals referencing the signature record sig, in
// creation order.
func (s *Store) Users(sig database.Address) ([]database.Address, error) {
	return s.schema.SignatureUsedAsConstant.Owners(s.db, sig)
}

// References returns the number of records referencing the interned record
// addr through any relation.
func (s *Store) References(addr database.Address) (int, error) {
	kind, err := s.schema.Registry.KindOf(s.db, addr)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, set := range s.inverses(kind) {
		n, err := set.Count(s.db, addr)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

func (s *Store) inverses(kind *nd.Kind) []*nd.BackReference {
	sc := s.schema
	switch kind {
	case sc.Signature:
		return []*nd.BackReference{sc.SignatureUsedAsConstant, sc.SignatureUsedAsEnumType, sc.SignatureUsedAsAnnotType}
	case sc.PoolString:
		return []*nd.BackReference{sc.PoolStringUsedAsConstant, sc.PoolStringUsedAsEnumName}
	}
	return nil
}

// Purge releases interned signatures and pool strings that no record
// references and returns how many were released.
func (s *Store) Purge() (int, error) {
	a, err := s.purge(s.sigs, s.sigArr)
	if err != nil {
		return a, err
	}
	b, err := s.purge(s.strs, s.strArr)
	return a + b, err
}

func (s *Store) purge(t *intern.Table, arr database.Address) (int, error) {
	var unused []database.Address
	err := t.ForEach(s.db, arr, func(rec database.Address, _ string) error {
		n, err := s.References(rec)
		if err != nil {
			return err
		}
		if n == 0 {
			unused = append(unused, rec)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for i, rec := range unused {
		if err := t.Remove(s.db, arr, rec); err != nil {
			return i, err
		}
		if err := t.Kind().Release(s.db, rec); err != nil {
			return i, err
		}
	}
	return len(unused), nil
}
