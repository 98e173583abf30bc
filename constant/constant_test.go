package constant_test

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/ndb/constant"
	"github.com/hupe1980/ndb/database"
	"github.com/hupe1980/ndb/nd"
	"github.com/hupe1980/ndb/testutil"
)

func openStore(t *testing.T) *constant.Store {
	t.Helper()
	schema := constant.NewSchema()
	db, err := database.OpenMemory(
		database.WithChunkSize(database.MinChunkSize),
		database.WithSchemaVersion(constant.SchemaVersion),
		database.WithFingerprint(schema.Fingerprint()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := constant.Open(db, schema, constant.WithBuckets(64))
	require.NoError(t, err)
	return store
}

func boundaryValues() []constant.Value {
	return []constant.Value{
		constant.Boolean(false),
		constant.Boolean(true),
		constant.Byte(0),
		constant.Byte(math.MinInt8),
		constant.Byte(math.MaxInt8),
		constant.Short(0),
		constant.Short(math.MinInt16),
		constant.Short(math.MaxInt16),
		constant.Char(0),
		constant.Char(math.MaxUint16),
		constant.Char('λ'),
		constant.Int(0),
		constant.Int(math.MinInt32),
		constant.Int(math.MaxInt32),
		constant.Long(0),
		constant.Long(math.MinInt64),
		constant.Long(math.MaxInt64),
		constant.Float(0),
		constant.Float(float32(math.Copysign(0, -1))),
		constant.Float(math.SmallestNonzeroFloat32),
		constant.Float(math.MaxFloat32),
		constant.Float(float32(math.Inf(-1))),
		constant.Float(float32(math.NaN())),
		constant.Double(0),
		constant.Double(math.Copysign(0, -1)),
		constant.Double(math.SmallestNonzeroFloat64),
		constant.Double(math.MaxFloat64),
		constant.Double(math.Inf(1)),
		constant.Double(math.NaN()),
		constant.String(""),
		constant.String("hello, world"),
		constant.String("ünïcödé\x00tail"),
		constant.Class{Signature: "Ljava/lang/String;"},
		constant.Class{Signature: "[[I"},
		constant.Enum{Type: "Ljava/lang/annotation/RetentionPolicy;", Name: "RUNTIME"},
		constant.Enum{Type: "Lp/E;", Name: ""},
		constant.Array{},
		constant.Array{constant.Int(1), constant.Int(2), constant.Int(3)},
		constant.Array{constant.Array{}, constant.Array{constant.String("nested")}},
		constant.Annotation{Type: "Ljava/lang/Deprecated;"},
		constant.Annotation{
			Type: "Ljava/lang/annotation/Retention;",
			Pairs: []constant.Pair{
				{Name: "value", Value: constant.Enum{Type: "Ljava/lang/annotation/RetentionPolicy;", Name: "RUNTIME"}},
				{Name: "since", Value: constant.String("9")},
				{Name: "forRemoval", Value: constant.Boolean(true)},
				{Name: "nested", Value: constant.Annotation{Type: "Lp/A;", Pairs: []constant.Pair{{Name: "x", Value: constant.Long(-1)}}}},
			},
		},
	}
}

func TestCreateDecode_RoundTrip(t *testing.T) {
	store := openStore(t)

	for _, v := range boundaryValues() {
		addr, err := store.Create(v)
		require.NoError(t, err, constant.Format(v))

		tag, err := store.Tag(addr)
		require.NoError(t, err)
		assert.Equal(t, v.Tag(), tag)

		got, err := store.Decode(addr)
		require.NoError(t, err)
		assert.True(t, constant.Equal(v, got), "want %s, got %s", constant.Format(v), constant.Format(got))
	}
}

func TestCreateDecode_Random(t *testing.T) {
	store := openStore(t)
	rng := testutil.NewRNG(99)

	type created struct {
		addr database.Address
		v    constant.Value
	}
	var all []created
	for i := 0; i < 300; i++ {
		v := randomValue(rng, 3)
		addr, err := store.Create(v)
		require.NoError(t, err)
		all = append(all, created{addr, v})
	}

	for _, c := range all {
		got, err := store.Decode(c.addr)
		require.NoError(t, err)
		require.True(t, constant.Equal(c.v, got), "seed %d: want %s, got %s", rng.Seed(), constant.Format(c.v), constant.Format(got))
	}
}

func randomValue(rng *testutil.RNG, depth int) constant.Value {
	n := 11
	if depth > 0 {
		n = 13
	}
	switch rng.Intn(n) {
	case 0:
		return constant.Boolean(rng.Bool())
	case 1:
		return constant.Byte(int8(rng.Uint64()))
	case 2:
		return constant.Short(int16(rng.Uint64()))
	case 3:
		return constant.Char(uint16(rng.Uint64()))
	case 4:
		return constant.Int(int32(rng.Uint64()))
	case 5:
		return constant.Long(int64(rng.Uint64()))
	case 6:
		return constant.Float(math.Float32frombits(uint32(rng.Uint64())))
	case 7:
		return constant.Double(math.Float64frombits(rng.Uint64()))
	case 8:
		return constant.String(rng.Identifier(12))
	case 9:
		return constant.Class{Signature: rng.TypeSignature()}
	case 10:
		return constant.Enum{Type: rng.TypeSignature(), Name: rng.Identifier(8)}
	case 11:
		arr := constant.Array{}
		for i := rng.Intn(4); i > 0; i-- {
			arr = append(arr, randomValue(rng, depth-1))
		}
		return arr
	default:
		a := constant.Annotation{Type: rng.TypeSignature()}
		for i := rng.Intn(3); i > 0; i-- {
			a.Pairs = append(a.Pairs, constant.Pair{Name: rng.Identifier(6), Value: randomValue(rng, depth-1)})
		}
		return a
	}
}

func TestInterning_SharesRecords(t *testing.T) {
	store := openStore(t)

	a, err := store.Create(constant.Class{Signature: "Lp/T;"})
	require.NoError(t, err)
	b, err := store.Create(constant.Class{Signature: "Lp/T;"})
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	sa, err := store.ClassSignature(a)
	require.NoError(t, err)
	sb, err := store.ClassSignature(b)
	require.NoError(t, err)
	assert.Equal(t, sa, sb)

	users, err := store.Users(sa)
	require.NoError(t, err)
	assert.Equal(t, []database.Address{a, b}, users)

	name, err := store.SignatureName(sa)
	require.NoError(t, err)
	assert.Equal(t, "Lp/T;", name)

	s1, err := store.Create(constant.String("x"))
	require.NoError(t, err)
	s2, err := store.Create(constant.String("x"))
	require.NoError(t, err)
	p1, err := store.StringLiteral(s1)
	require.NoError(t, err)
	p2, err := store.StringLiteral(s2)
	require.NoError(t, err)
	assert.Equal(t, p1, p2)
}

func TestWrongVariant(t *testing.T) {
	store := openStore(t)

	addr, err := store.Create(constant.Int(42))
	require.NoError(t, err)

	_, err = store.ClassSignature(addr)
	var wv *constant.WrongVariantError
	require.ErrorAs(t, err, &wv)
	assert.Equal(t, constant.TagClass, wv.Want)
	assert.Equal(t, constant.TagInt, wv.Got)
	assert.ErrorIs(t, err, constant.ErrWrongVariant)
	assert.ErrorIs(t, err, nd.ErrInvariant)

	_, err = store.DecodeAs(addr, constant.TagLong)
	assert.ErrorIs(t, err, constant.ErrWrongVariant)

	v, err := store.DecodeAs(addr, constant.TagInt)
	require.NoError(t, err)
	assert.Equal(t, constant.Int(42), v)

	// Field handles of another variant refuse the record as well.
	_, err = store.Schema().LongValue.Get(store.Database(), addr)
	var km *nd.KindMismatchError
	assert.ErrorAs(t, err, &km)

	// A discriminator that disagrees with the allocated kind is caught.
	require.NoError(t, store.Schema().ConstantTag.Put(store.Database(), addr, uint8(constant.TagLong)))
	_, err = store.Decode(addr)
	assert.ErrorIs(t, err, constant.ErrWrongVariant)

	sig, err := store.Signature("Lp/T;")
	require.NoError(t, err)
	_, err = store.Decode(sig)
	assert.ErrorIs(t, err, constant.ErrNotConstant)
}

func TestCreate_InvalidValues(t *testing.T) {
	store := openStore(t)

	for _, v := range []constant.Value{
		nil,
		constant.Class{},
		constant.Enum{Name: "A"},
		constant.Annotation{},
		constant.Array{constant.Int(1), nil},
		constant.Annotation{Type: "Lp/A;", Pairs: []constant.Pair{{Name: "v", Value: constant.Class{}}}},
	} {
		_, err := store.Create(v)
		assert.ErrorIs(t, err, constant.ErrInvalidValue)
	}

	c, err := store.Count()
	require.NoError(t, err)
	assert.Zero(t, c.Total())
}

func TestDelete_CascadesOwnedRecords(t *testing.T) {
	store := openStore(t)
	db := store.Database()
	before := db.Stats()

	v := constant.Annotation{
		Type: "Lp/A;",
		Pairs: []constant.Pair{
			{Name: "values", Value: constant.Array{constant.Int(1), constant.Class{Signature: "Lp/B;"}}},
			{Name: "mode", Value: constant.Enum{Type: "Lp/M;", Name: "FAST"}},
		},
	}
	addr, err := store.Create(v)
	require.NoError(t, err)

	c, err := store.Count()
	require.NoError(t, err)
	assert.Equal(t, 5, c.Total())
	assert.Equal(t, 3, c.Signatures)
	assert.Equal(t, 1, c.PoolStrings)

	require.NoError(t, store.Delete(addr))

	c, err = store.Count()
	require.NoError(t, err)
	assert.Zero(t, c.Total())
	assert.Equal(t, 3, c.Signatures, "interned records survive until purged")

	sig, err := store.LookupSignature("Lp/B;")
	require.NoError(t, err)
	refs, err := store.References(sig)
	require.NoError(t, err)
	assert.Zero(t, refs)

	n, err := store.Purge()
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	c, err = store.Count()
	require.NoError(t, err)
	assert.Zero(t, c.Signatures)
	assert.Zero(t, c.PoolStrings)
	assert.Equal(t, before.LiveBlocks, db.Stats().LiveBlocks)

	_, err = store.Decode(addr)
	assert.Error(t, err)
}

func TestDelete_NestedConstantIsRefused(t *testing.T) {
	store := openStore(t)
	schema, db := store.Schema(), store.Database()

	arr, err := store.Create(constant.Array{constant.Class{Signature: "LFoo;"}})
	require.NoError(t, err)
	ann, err := store.Create(constant.Annotation{
		Type:  "Lp/A;",
		Pairs: []constant.Pair{{Name: "value", Value: constant.Class{Signature: "LFoo;"}}},
	})
	require.NoError(t, err)

	sig, err := store.LookupSignature("LFoo;")
	require.NoError(t, err)
	users, err := store.Users(sig)
	require.NoError(t, err)
	require.Len(t, users, 2)

	owners := []database.Address{arr, ann}
	for i, nested := range users {
		owner, err := store.Owner(nested)
		require.NoError(t, err)
		assert.Equal(t, owners[i], owner)

		stats := db.Stats()
		err = store.Delete(nested)
		var owned *constant.OwnedError
		require.ErrorAs(t, err, &owned)
		assert.Equal(t, owners[i], owned.Owner)
		assert.ErrorIs(t, err, constant.ErrOwned)
		assert.ErrorIs(t, err, nd.ErrInvariant)

		err = schema.Registry.Release(db, nested)
		assert.ErrorIs(t, err, nd.ErrBackReferences)
		assert.Equal(t, stats, db.Stats())
	}

	top, err := store.Owner(arr)
	require.NoError(t, err)
	assert.True(t, top.IsNull())

	// Freed blocks are not handed to anyone while the nested constants live.
	bar, err := store.Create(constant.Class{Signature: "LBar;"})
	require.NoError(t, err)
	assert.NotContains(t, users, bar)

	got, err := store.Decode(arr)
	require.NoError(t, err)
	assert.Equal(t, constant.Array{constant.Class{Signature: "LFoo;"}}, got)

	require.NoError(t, store.Delete(arr))
	require.NoError(t, store.Delete(ann))

	got, err = store.Decode(bar)
	require.NoError(t, err)
	assert.Equal(t, constant.Class{Signature: "LBar;"}, got)

	users, err = store.Users(sig)
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestPurge_KeepsReferencedRecords(t *testing.T) {
	store := openStore(t)

	keep, err := store.Create(constant.Enum{Type: "Lp/E;", Name: "A"})
	require.NoError(t, err)
	drop, err := store.Create(constant.String("gone"))
	require.NoError(t, err)
	require.NoError(t, store.Delete(drop))

	n, err := store.Purge()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := store.Decode(keep)
	require.NoError(t, err)
	assert.Equal(t, constant.Enum{Type: "Lp/E;", Name: "A"}, got)

	gone, err := store.LookupPoolString("gone")
	require.NoError(t, err)
	assert.True(t, gone.IsNull())
}

func TestRelease_ReferencedSignatureIsRefused(t *testing.T) {
	store := openStore(t)
	schema, db := store.Schema(), store.Database()

	c, err := store.Create(constant.Class{Signature: "Lp/T;"})
	require.NoError(t, err)
	sig, err := store.ClassSignature(c)
	require.NoError(t, err)
	stats := db.Stats()

	err = schema.Signature.Release(db, sig)
	var br *nd.BackReferenceError
	require.ErrorAs(t, err, &br)
	assert.ErrorIs(t, err, nd.ErrBackReferences)
	assert.Equal(t, stats, db.Stats())

	got, err := store.Decode(c)
	require.NoError(t, err)
	assert.Equal(t, constant.Class{Signature: "Lp/T;"}, got)
}

func TestEndToEnd_ClassLiteralLifecycle(t *testing.T) {
	store := openStore(t)
	schema, db := store.Schema(), store.Database()

	s, err := store.Signature("Ljava/util/List;")
	require.NoError(t, err)

	c, err := store.CreateClass(s)
	require.NoError(t, err)

	owners, err := schema.SignatureUsedAsConstant.Owners(db, s)
	require.NoError(t, err)
	assert.Equal(t, []database.Address{c}, owners)

	require.NoError(t, schema.ClassValue.Put(db, c, database.Null))
	empty, err := schema.SignatureUsedAsConstant.IsEmpty(db, s)
	require.NoError(t, err)
	assert.True(t, empty)

	require.NoError(t, schema.Class.Release(db, c))

	again, err := schema.Class.Allocate(db)
	require.NoError(t, err)
	assert.Equal(t, c, again)

	tag, err := schema.ConstantTag.Get(db, again)
	require.NoError(t, err)
	assert.Zero(t, tag)
	target, err := schema.ClassValue.Get(db, again)
	require.NoError(t, err)
	assert.True(t, target.IsNull())
	raw, err := db.Read(again, schema.Class.Size())
	require.NoError(t, err)
	assert.Equal(t, make([]byte, schema.Class.Size()), raw)
}

func TestOpen_Persists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "constants.ndb")
	schema := constant.NewSchema()
	dbOpts := []database.Option{
		database.WithChunkSize(database.MinChunkSize),
		database.WithSchemaVersion(constant.SchemaVersion),
		database.WithFingerprint(schema.Fingerprint()),
	}

	db, err := database.Open(path, dbOpts...)
	require.NoError(t, err)
	store, err := constant.Open(db, schema)
	require.NoError(t, err)

	values := boundaryValues()
	addrs := make([]database.Address, len(values))
	for i, v := range values {
		addrs[i], err = store.Create(v)
		require.NoError(t, err)
	}
	require.NoError(t, db.Close())

	db, err = database.Open(path, append(dbOpts, database.WithReadOnly())...)
	require.NoError(t, err)
	defer db.Close()

	store, err = constant.Open(db, constant.NewSchema())
	require.NoError(t, err)
	for i, v := range values {
		got, err := store.Decode(addrs[i])
		require.NoError(t, err)
		assert.True(t, constant.Equal(v, got), constant.Format(v))
	}

	_, err = store.Create(constant.Int(1))
	assert.ErrorIs(t, err, database.ErrReadOnly)
}

func TestOpen_EmptyReadOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.ndb")
	db, err := database.Open(path, database.WithChunkSize(database.MinChunkSize))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = database.Open(path, database.WithReadOnly())
	require.NoError(t, err)
	defer db.Close()

	_, err = constant.Open(db, constant.NewSchema())
	assert.ErrorIs(t, err, database.ErrReadOnly)
}
