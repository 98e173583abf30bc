// Package constant stores compile-time constants as typed records.
//
// Every constant is a record of one variant kind extending the Constant base
// kind, whose only field is the discriminator tag. Decoding switches on the
// tag and checks it against the kind the record was allocated as, so a
// record is never read through the layout of another variant.
//
// Numeric variants store their value inline. String, class and enum literals
// reference interned PoolString and TypeSignature records instead, so equal
// values share one record and compare by address; the interned records keep
// back-reference sets of the constants using them.
//
//	schema := constant.NewSchema()
//	db, _ := database.Open(path,
//		database.WithSchemaVersion(constant.SchemaVersion),
//		database.WithFingerprint(schema.Fingerprint()))
//	store, _ := constant.Open(db, schema)
//
//	addr, _ := store.Create(constant.Class{Signature: "Ljava/lang/String;"})
//	v, _ := store.Decode(addr)
package constant
