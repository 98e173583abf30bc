package constant

import (
	"github.com/hupe1980/ndb/nd"
)

// SchemaVersion is stored in the database header of constant stores. Bump it
// whenever NewSchema changes the layout.
const SchemaVersion = 2

// Schema is the record layout of a constant store.
//
// Type signatures and pool strings are interned records shared by every
// constant that refers to them. Each constant variant extends Constant, which
// holds the discriminator and the set of slots owning it. Array elements and
// annotation pairs extend Slot: they are linked to their parent through a
// ManyToOne, so the parent's BackReference lists them in insertion order, and
// to the nested constant through SlotValue, so a constant owned by a slot
// cannot be released on its own.
type Schema struct {
	Registry *nd.Registry

	Root           *nd.Kind
	RootSignatures *nd.Pointer
	RootStrings    *nd.Pointer

	Signature                *nd.Kind
	SignatureName            *nd.String
	SignatureNext            *nd.Pointer
	SignatureUsedAsConstant  *nd.BackReference
	SignatureUsedAsEnumType  *nd.BackReference
	SignatureUsedAsAnnotType *nd.BackReference

	PoolString               *nd.Kind
	PoolStringValue          *nd.String
	PoolStringNext           *nd.Pointer
	PoolStringUsedAsConstant *nd.BackReference
	PoolStringUsedAsEnumName *nd.BackReference

	Constant      *nd.Kind
	ConstantTag   *nd.Scalar[uint8]
	ConstantOwner *nd.BackReference

	Boolean      *nd.Kind
	BooleanValue *nd.Scalar[bool]
	Byte         *nd.Kind
	ByteValue    *nd.Scalar[int8]
	Short        *nd.Kind
	ShortValue   *nd.Scalar[int16]
	Char         *nd.Kind
	CharValue    *nd.Scalar[uint16]
	Int          *nd.Kind
	IntValue     *nd.Scalar[int32]
	Long         *nd.Kind
	LongValue    *nd.Scalar[int64]
	Float        *nd.Kind
	FloatValue   *nd.Scalar[float32]
	Double       *nd.Kind
	DoubleValue  *nd.Scalar[float64]

	String      *nd.Kind
	StringValue *nd.ManyToOne

	Class      *nd.Kind
	ClassValue *nd.ManyToOne

	Enum     *nd.Kind
	EnumType *nd.ManyToOne
	EnumName *nd.ManyToOne

	Array         *nd.Kind
	ArrayElements *nd.BackReference

	Annotation      *nd.Kind
	AnnotationType  *nd.ManyToOne
	AnnotationPairs *nd.BackReference

	Slot      *nd.Kind
	SlotValue *nd.ManyToOne

	Element       *nd.Kind
	ElementParent *nd.ManyToOne

	Pair       *nd.Kind
	PairParent *nd.ManyToOne
	PairName   *nd.String

	variants [TagAnnotation + 1]*nd.Kind
}

// NewSchema builds the constant schema in a fresh registry. Kinds are
// defined in a fixed order; the registry fingerprint identifies the layout.
func NewSchema() *Schema {
	s := &Schema{Registry: nd.NewRegistry()}
	r := s.Registry

	s.Root = r.Define("Root", nil)
	s.RootSignatures = nd.NewPointer(s.Root, "signatures")
	s.RootStrings = nd.NewPointer(s.Root, "strings")
	s.Root.Done()

	s.Signature = r.Define("TypeSignature", nil)
	s.SignatureName = nd.NewString(s.Signature, "name")
	s.SignatureNext = nd.NewPointer(s.Signature, "next")
	s.SignatureUsedAsConstant = nd.NewBackReference(s.Signature, "usedAsConstant")
	s.SignatureUsedAsEnumType = nd.NewBackReference(s.Signature, "usedAsEnumType")
	s.SignatureUsedAsAnnotType = nd.NewBackReference(s.Signature, "usedAsAnnotationType")
	s.Signature.Done()

	s.PoolString = r.Define("PoolString", nil)
	s.PoolStringValue = nd.NewString(s.PoolString, "value")
	s.PoolStringNext = nd.NewPointer(s.PoolString, "next")
	s.PoolStringUsedAsConstant = nd.NewBackReference(s.PoolString, "usedAsConstant")
	s.PoolStringUsedAsEnumName = nd.NewBackReference(s.PoolString, "usedAsEnumName")
	s.PoolString.Done()

	s.Constant = r.Define("Constant", nil)
	s.ConstantTag = nd.NewUint8(s.Constant, "tag")
	s.ConstantOwner = nd.NewBackReference(s.Constant, "ownedBy")
	s.Constant.Done()

	variant := func(t Tag, name string) *nd.Kind {
		k := r.Define(name, s.Constant)
		s.variants[t] = k
		return k
	}

	s.Boolean = variant(TagBoolean, "ConstantBoolean")
	s.BooleanValue = nd.NewBool(s.Boolean, "value")
	s.Boolean.Done()

	s.Byte = variant(TagByte, "ConstantByte")
	s.ByteValue = nd.NewInt8(s.Byte, "value")
	s.Byte.Done()

	s.Short = variant(TagShort, "ConstantShort")
	s.ShortValue = nd.NewInt16(s.Short, "value")
	s.Short.Done()

	s.Char = variant(TagChar, "ConstantChar")
	s.CharValue = nd.NewChar(s.Char, "value")
	s.Char.Done()

	s.Int = variant(TagInt, "ConstantInt")
	s.IntValue = nd.NewInt32(s.Int, "value")
	s.Int.Done()

	s.Long = variant(TagLong, "ConstantLong")
	s.LongValue = nd.NewInt64(s.Long, "value")
	s.Long.Done()

	s.Float = variant(TagFloat, "ConstantFloat")
	s.FloatValue = nd.NewFloat32(s.Float, "value")
	s.Float.Done()

	s.Double = variant(TagDouble, "ConstantDouble")
	s.DoubleValue = nd.NewFloat64(s.Double, "value")
	s.Double.Done()

	s.String = variant(TagString, "ConstantString")
	s.StringValue = nd.NewManyToOne(s.String, "value", s.PoolStringUsedAsConstant)
	s.String.Done()

	s.Class = variant(TagClass, "ConstantClass")
	s.ClassValue = nd.NewManyToOne(s.Class, "value", s.SignatureUsedAsConstant)
	s.Class.Done()

	s.Enum = variant(TagEnum, "ConstantEnum")
	s.EnumType = nd.NewManyToOne(s.Enum, "enumType", s.SignatureUsedAsEnumType)
	s.EnumName = nd.NewManyToOne(s.Enum, "enumValue", s.PoolStringUsedAsEnumName)
	s.Enum.Done()

	s.Array = variant(TagArray, "ConstantArray")
	s.ArrayElements = nd.NewBackReference(s.Array, "elements")
	s.Array.Done()

	s.Annotation = variant(TagAnnotation, "ConstantAnnotation")
	s.AnnotationType = nd.NewManyToOne(s.Annotation, "annotationType", s.SignatureUsedAsAnnotType)
	s.AnnotationPairs = nd.NewBackReference(s.Annotation, "pairs")
	s.Annotation.Done()

	s.Slot = r.Define("ConstantSlot", nil)
	s.SlotValue = nd.NewManyToOne(s.Slot, "value", s.ConstantOwner)
	s.Slot.Done()

	s.Element = r.Define("ArrayElement", s.Slot)
	s.ElementParent = nd.NewManyToOne(s.Element, "parent", s.ArrayElements)
	s.Element.Done()

	s.Pair = r.Define("AnnotationValuePair", s.Slot)
	s.PairParent = nd.NewManyToOne(s.Pair, "parent", s.AnnotationPairs)
	s.PairName = nd.NewString(s.Pair, "name")
	s.Pair.Done()

	return s
}

// Variant returns the kind of the constant variant t.
func (s *Schema) Variant(t Tag) (*nd.Kind, bool) {
	if !t.Valid() {
		return nil, false
	}
	return s.variants[t], true
}

// Fingerprint identifies the layout of the schema.
func (s *Schema) Fingerprint() uint32 {
	return s.Registry.Fingerprint()
}
