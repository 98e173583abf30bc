package constant

import (
	"fmt"
	"math"
)

// Tag is the discriminator stored in every constant record.
type Tag uint8

// Constant variants. The numeric values are part of the on-disk format.
const (
	TagInvalid Tag = iota
	TagBoolean
	TagByte
	TagShort
	TagChar
	TagInt
	TagLong
	TagFloat
	TagDouble
	TagString
	TagClass
	TagEnum
	TagArray
	TagAnnotation
)

var tagNames = [...]string{
	TagInvalid:    "invalid",
	TagBoolean:    "boolean",
	TagByte:       "byte",
	TagShort:      "short",
	TagChar:       "char",
	TagInt:        "int",
	TagLong:       "long",
	TagFloat:      "float",
	TagDouble:     "double",
	TagString:     "string",
	TagClass:      "class",
	TagEnum:       "enum",
	TagArray:      "array",
	TagAnnotation: "annotation",
}

func (t Tag) String() string {
	if int(t) < len(tagNames) {
		return tagNames[t]
	}
	return fmt.Sprintf("tag(%d)", uint8(t))
}

// Valid reports whether t names a constant variant.
func (t Tag) Valid() bool { return t > TagInvalid && t <= TagAnnotation }

// ParseTag returns the tag with the given name.
func ParseTag(name string) (Tag, error) {
	for t, n := range tagNames {
		if n == name && Tag(t).Valid() {
			return Tag(t), nil
		}
	}
	return TagInvalid, fmt.Errorf("constant: unknown tag %q", name)
}

// Value is a decoded constant. The concrete types are Boolean, Byte, Short,
// Char, Int, Long, Float, Double, String, Class, Enum, Array and Annotation.
type Value interface {
	Tag() Tag
	isValue()
}

type (
	Boolean bool
	Byte    int8
	Short   int16
	Char    uint16
	Int     int32
	Long    int64
	Float   float32
	Double  float64
	String  string
)

// Class is a class literal. Signature is the type signature, e.g.
// "Ljava/lang/String;".
type Class struct {
	Signature string
}

// Enum is an enumeration literal: the enum's type signature and the name of
// the constant.
type Enum struct {
	Type string
	Name string
}

// Array is an array of constants.
type Array []Value

// Annotation is an annotation instance with its element-value pairs in
// declaration order.
type Annotation struct {
	Type  string
	Pairs []Pair
}

// Pair is one element-value pair of an Annotation.
type Pair struct {
	Name  string
	Value Value
}

func (Boolean) Tag() Tag    { return TagBoolean }
func (Byte) Tag() Tag       { return TagByte }
func (Short) Tag() Tag      { return TagShort }
func (Char) Tag() Tag       { return TagChar }
func (Int) Tag() Tag        { return TagInt }
func (Long) Tag() Tag       { return TagLong }
func (Float) Tag() Tag      { return TagFloat }
func (Double) Tag() Tag     { return TagDouble }
func (String) Tag() Tag     { return TagString }
func (Class) Tag() Tag      { return TagClass }
func (Enum) Tag() Tag       { return TagEnum }
func (Array) Tag() Tag      { return TagArray }
func (Annotation) Tag() Tag { return TagAnnotation }

func (Boolean) isValue()    {}
func (Byte) isValue()       {}
func (Short) isValue()      {}
func (Char) isValue()       {}
func (Int) isValue()        {}
func (Long) isValue()       {}
func (Float) isValue()      {}
func (Double) isValue()     {}
func (String) isValue()     {}
func (Class) isValue()      {}
func (Enum) isValue()       {}
func (Array) isValue()      {}
func (Annotation) isValue() {}

// Equal reports whether a and b are the same constant. Floating point values
// compare by bit pattern, so NaN equals NaN and 0.0 differs from -0.0. Nil
// and empty arrays or pair lists are equal.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Tag() != b.Tag() {
		return false
	}
	switch x := a.(type) {
	case Float:
		return math.Float32bits(float32(x)) == math.Float32bits(float32(b.(Float)))
	case Double:
		return math.Float64bits(float64(x)) == math.Float64bits(float64(b.(Double)))
	case Array:
		y := b.(Array)
		if len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	case Annotation:
		y := b.(Annotation)
		if x.Type != y.Type || len(x.Pairs) != len(y.Pairs) {
			return false
		}
		for i := range x.Pairs {
			if x.Pairs[i].Name != y.Pairs[i].Name || !Equal(x.Pairs[i].Value, y.Pairs[i].Value) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

// Format renders v in Java source syntax.
func Format(v Value) string {
	switch x := v.(type) {
	case nil:
		return "<nil>"
	case Boolean:
		return fmt.Sprint(bool(x))
	case Byte:
		return fmt.Sprintf("(byte)%d", int8(x))
	case Short:
		return fmt.Sprintf("(short)%d", int16(x))
	case Char:
		return fmt.Sprintf("'\\u%04x'", uint16(x))
	case Int:
		return fmt.Sprint(int32(x))
	case Long:
		return fmt.Sprintf("%dL", int64(x))
	case Float:
		return fmt.Sprintf("%gf", float32(x))
	case Double:
		return fmt.Sprintf("%gd", float64(x))
	case String:
		return fmt.Sprintf("%q", string(x))
	case Class:
		return x.Signature + ".class"
	case Enum:
		return x.Type + "." + x.Name
	case Array:
		s := "{"
		for i, e := range x {
			if i > 0 {
				s += ", "
			}
			s += Format(e)
		}
		return s + "}"
	case Annotation:
		s := "@" + x.Type + "("
		for i, p := range x.Pairs {
			if i > 0 {
				s += ", "
			}
			s += p.Name + "=" + Format(p.Value)
		}
		return s + ")"
	default:
		return fmt.Sprintf("%v", v)
	}
}
