package codec

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/hupe1980/ndb/constant"
)

// ErrInvalidDocument is returned when a document does not describe a
// constant.
var ErrInvalidDocument = errors.New("codec: invalid constant document")

// Document is the portable form of a constant.Value. Integral payloads use
// Int, floating point payloads keep their exact bit pattern in Bits so NaN
// payloads and negative zero survive; Float is informational.
type Document struct {
	Tag      string         `json:"tag"`
	Bool     *bool          `json:"bool,omitempty"`
	Int      *int64         `json:"int,omitempty"`
	Float    string         `json:"float,omitempty"`
	Bits     string         `json:"bits,omitempty"`
	String   *string        `json:"string,omitempty"`
	Type     string         `json:"type,omitempty"`
	Elements []Document     `json:"elements,omitempty"`
	Pairs    []PairDocument `json:"pairs,omitempty"`
}

// PairDocument is one annotation element-value pair.
type PairDocument struct {
	Name  string   `json:"name"`
	Value Document `json:"value"`
}

// ToDocument converts v to its portable form.
func ToDocument(v constant.Value) (Document, error) {
	if v == nil {
		return Document{}, fmt.Errorf("%w: nil value", ErrInvalidDocument)
	}
	d := Document{Tag: v.Tag().String()}
	switch x := v.(type) {
	case constant.Boolean:
		b := bool(x)
		d.Bool = &b
	case constant.Byte:
		d.Int = ptr(int64(x))
	case constant.Short:
		d.Int = ptr(int64(x))
	case constant.Char:
		d.Int = ptr(int64(x))
	case constant.Int:
		d.Int = ptr(int64(x))
	case constant.Long:
		d.Int = ptr(int64(x))
	case constant.Float:
		d.Float = strconv.FormatFloat(float64(x), 'g', -1, 32)
		d.Bits = fmt.Sprintf("0x%08x", math.Float32bits(float32(x)))
	case constant.Double:
		d.Float = strconv.FormatFloat(float64(x), 'g', -1, 64)
		d.Bits = fmt.Sprintf("0x%016x", math.Float64bits(float64(x)))
	case constant.String:
		d.String = ptr(string(x))
	case constant.Class:
		d.Type = x.Signature
	case constant.Enum:
		d.Type = x.Type
		d.String = ptr(x.Name)
	case constant.Array:
		d.Elements = make([]Document, 0, len(x))
		for _, e := range x {
			ed, err := ToDocument(e)
			if err != nil {
				return Document{}, err
			}
			d.Elements = append(d.Elements, ed)
		}
	case constant.Annotation:
		d.Type = x.Type
		d.Pairs = make([]PairDocument, 0, len(x.Pairs))
		for _, p := range x.Pairs {
			pd, err := ToDocument(p.Value)
			if err != nil {
				return Document{}, err
			}
			d.Pairs = append(d.Pairs, PairDocument{Name: p.Name, Value: pd})
		}
	default:
		return Document{}, fmt.Errorf("%w: unsupported type %T", ErrInvalidDocument, v)
	}
	return d, nil
}

// Value converts d back to a constant.Value.
func (d Document) Value() (constant.Value, error) {
	tag, err := constant.ParseTag(d.Tag)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	switch tag {
	case constant.TagBoolean:
		if d.Bool == nil {
			return nil, d.missing("bool")
		}
		return constant.Boolean(*d.Bool), nil
	case constant.TagByte:
		n, err := d.integer(math.MinInt8, math.MaxInt8)
		return constant.Byte(n), err
	case constant.TagShort:
		n, err := d.integer(math.MinInt16, math.MaxInt16)
		return constant.Short(n), err
	case constant.TagChar:
		n, err := d.integer(0, math.MaxUint16)
		return constant.Char(n), err
	case constant.TagInt:
		n, err := d.integer(math.MinInt32, math.MaxInt32)
		return constant.Int(n), err
	case constant.TagLong:
		n, err := d.integer(math.MinInt64, math.MaxInt64)
		return constant.Long(n), err
	case constant.TagFloat:
		bits, err := d.bits(32)
		return constant.Float(math.Float32frombits(uint32(bits))), err
	case constant.TagDouble:
		bits, err := d.bits(64)
		return constant.Double(math.Float64frombits(bits)), err
	case constant.TagString:
		if d.String == nil {
			return nil, d.missing("string")
		}
		return constant.String(*d.String), nil
	case constant.TagClass:
		return constant.Class{Signature: d.Type}, nil
	case constant.TagEnum:
		if d.String == nil {
			return nil, d.missing("string")
		}
		return constant.Enum{Type: d.Type, Name: *d.String}, nil
	case constant.TagArray:
		arr := make(constant.Array, 0, len(d.Elements))
		for _, ed := range d.Elements {
			e, err := ed.Value()
			if err != nil {
				return nil, err
			}
			arr = append(arr, e)
		}
		return arr, nil
	default:
		a := constant.Annotation{Type: d.Type}
		for _, pd := range d.Pairs {
			v, err := pd.Value.Value()
			if err != nil {
				return nil, err
			}
			a.Pairs = append(a.Pairs, constant.Pair{Name: pd.Name, Value: v})
		}
		return a, nil
	}
}

func (d Document) missing(field string) error {
	return fmt.Errorf("%w: %s constant without %q", ErrInvalidDocument, d.Tag, field)
}

func (d Document) integer(lo, hi int64) (int64, error) {
	if d.Int == nil {
		return 0, d.missing("int")
	}
	if *d.Int < lo || *d.Int > hi {
		return 0, fmt.Errorf("%w: %s payload %d out of range", ErrInvalidDocument, d.Tag, *d.Int)
	}
	return *d.Int, nil
}

func (d Document) bits(size int) (uint64, error) {
	if d.Bits == "" {
		return 0, d.missing("bits")
	}
	n, err := strconv.ParseUint(d.Bits, 0, size)
	if err != nil {
		return 0, fmt.Errorf("%w: %s bits: %v", ErrInvalidDocument, d.Tag, err)
	}
	return n, nil
}

// EncodeValue marshals v as a Document with c (Default when nil).
func EncodeValue(c Codec, v constant.Value) ([]byte, error) {
	if c == nil {
		c = Default
	}
	d, err := ToDocument(v)
	if err != nil {
		return nil, err
	}
	return c.Marshal(d)
}

// DecodeValue unmarshals a Document with c (Default when nil).
func DecodeValue(c Codec, data []byte) (constant.Value, error) {
	if c == nil {
		c = Default
	}
	var d Document
	if err := c.Unmarshal(data, &d); err != nil {
		return nil, err
	}
	return d.Value()
}

// AppendValue appends the Document of v encoded with c (Default when nil) to
// dst. Codecs with an AppendValue method encode without an extra copy.
func AppendValue(c Codec, dst []byte, v constant.Value) ([]byte, error) {
	if c == nil {
		c = Default
	}
	if a, ok := c.(interface {
		AppendValue(dst []byte, v constant.Value) ([]byte, error)
	}); ok {
		return a.AppendValue(dst, v)
	}
	b, err := EncodeValue(c, v)
	if err != nil {
		return dst, err
	}
	return append(dst, b...), nil
}

func ptr[T any](v T) *T { return &v }
