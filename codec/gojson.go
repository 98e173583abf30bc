package codec

import (
	"bytes"

	gojson "github.com/goccy/go-json"

	"github.com/hupe1980/ndb/constant"
)

// GoJSON is the default Document codec, backed by github.com/goccy/go-json.
//
// Output is not HTML-escaped: generic type signatures such as
// "Ljava/util/List<Ljava/lang/String;>;" are written as is. Input is strict:
// a document with an unknown field is rejected, so a misspelled "elements"
// fails instead of decoding as an empty array.
type GoJSON struct{}

// Marshal encodes v without HTML escaping.
func (GoJSON) Marshal(v any) ([]byte, error) { return gojson.MarshalNoEscape(v) }

// Unmarshal decodes data into v, rejecting unknown object fields.
func (GoJSON) Unmarshal(data []byte, v any) error {
	dec := gojson.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// Name returns "go-json".
func (GoJSON) Name() string { return "go-json" }

// AppendValue appends the Document of v to dst.
func (c GoJSON) AppendValue(dst []byte, v constant.Value) ([]byte, error) {
	d, err := ToDocument(v)
	if err != nil {
		return dst, err
	}
	b, err := c.Marshal(d)
	if err != nil {
		return dst, err
	}
	return append(dst, b...), nil
}
