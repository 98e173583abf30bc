package codec

import (
	"encoding/json"
)

// JSON is the standard-library JSON codec. It supports indentation, which
// makes it the choice for human-facing output.
type JSON struct {
	// Indent, when non-empty, is used per nesting level.
	Indent string
}

// Marshal encodes the value to JSON.
func (c JSON) Marshal(v any) ([]byte, error) {
	if c.Indent != "" {
		return json.MarshalIndent(v, "", c.Indent)
	}
	return json.Marshal(v)
}

// Unmarshal decodes the JSON data into v.
func (JSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// Name returns the unique name of the codec ("json").
func (JSON) Name() string { return "json" }

// Default is the codec used when none is configured.
var Default Codec = GoJSON{}
