package codec

import (
	"bytes"
	"encoding/json"
)

// JSONCodec uses Go's standard library encoding/json for serialization.
// Output is compact (no incidental whitespace), which is what the wire
// contract requires.
type JSONCodec struct{}

func (c *JSONCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (c *JSONCodec) Decode(data []byte, v any) error {
	// When decoding into a generic record, keep numbers as json.Number so
	// large integer IDs and payload fields survive a re-encode untouched
	// instead of going through float64.
	if _, ok := v.(*map[string]any); ok {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		return dec.Decode(v)
	}
	return json.Unmarshal(data, v)
}

func (c *JSONCodec) Type() CodecType {
	return CodecTypeJSON
}
