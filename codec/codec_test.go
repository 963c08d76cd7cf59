package codec

import (
	"encoding/json"
	"testing"
)

type payload struct {
	Name  string `json:"name" msgpack:"name"`
	Count int    `json:"count" msgpack:"count"`
}

func TestJSONCodec(t *testing.T) {
	jsonCodec := &JSONCodec{}

	original := payload{Name: "ping", Count: 3}

	data, err := jsonCodec.Encode(original)
	if err != nil {
		t.Fatalf("JSONCodec Encode failed: %v", err)
	}

	var decoded payload
	if err := jsonCodec.Decode(data, &decoded); err != nil {
		t.Fatalf("JSONCodec Decode failed: %v", err)
	}

	if decoded != original {
		t.Errorf("round trip mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestJSONCodecCompactOutput(t *testing.T) {
	jsonCodec := &JSONCodec{}

	data, err := jsonCodec.Encode(payload{Name: "x", Count: 1})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if string(data) != `{"name":"x","count":1}` {
		t.Errorf("expected compact output, got %s", data)
	}
}

func TestJSONCodecRecordKeepsIntegers(t *testing.T) {
	jsonCodec := &JSONCodec{}

	// Large enough to lose precision through float64.
	data := []byte(`{"id":9007199254740993}`)

	var record map[string]any
	if err := jsonCodec.Decode(data, &record); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	num, ok := record["id"].(json.Number)
	if !ok {
		t.Fatalf("expected json.Number, got %T", record["id"])
	}

	out, err := jsonCodec.Encode(record)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if string(out) != string(data) {
		t.Errorf("integer changed through record round trip: got %s, want %s", out, data)
	}
	if num.String() != "9007199254740993" {
		t.Errorf("unexpected number text: %s", num)
	}
}

func TestMsgpackCodec(t *testing.T) {
	mpCodec := &MsgpackCodec{}

	original := payload{Name: "pong", Count: 7}

	data, err := mpCodec.Encode(original)
	if err != nil {
		t.Fatalf("MsgpackCodec Encode failed: %v", err)
	}

	var decoded payload
	if err := mpCodec.Decode(data, &decoded); err != nil {
		t.Fatalf("MsgpackCodec Decode failed: %v", err)
	}

	if decoded != original {
		t.Errorf("round trip mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestGetCodec(t *testing.T) {
	if GetCodec(CodecTypeJSON).Type() != CodecTypeJSON {
		t.Error("expected JSON codec")
	}
	if GetCodec(CodecTypeMsgpack).Type() != CodecTypeMsgpack {
		t.Error("expected msgpack codec")
	}
}
