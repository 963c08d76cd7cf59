package protocol

import (
	"encoding/json"
	"fmt"
	"reflect"

	"typed-msg/message"
)

// envelope is the default wire layout: payload record under "m", type ID
// under "t". Field order matters for byte-stable JSON output.
type envelope struct {
	M any `json:"m" msgpack:"m"`
	T int `json:"t" msgpack:"t"`
}

// EncodeMessage encodes a message to bytes for transport.
func (p *Protocol) EncodeMessage(msg message.Message) ([]byte, error) {
	return p.encode(msg, p.messageIDsByType, "message")
}

// EncodeResponse encodes a response to bytes for transport.
func (p *Protocol) EncodeResponse(rsp message.Response) ([]byte, error) {
	return p.encode(rsp, p.responseIDsByType, "response")
}

func (p *Protocol) encode(v any, idsByType map[reflect.Type]int, opname string) ([]byte, error) {
	t := structType(v)
	id, ok := idsByType[t]
	if !ok {
		return nil, fmt.Errorf("%s type is not registered in protocol: %s", opname, t)
	}

	if p.typeKey == "" {
		return p.codec.Encode(envelope{M: v, T: id})
	}

	// Type-key mode: flatten the payload to a generic record and store the
	// ID as one of its fields.
	payload, err := p.codec.Encode(v)
	if err != nil {
		return nil, fmt.Errorf("serializing %s of type %s: %w", opname, t, err)
	}
	var record map[string]any
	if err := p.codec.Decode(payload, &record); err != nil {
		return nil, fmt.Errorf("serializing %s of type %s: %w", opname, t, err)
	}
	if record == nil {
		record = make(map[string]any, 1)
	}
	if _, exists := record[p.typeKey]; exists {
		return nil, fmt.Errorf("type-key %q collides with a field of %s type %s", p.typeKey, opname, t)
	}
	record[p.typeKey] = id
	return p.codec.Encode(record)
}

// DecodeMessage decodes a message from bytes.
func (p *Protocol) DecodeMessage(data []byte) (message.Message, error) {
	out, err := p.decode(data, p.messageTypesByID, "message")
	if err != nil {
		return nil, err
	}
	msg, ok := out.(message.Message)
	if !ok {
		return nil, fmt.Errorf("decoded type %T does not implement Message", out)
	}
	return msg, nil
}

// DecodeResponse decodes a response from bytes.
//
// An EmptyResponse decodes to (nil, nil): no response value. An ErrorResponse
// never surfaces as a value either; it decodes to a CleanError or RemoteError
// describing what went wrong on the remote end. Every caller must treat this
// as a normal failure mode of decode, not just malformed input.
func (p *Protocol) DecodeResponse(data []byte) (message.Response, error) {
	out, err := p.decode(data, p.responseTypesByID, "response")
	if err != nil {
		return nil, err
	}

	if _, ok := out.(message.EmptyResponse); ok {
		return nil, nil
	}
	if er, ok := out.(message.ErrorResponse); ok {
		if p.preserveCleanErrors && er.ErrorType == message.ErrorTypeClean {
			return nil, &message.CleanError{Message: er.ErrorMessage}
		}
		return nil, &message.RemoteError{Message: er.ErrorMessage}
	}

	rsp, ok := out.(message.Response)
	if !ok {
		return nil, fmt.Errorf("decoded type %T does not implement Response", out)
	}
	return rsp, nil
}

func (p *Protocol) decode(data []byte, typesByID map[int]reflect.Type, opname string) (any, error) {
	var record map[string]any
	if err := p.codec.Decode(data, &record); err != nil {
		return nil, fmt.Errorf("malformed %s data: %w", opname, err)
	}
	if record == nil {
		return nil, fmt.Errorf("malformed %s data: not a mapping", opname)
	}

	var id int
	var payload any
	if p.typeKey != "" {
		raw, ok := record[p.typeKey]
		if !ok {
			return nil, fmt.Errorf("%s data is missing type-key %q", opname, p.typeKey)
		}
		id, ok = asInt(raw)
		if !ok {
			return nil, fmt.Errorf("%s type id under key %q is not an integer", opname, p.typeKey)
		}
		delete(record, p.typeKey)
		payload = record
	} else {
		raw, ok := record["t"]
		if !ok {
			return nil, fmt.Errorf("%s data is missing type id key \"t\"", opname)
		}
		id, ok = asInt(raw)
		if !ok {
			return nil, fmt.Errorf("%s type id is not an integer", opname)
		}
		payload, ok = record["m"]
		if !ok {
			return nil, fmt.Errorf("%s data is missing payload key \"m\"", opname)
		}
		if !isRecord(payload) {
			return nil, fmt.Errorf("%s payload is not a mapping", opname)
		}
	}

	t, ok := typesByID[id]
	if !ok {
		return nil, fmt.Errorf("got unregistered %s type id of %d", opname, id)
	}

	// Rebuild the typed instance from the generic record. Unknown extra
	// fields are ignored for forward compatibility; absent fields keep
	// their declared zero/default values.
	payloadBytes, err := p.codec.Encode(payload)
	if err != nil {
		return nil, fmt.Errorf("re-encoding %s payload for %s: %w", opname, t, err)
	}
	ptr := reflect.New(t)
	if err := p.codec.Decode(payloadBytes, ptr.Interface()); err != nil {
		return nil, fmt.Errorf("decoding %s payload as %s: %w", opname, t, err)
	}
	return ptr.Elem().Interface(), nil
}

// asInt coerces the numeric shapes the codecs produce for type IDs.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
		return 0, false
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}

func isRecord(v any) bool {
	switch v.(type) {
	case map[string]any:
		return true
	case map[any]any:
		return true
	default:
		return false
	}
}
