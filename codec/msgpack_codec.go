package codec

import (
	"github.com/vmihailenco/msgpack"
)

// MsgpackCodec serializes with MessagePack. Smaller and faster than JSON on
// the wire; both endpoints must agree on the codec out-of-band, same as they
// agree on the type registry.
type MsgpackCodec struct{}

func (c *MsgpackCodec) Encode(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (c *MsgpackCodec) Decode(data []byte, v any) error {
	return msgpack.Unmarshal(data, v)
}

func (c *MsgpackCodec) Type() CodecType {
	return CodecTypeMsgpack
}
