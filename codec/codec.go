package codec

type CodecType byte

const (
	CodecTypeJSON    CodecType = 0
	CodecTypeMsgpack CodecType = 1
)

// Codec serializes generic values to compact bytes and back. The protocol
// layer drives it with both concrete payload structs and generic
// map[string]any records, so implementations must handle either.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	Type() CodecType // 0=JSON, 1=Msgpack
}

func GetCodec(codecType CodecType) Codec {
	if codecType == CodecTypeMsgpack {
		return &MsgpackCodec{}
	}

	return &JSONCodec{}
}
