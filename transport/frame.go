// Package transport is an optional TCP binding for a sender/receiver pair.
//
// The protocol core only consumes a raw-send callback and exposes a raw
// dispatch function; this package supplies both over a length-prefixed frame
// stream: Client.RoundTrip plugs into sender.SetSendRaw, and Server drives
// receiver.Handle for every inbound frame. Nothing in the core imports it.
//
// Frame format (13-byte header, then body):
//
//	0      3  4  5         9        13
//	┌──────┬──┬──┬─────────┬─────────┬───────────────┐
//	│magic │v │ft│   seq   │ bodyLen │    body ...    │
//	│ tmg  │01│  │ uint32  │ uint32  │ bodyLen bytes  │
//	└──────┴──┴──┴─────────┴─────────┴───────────────┘
//
// The fixed header solves TCP's sticky packet problem: the reader takes the
// header first, learns bodyLen, then reads exactly that many bytes.
package transport

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Magic number bytes: "tmg" (typed message). Rejects non-protocol
// connections (e.g. HTTP clients hitting the wrong port) cheaply.
const (
	MagicNumber byte = 0x74 // 't'
	MagicByte2  byte = 0x6d // 'm'
	MagicByte3  byte = 0x67 // 'g'
	Version     byte = 0x01
	HeaderSize  int  = 13 // 3 (magic) + 1 (version) + 1 (frameType) + 4 (seq) + 4 (bodyLen)
)

// FrameType distinguishes request, response, and heartbeat frames.
type FrameType byte

const (
	FrameRequest   FrameType = 0 // Client → Server encoded message
	FrameResponse  FrameType = 1 // Server → Client encoded response
	FrameHeartbeat FrameType = 2 // KeepAlive probe (no body)
)

// Header is the fixed 13-byte frame header.
type Header struct {
	FrameType FrameType
	Seq       uint32 // Matches a response frame to its request frame
	BodyLen   uint32
}

// WriteFrame writes a complete frame (header + body) to w. Callers sharing a
// writer across goroutines must serialize WriteFrame calls, otherwise frames
// interleave and corrupt the stream.
func WriteFrame(w io.Writer, h *Header, body []byte) error {
	buf := make([]byte, HeaderSize)

	copy(buf[0:3], []byte{MagicNumber, MagicByte2, MagicByte3})
	buf[3] = Version
	buf[4] = byte(h.FrameType)
	binary.BigEndian.PutUint32(buf[5:9], h.Seq)
	binary.BigEndian.PutUint32(buf[9:13], h.BodyLen)

	if _, err := w.Write(buf); err != nil {
		return err
	}
	// Body may be nil for heartbeat frames.
	if _, err := w.Write(body); err != nil {
		return err
	}
	return nil
}

// ReadFrame reads a complete frame from r, validating magic, version, and
// frame type. io.ReadFull guarantees exact reads with no partial frames.
func ReadFrame(r io.Reader) (*Header, []byte, error) {
	headerBuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, headerBuf); err != nil {
		return nil, nil, err
	}

	if headerBuf[0] != MagicNumber || headerBuf[1] != MagicByte2 || headerBuf[2] != MagicByte3 {
		return nil, nil, fmt.Errorf("invalid magic number: %x", headerBuf[0:3])
	}
	if headerBuf[3] != Version {
		return nil, nil, fmt.Errorf("unsupported version: %d", headerBuf[3])
	}
	frameType := headerBuf[4]
	if frameType != byte(FrameRequest) && frameType != byte(FrameResponse) && frameType != byte(FrameHeartbeat) {
		return nil, nil, fmt.Errorf("unsupported frame type: %d", frameType)
	}

	seq := binary.BigEndian.Uint32(headerBuf[5:9])
	bodyLen := binary.BigEndian.Uint32(headerBuf[9:13])

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, nil, err
	}

	return &Header{
		FrameType: FrameType(frameType),
		Seq:       seq,
		BodyLen:   bodyLen,
	}, body, nil
}
