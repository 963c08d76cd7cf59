// Package sender implements the client side of a message exchange: encode a
// typed message, hand the bytes to an injected raw transport callback, and
// decode whatever comes back.
//
// The sender does not own a transport. The embedding application registers a
// single raw-send callback (a TCP round trip, an HTTP POST, an in-process
// loopback into a Receiver) exactly once before first use.
package sender

import (
	"context"
	"errors"
	"fmt"

	"typed-msg/message"
	"typed-msg/protocol"
)

// RawSendFunc delivers encoded request bytes to the remote end and returns
// the encoded response bytes. It may block; timeouts and cancellation belong
// to the transport and arrive through ctx.
type RawSendFunc func(ctx context.Context, data []byte) ([]byte, error)

// ErrNoRawSend is returned by Send when no raw-send callback is registered.
var ErrNoRawSend = errors.New("send is unimplemented: no raw-send callback registered")

// Sender sends messages through one Protocol. Register the raw callback with
// SetSendRaw before the first Send; after that it is safe for concurrent use.
type Sender struct {
	proto   *protocol.Protocol
	sendRaw RawSendFunc
}

func New(p *protocol.Protocol) *Sender {
	return &Sender{proto: p}
}

// SetSendRaw registers the raw transport callback. It must be called exactly
// once, before any Send; a second call fails.
func (s *Sender) SetSendRaw(fn RawSendFunc) error {
	if s.sendRaw != nil {
		return errors.New("raw-send callback already registered")
	}
	if fn == nil {
		return errors.New("raw-send callback must not be nil")
	}
	s.sendRaw = fn
	return nil
}

// Send encodes msg, performs the raw round trip, and decodes the reply.
//
// A nil response with nil error means the remote handler completed with no
// response value. A remote handler failure surfaces as a *message.CleanError
// or *message.RemoteError, exactly as classified by the remote receiver's
// protocol flags.
func (s *Sender) Send(ctx context.Context, msg message.Message) (message.Response, error) {
	if s.sendRaw == nil {
		return nil, ErrNoRawSend
	}

	encoded, err := s.proto.EncodeMessage(msg)
	if err != nil {
		return nil, err
	}

	replyBytes, err := s.sendRaw(ctx, encoded)
	if err != nil {
		return nil, fmt.Errorf("raw send: %w", err)
	}

	rsp, err := s.proto.DecodeResponse(replyBytes)
	if err != nil {
		// Remote errors and decode failures propagate unchanged.
		return nil, err
	}
	if rsp == nil {
		return nil, nil
	}

	// Guaranteed by protocol construction and correct remote behavior; a
	// mismatch means the two ends run skewed protocol revisions.
	if !s.proto.ResponseAllowed(msg, rsp) {
		return nil, fmt.Errorf("internal: response type %T is not declared by message type %T", rsp, msg)
	}
	return rsp, nil
}

// Result carries the outcome of an asynchronous send.
type Result struct {
	Response message.Response
	Err      error
}

// SendAsync performs Send on a new goroutine and returns a buffered channel
// that receives the single outcome. The caller decides whether and when to
// wait; abandoning the channel leaks nothing.
func (s *Sender) SendAsync(ctx context.Context, msg message.Message) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		rsp, err := s.Send(ctx, msg)
		out <- Result{Response: rsp, Err: err}
	}()
	return out
}
