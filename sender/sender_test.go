package sender

import (
	"context"
	"errors"
	"strings"
	"testing"

	"typed-msg/message"
	"typed-msg/protocol"
	"typed-msg/receiver"
)

// ---- test schema ----

type PingMessage struct {
	Text string `json:"message"`
}

func (PingMessage) ResponseTypes() []message.Response {
	return []message.Response{PongResponse{}}
}

type PongResponse struct {
	message.ResponseBase
	Reply string `json:"reply"`
}

type ShutdownMessage struct {
	message.EmptyOnly
}

type StatusResponse struct {
	message.ResponseBase
	Code int `json:"code"`
}

func testProtocol(t *testing.T) *protocol.Protocol {
	t.Helper()
	cfg := protocol.DefaultConfig()
	cfg.MessageTypes = map[int]message.Message{
		1: PingMessage{},
		2: ShutdownMessage{},
	}
	cfg.ResponseTypes = map[int]message.Response{
		0: PongResponse{},
		1: StatusResponse{},
	}
	p, err := protocol.New(cfg)
	if err != nil {
		t.Fatalf("protocol.New failed: %v", err)
	}
	return p
}

// loopback wires a sender directly into a receiver, no transport involved.
func loopback(t *testing.T, p *protocol.Protocol, recv *receiver.Receiver) *Sender {
	t.Helper()
	snd := New(p)
	err := snd.SetSendRaw(func(ctx context.Context, data []byte) ([]byte, error) {
		return recv.Handle(ctx, data), nil
	})
	if err != nil {
		t.Fatalf("SetSendRaw failed: %v", err)
	}
	return snd
}

func registerPingHandler(t *testing.T, recv *receiver.Receiver) {
	t.Helper()
	err := recv.Register(PingMessage{}, []message.Response{PongResponse{}},
		func(ctx context.Context, msg message.Message) (message.Response, error) {
			return PongResponse{Reply: "pong:" + msg.(PingMessage).Text}, nil
		})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
}

// ---- tests ----

func TestSendWithoutCallback(t *testing.T) {
	snd := New(testProtocol(t))

	_, err := snd.Send(context.Background(), PingMessage{Text: "x"})
	if !errors.Is(err, ErrNoRawSend) {
		t.Fatalf("expected ErrNoRawSend, got %v", err)
	}
}

func TestSetSendRawOnlyOnce(t *testing.T) {
	snd := New(testProtocol(t))
	fn := func(ctx context.Context, data []byte) ([]byte, error) { return data, nil }

	if err := snd.SetSendRaw(fn); err != nil {
		t.Fatalf("first SetSendRaw failed: %v", err)
	}
	if err := snd.SetSendRaw(fn); err == nil {
		t.Fatal("second SetSendRaw should fail")
	}
}

func TestSendRoundTrip(t *testing.T) {
	p := testProtocol(t)
	recv := receiver.New(p)
	registerPingHandler(t, recv)
	snd := loopback(t, p, recv)

	rsp, err := snd.Send(context.Background(), PingMessage{Text: "hello"})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	pong, ok := rsp.(PongResponse)
	if !ok {
		t.Fatalf("expected PongResponse, got %T", rsp)
	}
	if pong.Reply != "pong:hello" {
		t.Errorf("unexpected reply: %q", pong.Reply)
	}
}

func TestSendEmptyResponseIsNoValue(t *testing.T) {
	p := testProtocol(t)
	recv := receiver.New(p)
	err := recv.Register(ShutdownMessage{}, []message.Response{message.EmptyResponse{}},
		func(ctx context.Context, msg message.Message) (message.Response, error) {
			return nil, nil // no response value
		})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	snd := loopback(t, p, recv)

	rsp, err := snd.Send(context.Background(), ShutdownMessage{})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if rsp != nil {
		t.Errorf("expected no value, got %+v", rsp)
	}
}

func TestSendPropagatesCleanError(t *testing.T) {
	p := testProtocol(t)
	recv := receiver.New(p)
	err := recv.Register(ShutdownMessage{}, []message.Response{message.EmptyResponse{}},
		func(ctx context.Context, msg message.Message) (message.Response, error) {
			return nil, message.NewCleanError("no permission")
		})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	snd := loopback(t, p, recv)

	_, err = snd.Send(context.Background(), ShutdownMessage{})
	var clean *message.CleanError
	if !errors.As(err, &clean) {
		t.Fatalf("expected CleanError, got %v", err)
	}
	if clean.Message != "no permission" {
		t.Errorf("expected original text, got %q", clean.Message)
	}
}

func TestSendRejectsUndeclaredResponseType(t *testing.T) {
	p := testProtocol(t)
	snd := New(p)
	// A skewed remote replies with a registered type that PingMessage never
	// declared.
	err := snd.SetSendRaw(func(ctx context.Context, data []byte) ([]byte, error) {
		return p.EncodeResponse(StatusResponse{Code: 200})
	})
	if err != nil {
		t.Fatalf("SetSendRaw failed: %v", err)
	}

	_, err = snd.Send(context.Background(), PingMessage{Text: "x"})
	if err == nil {
		t.Fatal("expected an undeclared-response error")
	}
	if !strings.Contains(err.Error(), "not declared") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestSendWrapsTransportError(t *testing.T) {
	p := testProtocol(t)
	snd := New(p)
	transportErr := errors.New("connection refused")
	if err := snd.SetSendRaw(func(ctx context.Context, data []byte) ([]byte, error) {
		return nil, transportErr
	}); err != nil {
		t.Fatalf("SetSendRaw failed: %v", err)
	}

	_, err := snd.Send(context.Background(), PingMessage{Text: "x"})
	if !errors.Is(err, transportErr) {
		t.Fatalf("expected wrapped transport error, got %v", err)
	}
}

func TestSendAsync(t *testing.T) {
	p := testProtocol(t)
	recv := receiver.New(p)
	registerPingHandler(t, recv)
	snd := loopback(t, p, recv)

	res := <-snd.SendAsync(context.Background(), PingMessage{Text: "bg"})
	if res.Err != nil {
		t.Fatalf("SendAsync failed: %v", res.Err)
	}
	if res.Response.(PongResponse).Reply != "pong:bg" {
		t.Errorf("unexpected reply: %+v", res.Response)
	}
}

func TestSendAs(t *testing.T) {
	p := testProtocol(t)
	recv := receiver.New(p)
	registerPingHandler(t, recv)
	snd := loopback(t, p, recv)

	pong, err := SendAs[PongResponse](context.Background(), snd, PingMessage{Text: "typed"})
	if err != nil {
		t.Fatalf("SendAs failed: %v", err)
	}
	if pong.Reply != "pong:typed" {
		t.Errorf("unexpected reply: %q", pong.Reply)
	}
}

func TestSendAsRejectsNoValue(t *testing.T) {
	p := testProtocol(t)
	recv := receiver.New(p)
	err := recv.Register(ShutdownMessage{}, []message.Response{message.EmptyResponse{}},
		func(ctx context.Context, msg message.Message) (message.Response, error) {
			return nil, nil
		})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	snd := loopback(t, p, recv)

	if _, err := SendAs[PongResponse](context.Background(), snd, ShutdownMessage{}); err == nil {
		t.Fatal("expected SendAs to fail on a no-value reply")
	}
}
