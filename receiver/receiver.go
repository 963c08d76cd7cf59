// Package receiver implements the server side of a message exchange: decode
// incoming bytes, dispatch to the handler registered for the concrete message
// type, and encode the result (or a structured error) back to bytes.
//
// Handle never fails from the transport's point of view. Whatever goes wrong
// (malformed bytes, missing handler, handler error, handler panic) is caught,
// classified, and returned as an encoded ErrorResponse, so the receiving
// process never crashes over a bad message and the remote side always gets a
// well-formed reply.
//
// Registration and middleware setup are a single-threaded phase; once serving
// starts, concurrent Handle calls are safe.
package receiver

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"runtime/debug"
	"sort"
	"strings"

	"go.uber.org/zap"

	"typed-msg/message"
	"typed-msg/middleware"
	"typed-msg/protocol"
)

// genericErrorText is all an untrusted sender learns about a failure.
const genericErrorText = "An unknown error has occurred."

type Receiver struct {
	proto       *protocol.Protocol
	handlers    map[reflect.Type]middleware.HandlerFunc
	middlewares []middleware.Middleware

	// Rebuilt by Use during the setup phase; read-only once serving starts,
	// so concurrent Handle calls never touch an unsynchronized write.
	chain middleware.HandlerFunc
}

func New(p *protocol.Protocol) *Receiver {
	r := &Receiver{
		proto:    p,
		handlers: make(map[reflect.Type]middleware.HandlerFunc),
	}
	r.chain = r.dispatch
	return r
}

// Register binds fn as the single handler for prototype's message type.
//
// responseTypes must exactly equal the set declared by the message type's
// ResponseTypes, not a subset. A handler that produces no response value
// declares []message.Response{message.EmptyResponse{}} and returns nil.
func (r *Receiver) Register(prototype message.Message, responseTypes []message.Response, fn middleware.HandlerFunc) error {
	if fn == nil {
		return errors.New("handler must not be nil")
	}
	t := messageType(prototype)
	if !r.proto.MessageRegistered(prototype) {
		return fmt.Errorf("message type %s is not registered in this protocol", t)
	}
	if _, ok := r.handlers[t]; ok {
		return fmt.Errorf("message type %s already has a registered handler", t)
	}

	declared := typeSet(prototype.ResponseTypes())
	provided := make(map[reflect.Type]bool, len(responseTypes))
	for _, rp := range responseTypes {
		provided[messageType(rp)] = true
	}
	if !sameTypeSet(declared, provided) {
		return fmt.Errorf(
			"handler response types %s do not match the set declared by message type %s: %s",
			typeSetNames(provided), t, typeSetNames(declared))
	}

	r.handlers[t] = fn
	return nil
}

// Use appends a dispatch middleware. Middlewares run in registration order
// around every handler; they must all be added before the first Handle.
func (r *Receiver) Use(mw middleware.Middleware) {
	r.middlewares = append(r.middlewares, mw)
	r.chain = middleware.Chain(r.middlewares...)(r.dispatch)
}

// Validate checks that every message type registered in the protocol has a
// handler. With warnOnly the gaps are logged and nil is returned; otherwise
// missing coverage is an error.
func (r *Receiver) Validate(warnOnly bool) error {
	var missing []string
	for _, t := range r.proto.RegisteredMessageTypes() {
		if _, ok := r.handlers[t]; !ok {
			missing = append(missing, t.String())
		}
	}
	if len(missing) == 0 {
		return nil
	}
	if warnOnly {
		for _, name := range missing {
			r.proto.Logger().Warn("protocol message type not handled by receiver",
				zap.String("message", name))
		}
		return nil
	}
	return fmt.Errorf("protocol message types not handled by receiver: %s", strings.Join(missing, ", "))
}

// Handle decodes one incoming message, dispatches it, and returns the encoded
// response bytes. It never returns an error; failures come back as an encoded
// ErrorResponse classified per the protocol's policy flags.
func (r *Receiver) Handle(ctx context.Context, raw []byte) []byte {
	rsp, err := r.process(ctx, raw)
	if err == nil {
		data, encErr := r.proto.EncodeResponse(rsp)
		if encErr == nil {
			return data
		}
		err = encErr
	}

	if r.proto.LogRemoteExceptions() {
		r.proto.Logger().Error("error handling message", zap.Error(err))
	}

	data, encErr := r.proto.EncodeResponse(r.classify(err))
	if encErr != nil {
		// ErrorResponse is always registered; landing here means the codec
		// itself is broken.
		r.proto.Logger().Error("failed to encode error response", zap.Error(encErr))
		return nil
	}
	return data
}

// process runs decode → middleware chain → handler → defensive checks.
// A handler panic is recovered here and surfaces as an ordinary error.
func (r *Receiver) process(ctx context.Context, raw []byte) (rsp message.Response, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			rsp = nil
			err = fmt.Errorf("panic handling message: %v\n%s", rec, debug.Stack())
		}
	}()

	msg, err := r.proto.DecodeMessage(raw)
	if err != nil {
		return nil, err
	}

	out, err := r.chain(ctx, msg)
	if err != nil {
		return nil, err
	}

	// A nil handler result equals EmptyResponse.
	if out == nil {
		out = message.EmptyResponse{}
	}

	// Handlers must never construct an ErrorResponse themselves.
	switch out.(type) {
	case message.ErrorResponse, *message.ErrorResponse:
		return nil, fmt.Errorf("handler for %T returned an ErrorResponse directly", msg)
	}
	if !r.proto.ResponseAllowed(msg, out) {
		return nil, fmt.Errorf("internal: handler for %T returned undeclared response type %T", msg, out)
	}
	return out, nil
}

// dispatch is the innermost stage of the middleware chain.
func (r *Receiver) dispatch(ctx context.Context, msg message.Message) (message.Response, error) {
	handler, ok := r.handlers[messageType(msg)]
	if !ok {
		return nil, fmt.Errorf("got unhandled message type: %T", msg)
	}
	return handler(ctx, msg)
}

func (r *Receiver) classify(err error) message.ErrorResponse {
	var clean *message.CleanError
	if errors.As(err, &clean) && r.proto.PreserveCleanErrors() {
		return message.ErrorResponse{
			ErrorMessage: clean.Message,
			ErrorType:    message.ErrorTypeClean,
		}
	}
	detail := genericErrorText
	if r.proto.TrustedSender() {
		detail = err.Error()
	}
	return message.ErrorResponse{
		ErrorMessage: detail,
		ErrorType:    message.ErrorTypeOther,
	}
}

func messageType(v any) reflect.Type {
	t := reflect.TypeOf(v)
	if t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

func typeSet(prototypes []message.Response) map[reflect.Type]bool {
	out := make(map[reflect.Type]bool, len(prototypes))
	for _, p := range prototypes {
		out[messageType(p)] = true
	}
	return out
}

func sameTypeSet(a, b map[reflect.Type]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for t := range a {
		if !b[t] {
			return false
		}
	}
	return true
}

func typeSetNames(set map[reflect.Type]bool) string {
	names := make([]string, 0, len(set))
	for t := range set {
		names = append(names, t.String())
	}
	sort.Strings(names)
	return "[" + strings.Join(names, ", ") + "]"
}
