// Package protocol implements the immutable type registry shared by a
// communicating sender/receiver pair.
//
// A Protocol binds message and response struct types to small integer IDs and
// carries the policy flags that govern error propagation across the trust
// boundary. Both endpoints must be built from a compatible configuration for
// communication to succeed: message types must keep their IDs, stored field
// keys must not change, and newly added fields need default values.
//
// A Protocol is frozen at construction. Validation happens eagerly in New so
// an embedding process never starts with an invalid registry.
package protocol

import (
	"fmt"
	"reflect"
	"sort"

	"go.uber.org/zap"

	"typed-msg/codec"
	"typed-msg/message"
)

// Reserved response IDs. These are auto-registered and never change, so user
// IDs (which must be >= 0) cannot collide with them.
const (
	ErrorResponseID = -1
	EmptyResponseID = -2
)

// Config describes a protocol before it is frozen.
//
// Obtain a seed from DefaultConfig, overwrite what you need, and pass the
// result to New. Registered types are given as prototype values; only their
// types matter.
type Config struct {
	// MessageTypes maps wire IDs (>= 0) to message prototypes.
	MessageTypes map[int]message.Message

	// ResponseTypes maps wire IDs (>= 0) to response prototypes.
	// EmptyResponse and ErrorResponse are auto-registered at fixed negative
	// IDs unless listed here explicitly.
	ResponseTypes map[int]message.Response

	// TypeKey, when non-empty, stores the type ID as a field of that name
	// alongside the payload fields instead of wrapping payload and ID in a
	// two-key envelope. Mainly for backwards compatibility.
	TypeKey string

	// PreserveCleanErrors reconstitutes a remote CleanError as a CleanError
	// locally; when false every remote failure surfaces as a RemoteError.
	PreserveCleanErrors bool

	// LogRemoteExceptions logs handler failures on the receiving side before
	// they are converted into an ErrorResponse.
	LogRemoteExceptions bool

	// TrustedSender includes full failure detail (including stacks from
	// recovered panics) in error responses. Leave false across trust
	// boundaries; untrusted senders only see a fixed opaque text.
	TrustedSender bool

	// Codec serializes wire records. Defaults to JSON.
	Codec codec.Codec

	// Logger receives protocol diagnostics. Defaults to a no-op logger.
	Logger *zap.Logger
}

// DefaultConfig returns the config seed: clean errors preserved, remote
// exceptions logged, sender untrusted, JSON wire encoding.
func DefaultConfig() Config {
	return Config{
		PreserveCleanErrors: true,
		LogRemoteExceptions: true,
	}
}

// Protocol is the frozen registry. Safe for concurrent use once built.
type Protocol struct {
	messageTypesByID  map[int]reflect.Type
	messageIDsByType  map[reflect.Type]int
	responseTypesByID map[int]reflect.Type
	responseIDsByType map[reflect.Type]int

	// Declared acceptable response types per message type.
	responseSets map[reflect.Type]map[reflect.Type]bool

	typeKey             string
	preserveCleanErrors bool
	logRemoteExceptions bool
	trustedSender       bool

	codec  codec.Codec
	logger *zap.Logger
}

// New validates cfg and freezes it into a Protocol.
//
// Construction fails on: negative or reused IDs, non-struct prototypes, a
// type registered under two IDs, a message whose declared response set is
// empty, has duplicates, or references an unregistered response type, and
// base type names reused anywhere in the registry.
func New(cfg Config) (*Protocol, error) {
	p := &Protocol{
		messageTypesByID:  make(map[int]reflect.Type),
		messageIDsByType:  make(map[reflect.Type]int),
		responseTypesByID: make(map[int]reflect.Type),
		responseIDsByType: make(map[reflect.Type]int),
		responseSets:      make(map[reflect.Type]map[reflect.Type]bool),

		typeKey:             cfg.TypeKey,
		preserveCleanErrors: cfg.PreserveCleanErrors,
		logRemoteExceptions: cfg.LogRemoteExceptions,
		trustedSender:       cfg.TrustedSender,
		codec:               cfg.Codec,
		logger:              cfg.Logger,
	}
	if p.codec == nil {
		p.codec = codec.GetCodec(codec.CodecTypeJSON)
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}

	for _, id := range sortedIDs(cfg.MessageTypes) {
		t, err := registrableType(id, cfg.MessageTypes[id], "message")
		if err != nil {
			return nil, err
		}
		if prev, ok := p.messageIDsByType[t]; ok {
			return nil, fmt.Errorf("message type %s registered twice (ids %d and %d)", t, prev, id)
		}
		p.messageTypesByID[id] = t
		p.messageIDsByType[t] = id
	}

	for _, id := range sortedIDs(cfg.ResponseTypes) {
		t, err := registrableType(id, cfg.ResponseTypes[id], "response")
		if err != nil {
			return nil, err
		}
		if prev, ok := p.responseIDsByType[t]; ok {
			return nil, fmt.Errorf("response type %s registered twice (ids %d and %d)", t, prev, id)
		}
		p.responseTypesByID[id] = t
		p.responseIDsByType[t] = id
	}

	// Auto-register the reserved response types unless the caller already
	// registered them under IDs of their own. Fills gaps, never overrides.
	p.registerReserved(reflect.TypeOf(message.ErrorResponse{}), ErrorResponseID)
	p.registerReserved(reflect.TypeOf(message.EmptyResponse{}), EmptyResponseID)

	// Every message's declared response set must be non-empty, free of
	// duplicates, and fully covered by the response registry.
	for _, id := range sortedIDs(cfg.MessageTypes) {
		proto := cfg.MessageTypes[id]
		mt := structType(proto)
		declared := proto.ResponseTypes()
		if len(declared) == 0 {
			return nil, fmt.Errorf("message type %s declares no response types", mt)
		}
		set := make(map[reflect.Type]bool, len(declared))
		for _, rp := range declared {
			rt := structType(rp)
			if set[rt] {
				return nil, fmt.Errorf("message type %s declares response type %s more than once", mt, rt)
			}
			if _, ok := p.responseIDsByType[rt]; !ok {
				return nil, fmt.Errorf("possible response type %s of message %s is not registered", rt, mt)
			}
			set[rt] = true
		}
		p.responseSets[mt] = set
	}

	// Base type names must be unique across the whole registry; derived
	// typed surfaces rely on unqualified names not clashing.
	names := make(map[string]reflect.Type)
	for _, t := range p.messageIDsByTypeKeys() {
		if prev, ok := names[t.Name()]; ok && prev != t {
			return nil, fmt.Errorf("duplicate registered type name %q (%s and %s)", t.Name(), prev, t)
		}
		names[t.Name()] = t
	}
	for t := range p.responseIDsByType {
		if prev, ok := names[t.Name()]; ok && prev != t {
			return nil, fmt.Errorf("duplicate registered type name %q (%s and %s)", t.Name(), prev, t)
		}
		names[t.Name()] = t
	}

	return p, nil
}

func (p *Protocol) registerReserved(t reflect.Type, id int) {
	if _, ok := p.responseIDsByType[t]; ok {
		return
	}
	p.responseTypesByID[id] = t
	p.responseIDsByType[t] = id
}

func (p *Protocol) messageIDsByTypeKeys() []reflect.Type {
	out := make([]reflect.Type, 0, len(p.messageIDsByType))
	for t := range p.messageIDsByType {
		out = append(out, t)
	}
	return out
}

// registrableType checks one registry entry and returns its struct type.
func registrableType(id int, proto any, opname string) (reflect.Type, error) {
	if proto == nil {
		return nil, fmt.Errorf("%s id %d has a nil prototype", opname, id)
	}
	if id < 0 {
		return nil, fmt.Errorf("%s id %d is negative; user ids must be >= 0", opname, id)
	}
	t := structType(proto)
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%s type %s is not a struct", opname, t)
	}
	return t, nil
}

// structType returns the underlying struct type of a prototype or instance,
// looking through at most one level of pointer.
func structType(v any) reflect.Type {
	t := reflect.TypeOf(v)
	if t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

func sortedIDs[T any](m map[int]T) []int {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// MessageRegistered reports whether msg's concrete type is in the registry.
func (p *Protocol) MessageRegistered(msg message.Message) bool {
	_, ok := p.messageIDsByType[structType(msg)]
	return ok
}

// ResponseAllowed reports whether rsp's concrete type is a member of msg's
// declared acceptable response set.
func (p *Protocol) ResponseAllowed(msg message.Message, rsp message.Response) bool {
	return p.responseSets[structType(msg)][structType(rsp)]
}

// RegisteredMessageTypes returns all registered message struct types in
// ascending ID order.
func (p *Protocol) RegisteredMessageTypes() []reflect.Type {
	ids := sortedIDs(p.messageTypesByID)
	out := make([]reflect.Type, 0, len(ids))
	for _, id := range ids {
		out = append(out, p.messageTypesByID[id])
	}
	return out
}

// PreserveCleanErrors reports whether remote clean errors keep their kind.
func (p *Protocol) PreserveCleanErrors() bool { return p.preserveCleanErrors }

// LogRemoteExceptions reports whether the receiver logs handler failures.
func (p *Protocol) LogRemoteExceptions() bool { return p.logRemoteExceptions }

// TrustedSender reports whether full failure detail crosses the wire.
func (p *Protocol) TrustedSender() bool { return p.trustedSender }

// Logger returns the protocol's logger (never nil).
func (p *Protocol) Logger() *zap.Logger { return p.logger }
