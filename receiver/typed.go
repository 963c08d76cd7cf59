package receiver

import (
	"context"
	"fmt"

	"typed-msg/message"
	"typed-msg/middleware"
)

// RegisterTyped is the statically-typed registration surface: the handler
// takes the concrete message type directly instead of type-asserting a
// message.Message. M must be the value (non-pointer) struct type as it was
// registered in the protocol.
func RegisterTyped[M message.Message](r *Receiver, responseTypes []message.Response, fn func(ctx context.Context, msg M) (message.Response, error)) error {
	var prototype M
	wrapped := middleware.HandlerFunc(func(ctx context.Context, msg message.Message) (message.Response, error) {
		typed, ok := msg.(M)
		if !ok {
			return nil, fmt.Errorf("internal: handler for %T dispatched a %T", prototype, msg)
		}
		return fn(ctx, typed)
	})
	return r.Register(prototype, responseTypes, wrapped)
}
