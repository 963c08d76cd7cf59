// Package middleware provides composable wrappers around receiver-side
// message dispatch.
//
// A middleware wraps the typed handler stage only; decode, encode, and the
// error boundary stay with the receiver. Errors returned by a middleware are
// classified and propagated to the remote sender like any handler failure.
package middleware

import (
	"context"

	"typed-msg/message"
)

// HandlerFunc is the dispatch stage: a decoded message in, a response (or
// nil for no value) or an error out.
type HandlerFunc func(ctx context.Context, msg message.Message) (message.Response, error)

type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares into one. Chain(A, B, C)(h) runs as A(B(C(h))):
// A sees the request first and the response last.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
