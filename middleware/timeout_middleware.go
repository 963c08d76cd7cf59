package middleware

import (
	"context"
	"fmt"
	"time"

	"typed-msg/message"
)

// TimeoutMiddleware bounds handler execution. The handler keeps running on
// its goroutine after the deadline fires; the remote sender just stops
// waiting for it and receives a timeout failure instead.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	type outcome struct {
		rsp message.Response
		err error
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, msg message.Message) (message.Response, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan outcome, 1)
			go func() {
				rsp, err := next(ctx, msg)
				done <- outcome{rsp: rsp, err: err}
			}()

			select {
			case out := <-done:
				return out.rsp, out.err
			case <-ctx.Done():
				return nil, fmt.Errorf("handling %T timed out after %s", msg, timeout)
			}
		}
	}
}
