package middleware

import (
	"context"
	"errors"

	"golang.org/x/time/rate"

	"typed-msg/message"
)

// ErrRateLimited is returned when a message is dropped by RateLimitMiddleware.
var ErrRateLimited = errors.New("rate limit exceeded")

// RateLimitMiddleware rejects messages beyond r per second with bursts of up
// to burst, using a shared token bucket across all message types.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, msg message.Message) (message.Response, error) {
			if !limiter.Allow() {
				return nil, ErrRateLimited
			}
			return next(ctx, msg)
		}
	}
}
