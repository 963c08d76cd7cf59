package middleware

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"typed-msg/message"
)

// LoggingMiddleware logs every dispatched message with its concrete type,
// handling duration, and outcome.
func LoggingMiddleware(logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, msg message.Message) (message.Response, error) {
			start := time.Now()
			rsp, err := next(ctx, msg)
			fields := []zap.Field{
				zap.String("message", fmt.Sprintf("%T", msg)),
				zap.Duration("duration", time.Since(start)),
			}
			if err != nil {
				logger.Warn("message handling failed", append(fields, zap.Error(err))...)
			} else {
				logger.Debug("message handled", fields...)
			}
			return rsp, err
		}
	}
}
