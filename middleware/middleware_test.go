package middleware

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"typed-msg/message"
)

type probeMessage struct {
	message.EmptyOnly
}

func okHandler(ctx context.Context, msg message.Message) (message.Response, error) {
	return nil, nil
}

func TestChainOrder(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, msg message.Message) (message.Response, error) {
				order = append(order, name+":before")
				rsp, err := next(ctx, msg)
				order = append(order, name+":after")
				return rsp, err
			}
		}
	}

	handler := Chain(tag("A"), tag("B"), tag("C"))(okHandler)
	if _, err := handler(context.Background(), probeMessage{}); err != nil {
		t.Fatalf("handler failed: %v", err)
	}

	want := []string{"A:before", "B:before", "C:before", "C:after", "B:after", "A:after"}
	if len(order) != len(want) {
		t.Fatalf("unexpected call order: %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("unexpected call order: %v", order)
		}
	}
}

func TestChainEmpty(t *testing.T) {
	handler := Chain()(okHandler)
	if _, err := handler(context.Background(), probeMessage{}); err != nil {
		t.Fatalf("empty chain should pass through: %v", err)
	}
}

func TestLoggingMiddlewarePassesThrough(t *testing.T) {
	handler := Chain(LoggingMiddleware(zap.NewNop()))(
		func(ctx context.Context, msg message.Message) (message.Response, error) {
			return nil, errors.New("boom")
		})

	_, err := handler(context.Background(), probeMessage{})
	if err == nil || err.Error() != "boom" {
		t.Fatalf("logging middleware must not swallow errors, got %v", err)
	}
}

func TestTimeoutMiddleware(t *testing.T) {
	handler := Chain(TimeoutMiddleware(20 * time.Millisecond))(
		func(ctx context.Context, msg message.Message) (message.Response, error) {
			select {
			case <-time.After(time.Second):
				return nil, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		})

	start := time.Now()
	_, err := handler(context.Background(), probeMessage{})
	if err == nil {
		t.Fatal("expected a timeout error")
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("timeout fired far too late")
	}
}

func TestTimeoutMiddlewareFastHandler(t *testing.T) {
	handler := Chain(TimeoutMiddleware(time.Second))(okHandler)
	if _, err := handler(context.Background(), probeMessage{}); err != nil {
		t.Fatalf("fast handler should not time out: %v", err)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	// 1 request per second with burst 2: the third immediate call must fail.
	handler := Chain(RateLimitMiddleware(1, 2))(okHandler)

	for i := 0; i < 2; i++ {
		if _, err := handler(context.Background(), probeMessage{}); err != nil {
			t.Fatalf("call %d should pass: %v", i, err)
		}
	}
	_, err := handler(context.Background(), probeMessage{})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}
