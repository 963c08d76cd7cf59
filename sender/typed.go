package sender

import (
	"context"
	"fmt"

	"typed-msg/message"
)

// SendAs is the statically-typed send surface: it narrows the response to the
// single concrete type R the caller expects. For messages declaring several
// response types, use Send and switch on the result instead.
//
// A remote "no value" reply yields the zero R with a descriptive error, since
// the caller explicitly asked for a value.
func SendAs[R message.Response](ctx context.Context, s *Sender, msg message.Message) (R, error) {
	var zero R
	rsp, err := s.Send(ctx, msg)
	if err != nil {
		return zero, err
	}
	if rsp == nil {
		return zero, fmt.Errorf("expected a %T response, got no value", zero)
	}
	typed, ok := rsp.(R)
	if !ok {
		return zero, fmt.Errorf("expected a %T response, got %T", zero, rsp)
	}
	return typed, nil
}
