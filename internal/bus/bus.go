package bus

import (
	"context"
	"errors"
	"time"

	"webguide/pkg/apperr"
)

type Handler[Req, Resp any] func(ctx context.Context, req Req) (Resp, error)

// Command is one typed request/response pair crossing into the page or out
// to the instruction source. Every call is bounded by Timeout.
type Command[Req, Resp any] struct {
	Name    string
	Timeout time.Duration
	Handler Handler[Req, Resp]
}

func New[Req, Resp any](name string, timeout time.Duration, h Handler[Req, Resp]) *Command[Req, Resp] {
	return &Command[Req, Resp]{Name: name, Timeout: timeout, Handler: h}
}

// Call runs the handler under the declared timeout. A handler that overruns
// is abandoned and the call fails with apperr.CodeTimeout; callers treat that
// as unresolved. A handler that ignores ctx may keep running in the
// background until it returns.
func (c *Command[Req, Resp]) Call(ctx context.Context, req Req) (Resp, error) {
	const op = "bus.Call"

	var zero Resp
	if c == nil || c.Handler == nil {
		return zero, apperr.Wrap(op, apperr.CodeInternal, errors.New("command has no handler"), nil)
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	type result struct {
		resp Resp
		err  error
	}
	done := make(chan result, 1)

	go func() {
		resp, err := c.Handler(ctx, req)
		done <- result{resp: resp, err: err}
	}()

	select {
	case r := <-done:
		return r.resp, r.err
	case <-ctx.Done():
		code, reason := apperr.CodeUnavailable, "command_canceled"
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			code, reason = apperr.CodeTimeout, "command_timeout"
		}

		return zero, apperr.Wrap(op, code, ctx.Err(), map[string]any{
			apperr.MetaCommand: c.Name,
			apperr.MetaReason:  reason,
		})
	}
}
