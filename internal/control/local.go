package control

import (
	"context"
	"fmt"

	"github.com/audiolibrelab/soundboard/internal/capture"
)

type request struct {
	cmd   capture.Command
	reply chan capture.Response
}

// Local is an in-process command channel. One goroutine (Run) applies every
// request, so commands take effect in arrival order.
type Local struct {
	handler  Handler
	requests chan request
	done     chan struct{}
}

// NewLocal creates a channel in front of handler. Run must be started to serve it.
func NewLocal(handler Handler) *Local {
	return &Local{
		handler:  handler,
		requests: make(chan request),
		done:     make(chan struct{}),
	}
}

// Run serves requests until ctx is cancelled
func (l *Local) Run(ctx context.Context) {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-l.requests:
			req.reply <- l.handler.Handle(req.cmd)
		}
	}
}

// Send implements Sender
func (l *Local) Send(ctx context.Context, cmd capture.Command) (capture.Response, error) {
	req := request{cmd: cmd, reply: make(chan capture.Response, 1)}

	select {
	case l.requests <- req:
	case <-l.done:
		return capture.Response{}, fmt.Errorf("%w: local channel closed", ErrUnreachable)
	case <-ctx.Done():
		return capture.Response{}, fmt.Errorf("%w: %v", ErrUnreachable, ctx.Err())
	}

	// Once accepted the command is applied, so wait for its response
	return <-req.reply, nil
}
