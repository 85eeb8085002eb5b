package session

import (
	"context"

	"github.com/danmuck/echoframe/internal/protocol/frame"
)

// Replier enqueues a response on the session that delivered the frame.
// It is only valid until HandleFrame returns.
type Replier interface {
	Reply(cmd frame.CommandID, payload []byte) error
}

// Handler receives every complete frame of a session in wire order, on the
// session loop. Returning an error closes the session.
type Handler interface {
	HandleFrame(ctx context.Context, f frame.Frame, r Replier) error
}

type HandlerFunc func(ctx context.Context, f frame.Frame, r Replier) error

func (fn HandlerFunc) HandleFrame(ctx context.Context, f frame.Frame, r Replier) error {
	return fn(ctx, f, r)
}

// EchoHandler answers each frame with the same command and payload.
type EchoHandler struct{}

func (EchoHandler) HandleFrame(_ context.Context, f frame.Frame, r Replier) error {
	return r.Reply(f.Command(), f.Payload)
}
