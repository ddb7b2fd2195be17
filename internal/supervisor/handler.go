package supervisor

import (
	"context"

	"github.com/ntars/tars/pkg/protocol"
)

// RelayHandler adapts a Supervisor (process lifecycle) plus a pair of
// in-process push functions (task/message delivery into the Source
// Multiplexer) into the tunnel.Handler interface, so a single relay
// connection can both control the process and feed it work.
type RelayHandler struct {
	Supervisor  *Supervisor
	PushTask    func(text string)
	PushMessage func(text string)
}

func (h *RelayHandler) Start(ctx context.Context) error               { return h.Supervisor.Start(ctx) }
func (h *RelayHandler) Stop(ctx context.Context) error                { return h.Supervisor.Stop(ctx) }
func (h *RelayHandler) Kill(ctx context.Context, reason string) error { return h.Supervisor.Kill(ctx, reason) }
func (h *RelayHandler) Restart(ctx context.Context) error             { return h.Supervisor.Restart(ctx) }

func (h *RelayHandler) Status(ctx context.Context) protocol.ProcessStatus {
	return h.Supervisor.Status(ctx)
}

func (h *RelayHandler) SendTask(ctx context.Context, task string) {
	if h.PushTask != nil {
		h.PushTask(task)
	}
}

func (h *RelayHandler) SendMessage(ctx context.Context, text string) {
	if h.PushMessage != nil {
		h.PushMessage(text)
	}
}
