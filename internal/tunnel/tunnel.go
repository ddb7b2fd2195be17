// Package tunnel implements the outbound relay WebSocket client (spec.md
// §4.13 / §6): it streams event-bus activity to a remote relay and applies
// commands the relay sends back. This is interface-only from the core's
// perspective — the core just emits onto the event bus and the tunnel
// mirrors it; all process control is delegated to a Handler.
package tunnel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/ntars/tars/internal/bus"
	"github.com/ntars/tars/pkg/protocol"
)

const (
	keepaliveInterval = 15 * time.Second
	minBackoff         = time.Second
	maxBackoff         = 30 * time.Second
)

// Handler executes the process-control commands a relay may send (spec.md
// §4.13's start_tars/stop_tars/kill_tars/restart_tars/get_process_status/
// send_task/send_message). Implemented by internal/supervisor.
type Handler interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Kill(ctx context.Context, reason string) error
	Restart(ctx context.Context) error
	Status(ctx context.Context) protocol.ProcessStatus
	SendTask(ctx context.Context, task string)
	SendMessage(ctx context.Context, text string)
}

// Config wires the Tunnel's dependencies.
type Config struct {
	URL     string
	Token   string
	Bus     *bus.Bus
	Handler Handler
}

// Tunnel is a single outbound connection to the relay, reconnecting with
// exponential backoff (capped at 30s) whenever the connection drops.
type Tunnel struct {
	cfg   Config
	subID string

	mu   sync.Mutex
	conn *websocket.Conn
}

// New creates a Tunnel. Call Run to start the connect/reconnect loop.
func New(cfg Config) *Tunnel {
	return &Tunnel{cfg: cfg, subID: "tunnel"}
}

// Run blocks, dialing the relay and reconnecting on disconnect, until ctx
// is cancelled.
func (t *Tunnel) Run(ctx context.Context) {
	backoff := minBackoff
	for {
		if ctx.Err() != nil {
			return
		}

		if err := t.runOnce(ctx); err != nil {
			slog.Warn("tunnel: connection ended, reconnecting", "error", err, "backoff", backoff)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// runOnce dials, mirrors bus events until the connection drops or ctx ends,
// and returns the reason the connection ended.
func (t *Tunnel) runOnce(ctx context.Context) error {
	header := http.Header{}
	if t.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+t.cfg.Token)
	}

	conn, _, err := websocket.Dial(ctx, t.cfg.URL, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.CloseNow()

	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		t.conn = nil
		t.mu.Unlock()
	}()

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if t.cfg.Bus != nil {
		t.subscribeMirror(connCtx)
		defer t.unsubscribeMirror()
	}

	go t.keepalive(connCtx, conn)

	for {
		_, data, err := conn.Read(connCtx)
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		t.handleInbound(connCtx, data)
	}
}

// subscribeMirror forwards every bus event onto the relay as the matching
// outbound frame type (spec.md §6 frame type list).
func (t *Tunnel) subscribeMirror(ctx context.Context) {
	for _, topic := range mirroredTopics {
		topic := topic
		t.cfg.Bus.Subscribe(topic, t.subID, func(evt bus.Event) {
			t.send(ctx, protocol.NewOutboundFrame(topic, evt.Payload))
		})
	}
}

func (t *Tunnel) unsubscribeMirror() {
	for _, topic := range mirroredTopics {
		t.cfg.Bus.Unsubscribe(topic, t.subID)
	}
}

var mirroredTopics = []string{
	bus.TopicTaskReceived,
	bus.TopicToolCalled,
	bus.TopicToolResult,
	bus.TopicStatusChange,
	bus.TopicIMessageReceived,
	bus.TopicIMessageSent,
	bus.TopicParallelTaskStarted,
	bus.TopicParallelTaskCompleted,
	bus.TopicAgentStarted,
	bus.TopicAgentCompleted,
}

func (t *Tunnel) keepalive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.mu.Lock()
			err := conn.Write(ctx, websocket.MessageText, []byte("ping"))
			t.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// send writes frame as JSON text. Write errors are logged; the read loop in
// runOnce is what actually detects the dead connection and triggers
// reconnect.
func (t *Tunnel) send(ctx context.Context, frame protocol.OutboundFrame) {
	t.sendJSON(ctx, frame, frame.Type)
}

func (t *Tunnel) sendJSON(ctx context.Context, v interface{}, label string) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("tunnel: failed to marshal outbound frame", "type", label, "error", err)
		return
	}

	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return
	}

	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		slog.Warn("tunnel: failed to send outbound frame", "type", label, "error", err)
	}
}

// handleInbound decodes one inbound frame and dispatches it to Handler.
func (t *Tunnel) handleInbound(ctx context.Context, data []byte) {
	if string(data) == "pong" || string(data) == "ping" {
		return
	}

	var frame protocol.InboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		slog.Warn("tunnel: malformed inbound frame", "error", err)
		return
	}

	resp := t.dispatch(ctx, frame)
	if resp != nil && frame.CmdID != "" {
		t.sendJSON(ctx, protocol.NewCommandResponse(frame.CmdID, resp), "command_response")
	}
}

func (t *Tunnel) dispatch(ctx context.Context, frame protocol.InboundFrame) interface{} {
	if t.cfg.Handler == nil {
		return map[string]string{"error": "no handler configured"}
	}

	switch frame.Type {
	case protocol.InboundControlCommand:
		return t.dispatchControlCommand(ctx, frame.Data)
	case protocol.InboundSendTask:
		t.cfg.Handler.SendTask(ctx, frame.Data.Task)
		return map[string]string{"status": "accepted"}
	case protocol.InboundKill:
		if err := t.cfg.Handler.Kill(ctx, frame.Data.Text); err != nil {
			return map[string]string{"error": err.Error()}
		}
		return map[string]string{"status": "killed"}
	case protocol.InboundGetStats:
		return t.cfg.Handler.Status(ctx)
	default:
		return nil
	}
}

func (t *Tunnel) dispatchControlCommand(ctx context.Context, data protocol.InboundFrameData) interface{} {
	switch data.Command {
	case protocol.CommandStartTars:
		return errResult(t.cfg.Handler.Start(ctx))
	case protocol.CommandStopTars:
		return errResult(t.cfg.Handler.Stop(ctx))
	case protocol.CommandKillTars:
		return errResult(t.cfg.Handler.Kill(ctx, data.Text))
	case protocol.CommandRestartTars:
		return errResult(t.cfg.Handler.Restart(ctx))
	case protocol.CommandGetProcessStatus:
		return t.cfg.Handler.Status(ctx)
	case protocol.CommandSendTask:
		t.cfg.Handler.SendTask(ctx, data.Task)
		return map[string]string{"status": "accepted"}
	case protocol.CommandSendMessage:
		t.cfg.Handler.SendMessage(ctx, data.Text)
		return map[string]string{"status": "accepted"}
	default:
		return map[string]string{"error": "unknown command: " + data.Command}
	}
}

func errResult(err error) interface{} {
	if err != nil {
		return map[string]string{"error": err.Error()}
	}
	return map[string]string{"status": "ok"}
}
