package tunnel

import (
	"context"
	"testing"

	"github.com/ntars/tars/pkg/protocol"
)

type fakeHandler struct {
	started, stopped, restarted bool
	killReason                  string
	sentTask, sentMessage       string
	status                      protocol.ProcessStatus
}

func (h *fakeHandler) Start(ctx context.Context) error    { h.started = true; return nil }
func (h *fakeHandler) Stop(ctx context.Context) error      { h.stopped = true; return nil }
func (h *fakeHandler) Kill(ctx context.Context, reason string) error {
	h.killReason = reason
	return nil
}
func (h *fakeHandler) Restart(ctx context.Context) error { h.restarted = true; return nil }
func (h *fakeHandler) Status(ctx context.Context) protocol.ProcessStatus { return h.status }
func (h *fakeHandler) SendTask(ctx context.Context, task string)        { h.sentTask = task }
func (h *fakeHandler) SendMessage(ctx context.Context, text string)     { h.sentMessage = text }

func TestDispatchControlCommandStartStopKillRestart(t *testing.T) {
	h := &fakeHandler{}
	tn := New(Config{Handler: h})

	tn.dispatch(context.Background(), protocol.InboundFrame{Type: protocol.InboundControlCommand, Data: protocol.InboundFrameData{Command: protocol.CommandStartTars}})
	if !h.started {
		t.Fatal("expected Start to be called")
	}

	tn.dispatch(context.Background(), protocol.InboundFrame{Type: protocol.InboundControlCommand, Data: protocol.InboundFrameData{Command: protocol.CommandKillTars, Text: "owner requested"}})
	if h.killReason != "owner requested" {
		t.Fatalf("expected Kill called with reason, got %q", h.killReason)
	}

	tn.dispatch(context.Background(), protocol.InboundFrame{Type: protocol.InboundControlCommand, Data: protocol.InboundFrameData{Command: protocol.CommandRestartTars}})
	if !h.restarted {
		t.Fatal("expected Restart to be called")
	}
}

func TestDispatchSendTaskAndMessage(t *testing.T) {
	h := &fakeHandler{}
	tn := New(Config{Handler: h})

	tn.dispatch(context.Background(), protocol.InboundFrame{Type: protocol.InboundSendTask, Data: protocol.InboundFrameData{Task: "check the weather"}})
	if h.sentTask != "check the weather" {
		t.Fatalf("expected SendTask called, got %q", h.sentTask)
	}

	tn.dispatch(context.Background(), protocol.InboundFrame{Type: protocol.InboundControlCommand, Data: protocol.InboundFrameData{Command: protocol.CommandSendMessage, Text: "hello"}})
	if h.sentMessage != "hello" {
		t.Fatalf("expected SendMessage called, got %q", h.sentMessage)
	}
}

func TestDispatchGetStatsReturnsStatus(t *testing.T) {
	h := &fakeHandler{status: protocol.ProcessStatus{Running: true, PID: 42}}
	tn := New(Config{Handler: h})

	resp := tn.dispatch(context.Background(), protocol.InboundFrame{Type: protocol.InboundGetStats})
	status, ok := resp.(protocol.ProcessStatus)
	if !ok || !status.Running || status.PID != 42 {
		t.Fatalf("expected process status echoed back, got %#v", resp)
	}
}

func TestDispatchUnknownCommandReturnsError(t *testing.T) {
	h := &fakeHandler{}
	tn := New(Config{Handler: h})

	resp := tn.dispatch(context.Background(), protocol.InboundFrame{Type: protocol.InboundControlCommand, Data: protocol.InboundFrameData{Command: "do_a_backflip"}})
	m, ok := resp.(map[string]string)
	if !ok || m["error"] == "" {
		t.Fatalf("expected an error map for an unknown command, got %#v", resp)
	}
}

func TestDispatchWithoutHandlerReturnsError(t *testing.T) {
	tn := New(Config{})
	resp := tn.dispatch(context.Background(), protocol.InboundFrame{Type: protocol.InboundGetStats})
	m, ok := resp.(map[string]string)
	if !ok || m["error"] == "" {
		t.Fatalf("expected an error map when no handler is configured, got %#v", resp)
	}
}
