package dispatcher

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ntars/tars/internal/brain"
	"github.com/ntars/tars/internal/bus"
	"github.com/ntars/tars/internal/comms"
	"github.com/ntars/tars/internal/killswitch"
	"github.com/ntars/tars/internal/memory"
	"github.com/ntars/tars/internal/providers"
	"github.com/ntars/tars/internal/streamparser"
	"github.com/ntars/tars/internal/tools"
)

type scriptedProvider struct {
	script []providers.ChatResponse
	calls  int
}

func (p *scriptedProvider) Chat(ctx context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	i := p.calls
	if i >= len(p.script) {
		i = len(p.script) - 1
	}
	p.calls++
	resp := p.script[i]
	return &resp, nil
}

func (p *scriptedProvider) ChatStream(ctx context.Context, req providers.ChatRequest, onChunk func(providers.StreamChunk)) (*providers.ChatResponse, error) {
	return p.Chat(ctx, req)
}
func (p *scriptedProvider) DefaultModel() string { return "test-model" }
func (p *scriptedProvider) Name() string         { return "test" }

func newBrainFactory(t *testing.T, script []providers.ChatResponse) func() *brain.Brain {
	t.Helper()
	b := bus.New()
	kill := killswitch.New()
	mem, err := memory.New(t.TempDir())
	if err != nil {
		t.Fatalf("memory.New: %v", err)
	}
	firstParty := tools.NewRegistry()
	firstParty.Register(tools.NewSaveMemoryTool(mem))

	return func() *brain.Brain {
		provider := &scriptedProvider{script: script}
		return brain.New(brain.Config{
			BrainProvider: provider, BrainModel: "m",
			AgentProvider: provider, AgentModel: "m",
			MaxSteps: 5, Memory: mem, Comms: comms.New(), Bus: b, Kill: kill,
			FirstPartyTools: firstParty,
		})
	}
}

type fakeTracker struct {
	mu       chan struct{}
	observed []string
}

func newFakeTracker() *fakeTracker { return &fakeTracker{mu: make(chan struct{}, 16)} }
func (f *fakeTracker) Observe(taskID, source, content string) {
	f.observed = append(f.observed, taskID+":"+content)
	f.mu <- struct{}{}
}

func TestDispatchRunsTaskAndReportsCompletion(t *testing.T) {
	factory := newBrainFactory(t, []providers.ChatResponse{
		{ToolCalls: []providers.ToolCall{{ID: "1", Name: "done", Arguments: map[string]interface{}{"summary": "all good"}}}},
	})

	var sent []string
	d := New(Config{
		MaxParallel: 2, BrainFactory: factory,
		Send: func(source, text string) { sent = append(sent, source+":"+text) },
	})

	d.Dispatch(context.Background(), streamparser.Batch{BatchType: streamparser.BatchSingle, MergedText: "do something", Source: "external"})
	d.Wait()

	if len(sent) != 1 || sent[0] != "external:all good" {
		t.Fatalf("expected one safety-net reply, got %v", sent)
	}
}

func TestDispatchSkipsSafetyNetWhenBrainAlreadyReplied(t *testing.T) {
	factory := newBrainFactory(t, []providers.ChatResponse{
		{ToolCalls: []providers.ToolCall{{ID: "1", Name: "send_message", Arguments: map[string]interface{}{"text": "here you go"}}}},
		{ToolCalls: []providers.ToolCall{{ID: "2", Name: "done", Arguments: map[string]interface{}{"summary": "sent it"}}}},
	})

	var sent []string
	d := New(Config{
		MaxParallel: 1, BrainFactory: factory,
		Send: func(source, text string) { sent = append(sent, source+":"+text) },
	})

	d.Dispatch(context.Background(), streamparser.Batch{BatchType: streamparser.BatchSingle, MergedText: "ping me", Source: "external"})
	d.Wait()

	if len(sent) != 1 || sent[0] != "external:here you go" {
		t.Fatalf("expected only the mid-loop reply, no safety net duplicate, got %v", sent)
	}
}

func TestDispatchBlocksUntilSlotFree(t *testing.T) {
	factory := newBrainFactory(t, []providers.ChatResponse{
		{ToolCalls: []providers.ToolCall{{ID: "1", Name: "done", Arguments: map[string]interface{}{"summary": "ok"}}}},
	})
	d := New(Config{MaxParallel: 1, BrainFactory: factory, Send: func(string, string) {}})

	d.slots <- struct{}{} // occupy the only slot directly, simulating an in-flight task

	returned := make(chan struct{})
	go func() {
		d.Dispatch(context.Background(), streamparser.Batch{BatchType: streamparser.BatchSingle, MergedText: "queued", Source: "external"})
		close(returned)
	}()

	select {
	case <-returned:
		t.Fatal("expected Dispatch to block while the only slot is held")
	case <-time.After(50 * time.Millisecond):
	}

	<-d.slots // free the slot
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("expected Dispatch to proceed once a slot freed up")
	}
	d.Wait()
}

func TestDispatchCallsSelfHealOnErrorSentinel(t *testing.T) {
	factory := newBrainFactory(t, []providers.ChatResponse{
		{ToolCalls: []providers.ToolCall{{ID: "1", Name: "done", Arguments: map[string]interface{}{"summary": "❌ could not reach the API"}}}},
	})

	tracker := newFakeTracker()
	d := New(Config{
		MaxParallel: 1, BrainFactory: factory,
		Send:     func(string, string) {},
		SelfHeal: tracker,
	})

	d.Dispatch(context.Background(), streamparser.Batch{BatchType: streamparser.BatchSingle, MergedText: "call the api", Source: "external"})
	d.Wait()

	select {
	case <-tracker.mu:
	case <-time.After(time.Second):
		t.Fatal("expected self-heal Observe to be called")
	}
	if len(tracker.observed) != 1 || !strings.Contains(tracker.observed[0], "could not reach the API") {
		t.Fatalf("unexpected self-heal observation: %v", tracker.observed)
	}
}
