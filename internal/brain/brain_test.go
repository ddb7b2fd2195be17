package brain

import (
	"context"
	"testing"

	"github.com/ntars/tars/internal/bus"
	"github.com/ntars/tars/internal/comms"
	"github.com/ntars/tars/internal/killswitch"
	"github.com/ntars/tars/internal/memory"
	"github.com/ntars/tars/internal/providers"
	"github.com/ntars/tars/internal/specialists"
	"github.com/ntars/tars/internal/streamparser"
	"github.com/ntars/tars/internal/tools"
)

// scriptedProvider returns one ChatResponse per call, repeating the last
// entry once it runs past the end of the script.
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

func newTestBrain(t *testing.T, brainProvider, agentProvider providers.Provider, specs map[string]*specialists.Spec, send tools.SendFunc) *Brain {
	t.Helper()
	mem, err := memory.New(t.TempDir())
	if err != nil {
		t.Fatalf("memory.New: %v", err)
	}

	firstParty := tools.NewRegistry()
	firstParty.Register(tools.NewSaveMemoryTool(mem))

	return New(Config{
		BrainProvider:   brainProvider,
		BrainModel:      "brain-model",
		AgentProvider:   agentProvider,
		AgentModel:      "agent-model",
		MaxSteps:        5,
		Memory:          mem,
		Comms:           comms.New(),
		Bus:             bus.New(),
		Kill:            killswitch.New(),
		Specialists:     specs,
		FirstPartyTools: firstParty,
		Send:            send,
	})
}

func singleMessageBatch(text string) streamparser.Batch {
	return streamparser.Batch{BatchType: streamparser.BatchSingle, MergedText: text, Source: "external"}
}

func TestProcessCallsDoneDirectly(t *testing.T) {
	provider := &scriptedProvider{script: []providers.ChatResponse{
		{ToolCalls: []providers.ToolCall{{ID: "1", Name: "done", Arguments: map[string]interface{}{"summary": "handled it"}}}},
	}}
	b := newTestBrain(t, provider, provider, nil, nil)

	res := b.Process(context.Background(), "task_1", singleMessageBatch("what time is it"), "external")
	if !res.Success || res.Content != "handled it" {
		t.Fatalf("expected success with summary, got %+v", res)
	}
	if b.SentReply() {
		t.Fatal("expected SentReply false: no send_message call was made")
	}
}

func TestProcessRoutesSendMessageToReplySource(t *testing.T) {
	provider := &scriptedProvider{script: []providers.ChatResponse{
		{ToolCalls: []providers.ToolCall{{ID: "1", Name: "send_message", Arguments: map[string]interface{}{"text": "on it"}}}},
		{ToolCalls: []providers.ToolCall{{ID: "2", Name: "done", Arguments: map[string]interface{}{"summary": "replied"}}}},
	}}

	var gotSource, gotText string
	send := func(source, text string) { gotSource, gotText = source, text }
	b := newTestBrain(t, provider, provider, nil, send)

	res := b.Process(context.Background(), "task_2", singleMessageBatch("ping me"), "imessage:+1555")
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if gotSource != "imessage:+1555" || gotText != "on it" {
		t.Fatalf("expected send routed to reply source, got source=%q text=%q", gotSource, gotText)
	}
	if !b.SentReply() {
		t.Fatal("expected SentReply true after a send_message call")
	}
}

func TestProcessDeploysSpecialistAndFoldsResultBack(t *testing.T) {
	brainProvider := &scriptedProvider{script: []providers.ChatResponse{
		{ToolCalls: []providers.ToolCall{{ID: "1", Name: "deploy_research", Arguments: map[string]interface{}{"task": "find the thing"}}}},
		{ToolCalls: []providers.ToolCall{{ID: "2", Name: "done", Arguments: map[string]interface{}{"summary": "found it via research"}}}},
	}}
	agentProvider := &scriptedProvider{script: []providers.ChatResponse{
		{ToolCalls: []providers.ToolCall{{ID: "1", Name: "done", Arguments: map[string]interface{}{"summary": "here's the thing"}}}},
	}}

	specTools := tools.NewRegistry()
	specTools.Register(tools.NewDoneTool())
	specTools.Register(tools.NewStuckTool())
	research := &specialists.Spec{Name: "research", Emoji: "🔎", SystemPrompt: "research stuff", Tools: specTools, MaxSteps: 3}

	b := newTestBrain(t, brainProvider, agentProvider, map[string]*specialists.Spec{"research": research}, nil)

	res := b.Process(context.Background(), "task_3", singleMessageBatch("find the thing"), "external")
	if !res.Success || res.Content != "found it via research" {
		t.Fatalf("expected brain to relay success after specialist deploy, got %+v", res)
	}
}

func TestProcessStopsOnKill(t *testing.T) {
	provider := &scriptedProvider{script: []providers.ChatResponse{
		{ToolCalls: []providers.ToolCall{{ID: "1", Name: "save_memory", Arguments: map[string]interface{}{"category": "note", "key": "x", "value": "y"}}}},
	}}
	b := newTestBrain(t, provider, provider, nil, nil)
	b.cfg.Kill.Set("owner said stop")

	res := b.Process(context.Background(), "task_4", singleMessageBatch("do a thing"), "external")
	if !res.Stuck || res.Reason != "kill" {
		t.Fatalf("expected kill terminal, got %+v", res)
	}
}

func TestSwitchThreadChangesCurrentThread(t *testing.T) {
	provider := &scriptedProvider{script: []providers.ChatResponse{
		{ToolCalls: []providers.ToolCall{{ID: "1", Name: "done", Arguments: map[string]interface{}{"summary": "ok"}}}},
	}}
	b := newTestBrain(t, provider, provider, nil, nil)

	b.Process(context.Background(), "task_5", singleMessageBatch("remember this"), "external")
	if b.currentThread() != "general" {
		t.Fatalf("expected default thread \"general\", got %q", b.currentThread())
	}

	tool := newSwitchThreadTool(b)
	res := tool.Execute(context.Background(), map[string]interface{}{"thread": "trip-planning"})
	if res.IsError {
		t.Fatalf("unexpected error switching thread: %s", res.ForLLM)
	}
	if b.currentThread() != "trip-planning" {
		t.Fatalf("expected thread switched to trip-planning, got %q", b.currentThread())
	}
}
