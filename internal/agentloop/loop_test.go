package agentloop

import (
	"context"
	"testing"

	"github.com/ntars/tars/internal/killswitch"
	"github.com/ntars/tars/internal/providers"
	"github.com/ntars/tars/internal/tools"
)

// scriptedProvider returns one ChatResponse per call, repeating the last
// entry if it runs past the end of the script (so a step-budget test doesn't
// need len(script) == maxSteps entries).
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

type pingTool struct{}

func (pingTool) Name() string        { return "ping" }
func (pingTool) Description() string { return "ping" }
func (pingTool) Parameters() map[string]interface{} {
	return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
}
func (pingTool) Execute(ctx context.Context, args map[string]interface{}) *tools.Result {
	return tools.SilentResult("pong")
}

func newRegistry() *tools.Registry {
	r := tools.NewRegistry()
	r.Register(tools.NewDoneTool())
	r.Register(tools.NewStuckTool())
	r.Register(pingTool{})
	return r
}

func TestRunSucceedsOnDone(t *testing.T) {
	provider := &scriptedProvider{script: []providers.ChatResponse{
		{ToolCalls: []providers.ToolCall{{ID: "1", Name: "done", Arguments: map[string]interface{}{"summary": "all set"}}}},
	}}
	l := New(Config{
		AgentName: "test", Provider: provider, Tools: newRegistry(), MaxSteps: 5, Kill: killswitch.New(),
	})
	res := l.Run(context.Background(), "do the thing")
	if !res.Success || res.Content != "all set" {
		t.Fatalf("expected success with summary, got %+v", res)
	}
}

func TestRunExhaustsStepBudget(t *testing.T) {
	provider := &scriptedProvider{script: []providers.ChatResponse{
		{ToolCalls: []providers.ToolCall{{ID: "1", Name: "ping"}}},
	}}
	l := New(Config{
		AgentName: "test", Provider: provider, Tools: newRegistry(), MaxSteps: 3, Kill: killswitch.New(),
	})
	res := l.Run(context.Background(), "loop forever")
	if !res.Stuck || res.Reason != "hit max steps" || res.Steps != 3 {
		t.Fatalf("expected step-budget exhaustion, got %+v", res)
	}
}

func TestRunStopsOnKillBetweenSteps(t *testing.T) {
	provider := &scriptedProvider{script: []providers.ChatResponse{
		{ToolCalls: []providers.ToolCall{{ID: "1", Name: "ping"}}},
	}}
	kill := killswitch.New()
	kill.Set("owner said stop")
	l := New(Config{
		AgentName: "test", Provider: provider, Tools: newRegistry(), MaxSteps: 5, Kill: kill,
	})
	res := l.Run(context.Background(), "anything")
	if !res.Stuck || res.Reason != "kill" {
		t.Fatalf("expected kill terminal, got %+v", res)
	}
}

func TestLoopDetectorFiresAtThreshold(t *testing.T) {
	args := map[string]interface{}{"x": 1}
	d := newLoopDetector()
	var lastCount int
	for i := 0; i < loopThreshold; i++ {
		_, lastCount = d.record("ping", args)
	}
	if !isLooping(lastCount) {
		t.Fatalf("expected loop detected at threshold, got count %d", lastCount)
	}
}

func TestRunInjectsLoopWarningAtThresholdCall(t *testing.T) {
	resp := providers.ChatResponse{ToolCalls: []providers.ToolCall{{ID: "1", Name: "ping", Arguments: map[string]interface{}{"a": "b"}}}}
	provider := &scriptedProvider{script: []providers.ChatResponse{resp}}
	l := New(Config{
		AgentName: "test", Provider: provider, Tools: newRegistry(), MaxSteps: loopThreshold, Kill: killswitch.New(),
	})
	l.Run(context.Background(), "repeat")

	found := false
	for _, m := range l.history {
		if m.Role == "tool" && len(m.Content) > 0 && contains(m.Content, "looping") {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a loop warning to be injected into a tool_result by the threshold-th repeated call")
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
