package tools

import (
	"context"
	"testing"
)

type echoTool struct{}

func (echoTool) Name() string        { return "echo" }
func (echoTool) Description() string { return "echoes input" }
func (echoTool) Parameters() map[string]interface{} {
	return map[string]interface{}{"type": "object"}
}
func (echoTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	return NewResult("echo")
}

func TestRegistryExecuteUnknownTool(t *testing.T) {
	r := NewRegistry()
	res := r.Execute(context.Background(), "missing", nil)
	if !res.IsError {
		t.Fatal("expected error result for unknown tool")
	}
}

func TestRegistryRegisterAndExecute(t *testing.T) {
	r := NewRegistry()
	r.Register(echoTool{})

	res := r.Execute(context.Background(), "echo", nil)
	if res.IsError || res.ForLLM != "echo" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestRegistryDefinitionsSorted(t *testing.T) {
	r := NewRegistry()
	r.Register(NewDoneTool())
	r.Register(echoTool{})
	r.Register(NewStuckTool())

	defs := r.Definitions()
	if len(defs) != 3 {
		t.Fatalf("expected 3 defs, got %d", len(defs))
	}
	if defs[0].Function.Name != "done" || defs[1].Function.Name != "echo" || defs[2].Function.Name != "stuck" {
		t.Fatalf("expected sorted order, got %v", defs)
	}
}

func TestExecToolDeniesDestructiveCommand(t *testing.T) {
	tool := NewExecTool(t.TempDir())
	res := tool.Execute(context.Background(), map[string]interface{}{"command": "rm -rf /"})
	if !res.IsError {
		t.Fatal("expected destructive command to be denied")
	}
}
