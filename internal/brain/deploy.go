package brain

import (
	"context"
	"fmt"

	"github.com/ntars/tars/internal/agentloop"
	"github.com/ntars/tars/internal/specialists"
	"github.com/ntars/tars/internal/tools"
)

// deployTool lets the Brain hand a task to one specialist's Agent Loop,
// waiting for its done/stuck terminal and returning the summary as this
// tool's result (spec.md §4.10: "deploy_<agent>(task, context?)").
type deployTool struct {
	name  string
	spec  *specialists.Spec
	brain *Brain
}

func newDeployTool(name string, spec *specialists.Spec, b *Brain) tools.Tool {
	return &deployTool{name: name, spec: spec, brain: b}
}

func (t *deployTool) Name() string { return "deploy_" + t.name }

func (t *deployTool) Description() string {
	return fmt.Sprintf("Delegate a task to the %s specialist (%s) and wait for it to finish", t.name, t.spec.Emoji)
}

func (t *deployTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"task":    map[string]interface{}{"type": "string", "description": "what the specialist should accomplish"},
			"context": map[string]interface{}{"type": "string", "description": "optional extra context the specialist needs"},
		},
		"required": []string{"task"},
	}
}

func (t *deployTool) Execute(ctx context.Context, args map[string]interface{}) *tools.Result {
	task, _ := args["task"].(string)
	if task == "" {
		return tools.ErrorResult("task is required")
	}
	if extra, _ := args["context"].(string); extra != "" {
		task = task + "\n\nAdditional context:\n" + extra
	}

	b := t.brain
	result := t.spec.Deploy(ctx, agentloop.Config{
		Provider: b.cfg.AgentProvider,
		Model:    b.cfg.AgentModel,
		Kill:     b.cfg.Kill,
		OnEvent: func(name string, payload map[string]interface{}) {
			if b.cfg.Bus == nil {
				return
			}
			if payload == nil {
				payload = map[string]interface{}{}
			}
			payload["deployed_by"] = "brain"
			b.cfg.Bus.Emit(name, payload)
		},
	}, task)

	switch {
	case result.Success:
		return tools.UserResult(fmt.Sprintf("[%s done] %s", t.name, result.Content))
	case result.Reason == "kill":
		return tools.ErrorResult(fmt.Sprintf("[%s stopped] %s", t.name, result.Content))
	default:
		return tools.ErrorResult(fmt.Sprintf("[%s stuck: %s] %s", t.name, result.Reason, result.Content))
	}
}
