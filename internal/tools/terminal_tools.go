package tools

import "context"

// DoneTool signals that an agent has completed its task. The generic agent
// loop recognizes this tool by name and ends the loop with a Done outcome —
// Execute is never actually invoked by the loop, but it's implemented so the
// tool can be unit-tested and so Registry.Execute never panics if called
// directly.
type DoneTool struct{}

func NewDoneTool() *DoneTool { return &DoneTool{} }

func (t *DoneTool) Name() string        { return "done" }
func (t *DoneTool) Description() string { return "Call this when the task is complete, with a summary of what was accomplished" }
func (t *DoneTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"summary": map[string]interface{}{"type": "string", "description": "What was accomplished"},
		},
		"required": []string{"summary"},
	}
}

func (t *DoneTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	summary, _ := args["summary"].(string)
	return UserResult(summary)
}

// StuckTool signals that an agent cannot make further progress on its own.
// Recognized by name by the generic agent loop, same as DoneTool.
type StuckTool struct{}

func NewStuckTool() *StuckTool { return &StuckTool{} }

func (t *StuckTool) Name() string        { return "stuck" }
func (t *StuckTool) Description() string { return "Call this when you cannot make further progress and need help or a different approach" }
func (t *StuckTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"reason": map[string]interface{}{"type": "string", "description": "Why you're stuck"},
		},
		"required": []string{"reason"},
	}
}

func (t *StuckTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	reason, _ := args["reason"].(string)
	return UserResult(reason)
}
