package brain

import (
	"context"
	"fmt"

	"github.com/ntars/tars/internal/tools"
)

// switchThreadTool lets the Brain park the current conversation under a
// named thread and resume (or start) another one, so unrelated owner
// requests don't bleed into each other's history (spec.md §4.10's "named
// threads" note).
type switchThreadTool struct {
	brain *Brain
}

func newSwitchThreadTool(b *Brain) tools.Tool {
	return &switchThreadTool{brain: b}
}

func (t *switchThreadTool) Name() string { return "switch_thread" }

func (t *switchThreadTool) Description() string {
	return "Switch the active conversation thread, e.g. when the owner starts talking about something unrelated to the current task"
}

func (t *switchThreadTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"thread": map[string]interface{}{"type": "string", "description": "short thread name, e.g. \"trip-planning\""},
		},
		"required": []string{"thread"},
	}
}

func (t *switchThreadTool) Execute(_ context.Context, args map[string]interface{}) *tools.Result {
	name, _ := args["thread"].(string)
	if name == "" {
		return tools.ErrorResult("thread is required")
	}

	b := t.brain
	b.mu.Lock()
	b.thread = name
	history := b.threads[name]
	b.mu.Unlock()

	if len(history) == 0 {
		return tools.SilentResult(fmt.Sprintf("switched to new thread %q", name))
	}
	return tools.SilentResult(fmt.Sprintf("switched to thread %q (%d prior turns)", name, len(history)/2))
}
