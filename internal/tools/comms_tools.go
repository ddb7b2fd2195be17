package tools

import (
	"context"
	"fmt"

	"github.com/ntars/tars/internal/comms"
)

// WriteScratchpadTool shares typed data with downstream specialists.
type WriteScratchpadTool struct {
	hub        *comms.Hub
	agentName  string
}

func NewWriteScratchpadTool(hub *comms.Hub, agentName string) *WriteScratchpadTool {
	return &WriteScratchpadTool{hub: hub, agentName: agentName}
}

func (t *WriteScratchpadTool) Name() string { return "write_scratchpad" }
func (t *WriteScratchpadTool) Description() string {
	return "Share structured data (selectors, URLs, facts, credentials) with other agents via the shared scratchpad"
}
func (t *WriteScratchpadTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"key":       map[string]interface{}{"type": "string"},
			"value":     map[string]interface{}{"type": "string"},
			"data_type": map[string]interface{}{"type": "string", "description": "selectors, urls, facts, credentials, code, or error"},
		},
		"required": []string{"key", "value", "data_type"},
	}
}

func (t *WriteScratchpadTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	key, _ := args["key"].(string)
	value, _ := args["value"].(string)
	dataType, _ := args["data_type"].(string)
	if key == "" || dataType == "" {
		return ErrorResult("key and data_type are required")
	}
	t.hub.WriteScratchpad(key, value, dataType, t.agentName)
	return SilentResult(fmt.Sprintf("Shared %q on the scratchpad", key))
}

// ReadScratchpadTool reads a value previously shared on the scratchpad.
type ReadScratchpadTool struct{ hub *comms.Hub }

func NewReadScratchpadTool(hub *comms.Hub) *ReadScratchpadTool { return &ReadScratchpadTool{hub: hub} }

func (t *ReadScratchpadTool) Name() string        { return "read_scratchpad" }
func (t *ReadScratchpadTool) Description() string { return "Read a value previously shared on the scratchpad by key" }
func (t *ReadScratchpadTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{"key": map[string]interface{}{"type": "string"}},
		"required":   []string{"key"},
	}
}

func (t *ReadScratchpadTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	key, _ := args["key"].(string)
	if key == "" {
		return ErrorResult("key is required")
	}
	value, ok := t.hub.ReadScratchpad(key)
	if !ok {
		return NewResult(fmt.Sprintf("No scratchpad entry for %q", key))
	}
	return NewResult(fmt.Sprintf("%v", value))
}
