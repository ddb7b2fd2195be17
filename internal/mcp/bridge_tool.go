package mcp

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ntars/tars/internal/tools"
)

// bridgedTool adapts one MCP-advertised tool to the tools.Tool interface.
// It refuses calls while its server is marked unhealthy by the health
// loop rather than letting a dead connection hang the agent's step.
type bridgedTool struct {
	server    string
	def       mcp.Tool
	client    *client.Client
	connected *atomic.Bool
}

func (b *bridgedTool) Name() string        { return b.def.Name }
func (b *bridgedTool) Description() string { return b.def.Description }

func (b *bridgedTool) Parameters() map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": b.def.InputSchema.Properties,
	}
	if len(b.def.InputSchema.Required) > 0 {
		schema["required"] = b.def.InputSchema.Required
	}
	return schema
}

func (b *bridgedTool) Execute(ctx context.Context, args map[string]interface{}) *tools.Result {
	if b.connected != nil && !b.connected.Load() {
		return tools.ErrorResult(fmt.Sprintf("mcp server %q is currently unreachable, retrying in the background", b.server))
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = b.def.Name
	req.Params.Arguments = args

	res, err := b.client.CallTool(ctx, req)
	if err != nil {
		return tools.ErrorResult(fmt.Sprintf("mcp tool %s failed: %s", b.def.Name, err)).WithError(err)
	}
	if res.IsError {
		return tools.ErrorResult(contentText(res.Content))
	}
	return tools.NewResult(contentText(res.Content))
}

func contentText(content []mcp.Content) string {
	var out string
	for _, c := range content {
		if tc, ok := c.(mcp.TextContent); ok {
			if out != "" {
				out += "\n"
			}
			out += tc.Text
		}
	}
	return out
}
