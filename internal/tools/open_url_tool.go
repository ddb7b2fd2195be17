package tools

import (
	"context"
	"fmt"
	"os/exec"
	"time"
)

// OpenURLTool opens a URL in the host's default browser via the OS "open"
// launcher.
type OpenURLTool struct{}

func NewOpenURLTool() *OpenURLTool { return &OpenURLTool{} }

func (t *OpenURLTool) Name() string        { return "open_url" }
func (t *OpenURLTool) Description() string { return "Open a URL in the default browser" }
func (t *OpenURLTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{"url": map[string]interface{}{"type": "string"}},
		"required":   []string{"url"},
	}
}

func (t *OpenURLTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	url, _ := args["url"].(string)
	if url == "" {
		return ErrorResult("ERROR: url is required")
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := exec.CommandContext(ctx, "open", url).Run(); err != nil {
		return ErrorResult(fmt.Sprintf("ERROR: failed to open %s: %v", url, err))
	}
	return SilentResult("opened " + url)
}
