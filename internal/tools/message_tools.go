package tools

import (
	"context"
	"fmt"
)

// SendFunc delivers text back to the owner on the given reply source
// (e.g. "external", "dashboard"). Supplied by whatever wires the tool —
// typically the Parallel Task Dispatcher's outbound sink.
type SendFunc func(source, text string)

// SendMessageTool lets an agent reply to the owner mid-task, independent of
// the final done/stuck summary.
type SendMessageTool struct {
	send SendFunc
}

func NewSendMessageTool(send SendFunc) *SendMessageTool { return &SendMessageTool{send: send} }

func (t *SendMessageTool) Name() string        { return "send_message" }
func (t *SendMessageTool) Description() string { return "Send a message back to the owner right now, without ending the task" }
func (t *SendMessageTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{"text": map[string]interface{}{"type": "string"}},
		"required":   []string{"text"},
	}
}

func (t *SendMessageTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	text, _ := args["text"].(string)
	if text == "" {
		return ErrorResult("text is required")
	}
	source := ReplySourceFromCtx(ctx)
	if source == "" {
		source = "external"
	}
	if t.send != nil {
		t.send(source, text)
	}
	return SilentResult(fmt.Sprintf("sent: %s", text))
}
