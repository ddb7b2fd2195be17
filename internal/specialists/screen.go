package specialists

import (
	"context"
	"fmt"

	"github.com/ntars/tars/internal/tools"
)

// NewScreenSpec builds the Screen specialist: pure visual control of the
// host via screenshots plus native click/type/focus events, for apps that
// have no DOM to drive through the Browser specialist (spec.md §4.9).
func NewScreenSpec(targetApp string) *Spec {
	reg := tools.NewRegistry()
	reg.Register(tools.NewDoneTool())
	reg.Register(tools.NewStuckTool())
	reg.Register(tools.NewScreenshotTool())
	reg.Register(tools.NewScreenClickTool())
	reg.Register(tools.NewScreenTypeTool())
	reg.Register(tools.NewActivateAppTool())

	spec := &Spec{
		Name:  "screen",
		Emoji: "📺",
		SystemPrompt: "You are the Screen specialist. You see the screen only through screenshots and " +
			"act only through native clicks and keyboard input — there is no DOM and no selectors. " +
			"Take a screenshot before acting and after any click that might have changed the screen. " +
			"Call done with a summary, or stuck if you cannot identify what to click.",
		Tools:    reg,
		MaxSteps: 25,
	}

	if targetApp != "" {
		activate := &activateOnStart{binary: "osascript", app: targetApp}
		spec.OnStart = activate.run
		spec.NavigationRefresh = func(toolName string) (string, bool) {
			if toolName == "screen_click" {
				return "focus may have shifted to another app; re-activate " + targetApp + " if needed, then take a fresh screenshot", true
			}
			return "", false
		}
	}

	return spec
}

type activateOnStart struct {
	binary, app string
}

func (a *activateOnStart) run(ctx context.Context) error {
	t := tools.NewActivateAppTool()
	res := t.Execute(ctx, map[string]interface{}{"app_name": a.app})
	if res.IsError {
		return fmt.Errorf("%s", res.ForLLM)
	}
	return nil
}
