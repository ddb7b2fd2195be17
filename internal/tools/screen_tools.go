package tools

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/disintegration/imaging"
)

const screenshotMaxWidth = 1280

// ScreenshotTool captures the screen via the OS screenshot utility, downs-
// cales it for vision-model token budgets, and returns it as a base64 PNG
// data URI.
type ScreenshotTool struct{ captureBinary string }

func NewScreenshotTool() *ScreenshotTool { return &ScreenshotTool{captureBinary: "screencapture"} }

func (t *ScreenshotTool) Name() string        { return "screen_screenshot" }
func (t *ScreenshotTool) Description() string { return "Capture a screenshot of the current screen" }
func (t *ScreenshotTool) Parameters() map[string]interface{} {
	return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
}

func (t *ScreenshotTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	tmp, err := os.CreateTemp("", "tars-screenshot-*.png")
	if err != nil {
		return ErrorResult("ERROR: " + err.Error())
	}
	path := tmp.Name()
	tmp.Close()
	defer os.Remove(path)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := exec.CommandContext(ctx, t.captureBinary, "-x", path).Run(); err != nil {
		return ErrorResult("ERROR: screenshot capture failed: " + err.Error())
	}

	img, err := imaging.Open(path)
	if err != nil {
		return ErrorResult("ERROR: decode screenshot: " + err.Error())
	}
	if img.Bounds().Dx() > screenshotMaxWidth {
		img = imaging.Resize(img, screenshotMaxWidth, 0, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return ErrorResult("ERROR: encode screenshot: " + err.Error())
	}

	dataURI := "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
	return NewResult(dataURI)
}

// screenCommandTool runs a single cliclick-style native input command.
type screenCommandTool struct {
	name, description, binary string
	argFn                     func(args map[string]interface{}) ([]string, error)
	params                    map[string]interface{}
}

func (t *screenCommandTool) Name() string                         { return t.name }
func (t *screenCommandTool) Description() string                  { return t.description }
func (t *screenCommandTool) Parameters() map[string]interface{}   { return t.params }
func (t *screenCommandTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	cmdArgs, err := t.argFn(args)
	if err != nil {
		return ErrorResult("ERROR: " + err.Error())
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := exec.CommandContext(ctx, t.binary, cmdArgs...).Run(); err != nil {
		return ErrorResult(fmt.Sprintf("ERROR: %s failed: %v", t.name, err))
	}
	return SilentResult(t.name + " sent")
}

// NewScreenClickTool clicks at absolute screen coordinates via cliclick.
func NewScreenClickTool() Tool {
	return &screenCommandTool{
		name: "screen_click", description: "Click at absolute screen coordinates (x, y)", binary: "cliclick",
		params: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"x": map[string]interface{}{"type": "integer"},
				"y": map[string]interface{}{"type": "integer"},
			},
			"required": []string{"x", "y"},
		},
		argFn: func(args map[string]interface{}) ([]string, error) {
			x, _ := args["x"].(float64)
			y, _ := args["y"].(float64)
			return []string{fmt.Sprintf("c:%d,%d", int(x), int(y))}, nil
		},
	}
}

// NewScreenTypeTool types text via cliclick.
func NewScreenTypeTool() Tool {
	return &screenCommandTool{
		name: "screen_type", description: "Type text at the current keyboard focus", binary: "cliclick",
		params: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{"text": map[string]interface{}{"type": "string"}},
			"required":   []string{"text"},
		},
		argFn: func(args map[string]interface{}) ([]string, error) {
			text, _ := args["text"].(string)
			if text == "" {
				return nil, fmt.Errorf("text is required")
			}
			return []string{"t:" + text}, nil
		},
	}
}

// NewActivateAppTool brings an application to the foreground, used as a
// focus guard before/after native input events (spec.md §4.9).
func NewActivateAppTool() Tool {
	return &screenCommandTool{
		name: "screen_activate_app", description: "Bring an application to the foreground by name", binary: "osascript",
		params: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{"app_name": map[string]interface{}{"type": "string"}},
			"required":   []string{"app_name"},
		},
		argFn: func(args map[string]interface{}) ([]string, error) {
			app, _ := args["app_name"].(string)
			if app == "" {
				return nil, fmt.Errorf("app_name is required")
			}
			return []string{"-e", fmt.Sprintf(`tell application %q to activate`, app)}, nil
		},
	}
}
