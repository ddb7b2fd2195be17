package specialists

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"

	"github.com/ntars/tars/internal/tools"
)

// driverMu serializes every low-level browser command across all Tasks
// (spec.md §5: "the external browser/driver resource is serialized by a
// global mutex so parallel Tasks do not interleave low-level driver
// commands").
var driverMu sync.Mutex

// browserSession lazily launches a headless Chromium instance on first use
// and keeps a single active page for the lifetime of one deployment.
type browserSession struct {
	browser *rod.Browser
	page    *rod.Page
}

func (s *browserSession) ensure() error {
	if s.browser != nil {
		return nil
	}
	url, err := launcher.New().Headless(true).Launch()
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}
	s.browser = rod.New().ControlURL(url)
	if err := s.browser.Connect(); err != nil {
		return fmt.Errorf("connect browser: %w", err)
	}
	s.page, err = s.browser.Page(rod.PageInfo{})
	return err
}

func (s *browserSession) close() {
	if s.browser != nil {
		_ = s.browser.Close()
	}
}

type browserGotoTool struct{ sess *browserSession }

func (t *browserGotoTool) Name() string        { return "browser_goto" }
func (t *browserGotoTool) Description() string { return "Navigate the browser to a URL" }
func (t *browserGotoTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{"url": map[string]interface{}{"type": "string"}},
		"required":   []string{"url"},
	}
}
func (t *browserGotoTool) Execute(ctx context.Context, args map[string]interface{}) *tools.Result {
	driverMu.Lock()
	defer driverMu.Unlock()

	url, _ := args["url"].(string)
	if url == "" {
		return tools.ErrorResult("ERROR: url is required")
	}
	if err := t.sess.page.Navigate(url); err != nil {
		return tools.ErrorResult("ERROR: navigate failed: " + err.Error())
	}
	if err := t.sess.page.WaitLoad(); err != nil {
		return tools.ErrorResult("ERROR: page did not finish loading: " + err.Error())
	}
	return tools.NewResult("navigated to " + url)
}

type browserClickTool struct{ sess *browserSession }

func (t *browserClickTool) Name() string        { return "browser_click" }
func (t *browserClickTool) Description() string { return "Click the first element matching a CSS selector" }
func (t *browserClickTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{"selector": map[string]interface{}{"type": "string"}},
		"required":   []string{"selector"},
	}
}
func (t *browserClickTool) Execute(ctx context.Context, args map[string]interface{}) *tools.Result {
	driverMu.Lock()
	defer driverMu.Unlock()

	selector, _ := args["selector"].(string)
	el, err := t.sess.page.Element(selector)
	if err != nil {
		return tools.ErrorResult("ERROR: element not found: " + err.Error())
	}
	if err := el.Click("left", 1); err != nil {
		return tools.ErrorResult("ERROR: click failed: " + err.Error())
	}
	return tools.NewResult("clicked " + selector)
}

type browserTypeTool struct{ sess *browserSession }

func (t *browserTypeTool) Name() string        { return "browser_type" }
func (t *browserTypeTool) Description() string { return "Type text into the first element matching a CSS selector" }
func (t *browserTypeTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"selector": map[string]interface{}{"type": "string"},
			"text":     map[string]interface{}{"type": "string"},
		},
		"required": []string{"selector", "text"},
	}
}
func (t *browserTypeTool) Execute(ctx context.Context, args map[string]interface{}) *tools.Result {
	driverMu.Lock()
	defer driverMu.Unlock()

	selector, _ := args["selector"].(string)
	text, _ := args["text"].(string)
	el, err := t.sess.page.Element(selector)
	if err != nil {
		return tools.ErrorResult("ERROR: element not found: " + err.Error())
	}
	if err := el.Input(text); err != nil {
		return tools.ErrorResult("ERROR: type failed: " + err.Error())
	}
	return tools.NewResult("typed into " + selector)
}

type browserReadTool struct{ sess *browserSession }

func (t *browserReadTool) Name() string        { return "browser_read" }
func (t *browserReadTool) Description() string { return "Read the visible text content of the current page" }
func (t *browserReadTool) Parameters() map[string]interface{} {
	return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
}
func (t *browserReadTool) Execute(ctx context.Context, args map[string]interface{}) *tools.Result {
	driverMu.Lock()
	defer driverMu.Unlock()

	text, err := t.sess.page.MustElement("body").Text()
	if err != nil {
		return tools.ErrorResult("ERROR: read failed: " + err.Error())
	}
	if len(text) > 8000 {
		text = text[:8000] + "\n... [truncated]"
	}
	return tools.NewResult(text)
}

type browserBackTool struct{ sess *browserSession }

func (t *browserBackTool) Name() string        { return "browser_back" }
func (t *browserBackTool) Description() string { return "Navigate back in browser history" }
func (t *browserBackTool) Parameters() map[string]interface{} {
	return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
}
func (t *browserBackTool) Execute(ctx context.Context, args map[string]interface{}) *tools.Result {
	driverMu.Lock()
	defer driverMu.Unlock()

	if err := t.sess.page.NavigateBack(); err != nil {
		return tools.ErrorResult("ERROR: back failed: " + err.Error())
	}
	return tools.NewResult("navigated back")
}

// NewBrowserSpec builds the Browser specialist: a headless-Chromium driven
// agent that can navigate, click, type, and read page text.
func NewBrowserSpec() *Spec {
	sess := &browserSession{}

	reg := tools.NewRegistry()
	reg.Register(tools.NewDoneTool())
	reg.Register(tools.NewStuckTool())
	reg.Register(&browserGotoTool{sess: sess})
	reg.Register(&browserClickTool{sess: sess})
	reg.Register(&browserTypeTool{sess: sess})
	reg.Register(&browserReadTool{sess: sess})
	reg.Register(&browserBackTool{sess: sess})

	return &Spec{
		Name:  "browser",
		Emoji: "🌐",
		SystemPrompt: "You are the Browser specialist. You control a headless web browser one action " +
			"at a time: navigate, click, type, read the page, or go back. Call done only once the " +
			"task is genuinely complete, with a summary of what you found or did. Call stuck if you " +
			"cannot proceed.",
		Tools:         reg,
		MaxSteps:      25,
		OnStart:       func(ctx context.Context) error { return sess.ensure() },
		DoneValidator: rejectPrematureDone,
	}
}
