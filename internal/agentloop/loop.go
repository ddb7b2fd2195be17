// Package agentloop implements the generic Agent Loop (spec.md §4.8): a
// cooperative state machine that drives an LLM with a fixed tool set,
// one tool call per step, toward a done or stuck terminal.
package agentloop

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ntars/tars/internal/killswitch"
	"github.com/ntars/tars/internal/providers"
	"github.com/ntars/tars/internal/tools"
)

// Result is the terminal outcome of a Run.
type Result struct {
	Success bool
	Stuck   bool
	Reason  string // set when Stuck; e.g. "kill", "hit max steps", "api_error"
	Content string // the done summary, or the stuck reason text
	Steps   int
}

// DoneValidator inspects a proposed done summary plus the loop's running
// state and either accepts it or rejects it with a reason that gets fed
// back to the LLM as a tool_result (spec.md §4.8 step 4). A nil validator
// always accepts.
type DoneValidator func(state *State) (ok bool, rejectReason string)

// State is the observable loop state passed to hooks (DoneValidator,
// NavigationRefresh) so specialist agents can make policy decisions without
// reaching into Loop internals.
type State struct {
	Step           int
	ActionCount    int
	ErrorCount     int
	LastToolName   string
	LastToolResult *tools.Result
}

// Config configures a single bounded Agent Loop run. Everything specific to
// a particular specialist (system prompt, tool list, hooks) is supplied
// here; Config itself carries no shared mutable state beyond what's passed
// in explicitly.
type Config struct {
	AgentName    string
	Provider     providers.Provider
	Model        string
	SystemPrompt string
	Tools        *tools.Registry
	MaxSteps     int
	Kill         *killswitch.Switch

	// OnStepOneObservation optionally produces an extra context message
	// injected before the first LLM call (e.g. Browser: a snapshot of the
	// current page).
	OnStepOneObservation func(ctx context.Context) (observation string, ok bool)

	// NavigationRefresh runs after a successful tool call; if it returns
	// ok, the loop sleeps refreshDelay and injects the returned observation
	// as a fresh user turn so the LLM sees the effect (spec.md §4.8 step 6).
	NavigationRefresh func(toolName string) (observation string, ok bool)
	RefreshDelay      time.Duration

	DoneValidator DoneValidator

	// OnEvent reports loop lifecycle events (agent_started, tool_called,
	// agent_completed) for the Dispatcher's Progress Collector to subscribe
	// to via the event bus. Nil is a valid no-op.
	OnEvent func(name string, payload map[string]interface{})
}

// Loop runs one bounded agent session to completion.
type Loop struct {
	cfg     Config
	history []providers.Message
	state   State
	dupes   *loopDetector
}

// New creates a Loop from cfg. MaxSteps and Tools must be set; Tools must
// register "done" and "stuck".
func New(cfg Config) *Loop {
	if cfg.RefreshDelay == 0 {
		cfg.RefreshDelay = 500 * time.Millisecond
	}
	return &Loop{cfg: cfg, dupes: newLoopDetector()}
}

func (l *Loop) emit(name string, payload map[string]interface{}) {
	if l.cfg.OnEvent != nil {
		l.cfg.OnEvent(name, payload)
	}
}

// Run drives the loop on task until a done/stuck/kill/step-budget/api_error
// terminal is reached.
func (l *Loop) Run(ctx context.Context, task string) *Result {
	l.history = []providers.Message{
		{Role: "system", Content: l.cfg.SystemPrompt},
		{Role: "user", Content: task},
	}

	l.emit("agent_started", map[string]interface{}{"agent": l.cfg.AgentName, "task": task})

	maxSteps := l.cfg.MaxSteps
	if maxSteps <= 0 {
		maxSteps = 1
	}

	var result *Result
	for step := 1; step <= maxSteps; step++ {
		l.state.Step = step

		if killed, reason := l.cfg.Kill.IsSet(); killed {
			result = &Result{Stuck: true, Reason: "kill", Content: reason, Steps: step}
			break
		}

		if step == 1 && l.cfg.OnStepOneObservation != nil {
			if obs, ok := l.cfg.OnStepOneObservation(ctx); ok && obs != "" {
				l.history = append(l.history, providers.Message{Role: "user", Content: obs})
			}
		}

		resp, err := l.callLLM(ctx)
		if err != nil {
			result = &Result{Stuck: true, Reason: "api_error", Content: err.Error(), Steps: step}
			break
		}

		if len(resp.ToolCalls) == 0 {
			l.history = append(l.history, providers.Message{Role: "assistant", Content: resp.Content})
			l.history = append(l.history, providers.Message{
				Role:    "user",
				Content: "You did not call a tool. Use one of the available tools to make progress, or call done/stuck.",
			})
			continue
		}

		call := resp.ToolCalls[0]
		if len(resp.ToolCalls) > 1 {
			slog.Warn("agentloop: dropping extra tool calls, cap is one per step",
				"agent", l.cfg.AgentName, "step", step, "dropped", len(resp.ToolCalls)-1)
		}

		l.history = append(l.history, providers.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: []providers.ToolCall{call},
		})

		if r, done := l.handleToolCall(ctx, step, call); done {
			result = r
			break
		}
	}

	if result == nil {
		result = &Result{Stuck: true, Reason: "hit max steps", Steps: maxSteps}
	}

	l.emit("agent_completed", map[string]interface{}{
		"agent": l.cfg.AgentName, "success": result.Success, "stuck": result.Stuck, "reason": result.Reason,
	})
	return result
}

// handleToolCall processes one tool_use block. The bool return reports
// whether the loop has reached a terminal state.
func (l *Loop) handleToolCall(ctx context.Context, step int, call providers.ToolCall) (*Result, bool) {
	switch call.Name {
	case "done":
		summary, _ := call.Arguments["summary"].(string)
		l.state.LastToolName = "done"
		if l.cfg.DoneValidator != nil {
			if ok, reject := l.cfg.DoneValidator(&l.state); !ok {
				l.history = append(l.history, providers.Message{
					Role:       "tool",
					Content:    "done rejected: " + reject,
					ToolCallID: call.ID,
				})
				return nil, false
			}
		}
		return &Result{Success: true, Content: summary, Steps: step}, true

	case "stuck":
		reason, _ := call.Arguments["reason"].(string)
		if len(reason) < 3 {
			reason = fmt.Sprintf("agent %s could not make progress at step %d", l.cfg.AgentName, step)
		}
		return &Result{Stuck: true, Reason: reason, Steps: step}, true

	default:
		if res, stuck := l.dispatchTool(ctx, step, call); stuck {
			return res, true
		}
		return nil, false
	}
}

// dispatchTool runs one tool call. If the tool panicked, the run terminates
// immediately as stuck (the panic already broke whatever invariant the tool
// call was meant to establish, so feeding it back to the LLM as an ordinary
// tool error would just prompt another doomed call).
func (l *Loop) dispatchTool(ctx context.Context, step int, call providers.ToolCall) (*Result, bool) {
	l.emit("tool_called", map[string]interface{}{"agent": l.cfg.AgentName, "tool": call.Name, "step": step})

	res := l.cfg.Tools.Execute(ctx, call.Name, call.Arguments)

	l.state.ActionCount++
	l.state.LastToolName = call.Name
	l.state.LastToolResult = res
	if res.IsError {
		l.state.ErrorCount++
	}

	if res.Panicked {
		return &Result{Stuck: true, Reason: "tool panic", Content: res.ForLLM, Steps: step}, true
	}

	content := res.ForLLM
	hash, count := l.dupes.record(call.Name, call.Arguments)
	_ = hash
	if isLooping(count) {
		content += "\n\nWARNING: you are looping — you have called this exact tool with these exact arguments repeatedly. Try a different approach, or call stuck if you cannot proceed."
	}

	l.history = append(l.history, providers.Message{
		Role:       "tool",
		Content:    content,
		ToolCallID: call.ID,
	})

	if !res.IsError && l.cfg.NavigationRefresh != nil {
		if obs, ok := l.cfg.NavigationRefresh(call.Name); ok {
			time.Sleep(l.cfg.RefreshDelay)
			l.history = append(l.history, providers.Message{Role: "user", Content: obs})
		}
	}

	return nil, false
}

// callLLM invokes the provider once, retrying a single time on error
// (spec.md §4.8: "LLM API failure after retry").
func (l *Loop) callLLM(ctx context.Context) (*providers.ChatResponse, error) {
	req := providers.ChatRequest{
		Messages: l.history,
		Tools:    l.cfg.Tools.Definitions(),
		Model:    l.cfg.Model,
	}

	resp, err := l.cfg.Provider.Chat(ctx, req)
	if err == nil {
		return resp, nil
	}

	slog.Warn("agentloop: LLM call failed, retrying once", "agent", l.cfg.AgentName, "error", err)
	return l.cfg.Provider.Chat(ctx, req)
}
