// Package specialists provides the thin bindings over internal/agentloop
// described in spec.md §4.9: each specialist is {name, emoji, system
// prompt, tool list, optional on_start hook}. None hold shared mutable
// state beyond what the Comms hub provides.
package specialists

import (
	"context"
	"time"

	"github.com/ntars/tars/internal/agentloop"
	"github.com/ntars/tars/internal/tools"
)

// Spec is a specialist's static definition. The Brain turns a Spec plus a
// shared Provider/Model/kill-switch into a runnable *agentloop.Loop for
// each deploy_<agent> call (a fresh Loop per deployment, since a specialist
// holds no cross-task state of its own).
type Spec struct {
	Name         string
	Emoji        string
	SystemPrompt string
	Tools        *tools.Registry
	MaxSteps     int

	OnStart              func(ctx context.Context) error
	StepOneObservation   func(ctx context.Context) (string, bool)
	NavigationRefresh    func(toolName string) (string, bool)
	RefreshDelay         time.Duration
	DoneValidator        agentloop.DoneValidator
}

// ToLoopConfig builds an agentloop.Config for one deployment, wiring in the
// caller-supplied provider/model/kill-switch/event sink that the Brain owns.
func (s *Spec) ToLoopConfig(cfg agentloop.Config) agentloop.Config {
	cfg.AgentName = s.Name
	cfg.SystemPrompt = s.SystemPrompt
	cfg.Tools = s.Tools
	if s.MaxSteps > 0 {
		cfg.MaxSteps = s.MaxSteps
	}
	cfg.OnStepOneObservation = s.StepOneObservation
	cfg.NavigationRefresh = s.NavigationRefresh
	cfg.DoneValidator = s.DoneValidator
	if s.RefreshDelay > 0 {
		cfg.RefreshDelay = s.RefreshDelay
	}
	return cfg
}

// Deploy runs on_start (if set) then drives a fresh bounded Agent Loop for
// task, returning its terminal Result.
func (s *Spec) Deploy(ctx context.Context, cfg agentloop.Config, task string) *agentloop.Result {
	if s.OnStart != nil {
		if err := s.OnStart(ctx); err != nil {
			return &agentloop.Result{Stuck: true, Reason: "on_start failed", Content: err.Error()}
		}
	}
	loop := agentloop.New(s.ToLoopConfig(cfg))
	return loop.Run(ctx, task)
}

// minEffectiveActions and errorRatioThreshold are the Browser agent's
// premature-done guard policy parameters (spec.md §4.8 step 4 / §9 open
// question — treated here as explicit, named policy constants rather than
// hardcoded magic numbers).
const (
	minEffectiveActions = 2
	errorRatioThreshold = 0.5
)

func rejectPrematureDone(state *agentloop.State) (bool, string) {
	if state.ActionCount < minEffectiveActions {
		return false, "too few actions taken to plausibly be done; keep working"
	}
	if state.ActionCount > 0 && float64(state.ErrorCount)/float64(state.ActionCount) >= errorRatioThreshold {
		return false, "half or more of the actions taken errored; the task is not actually complete"
	}
	return true, ""
}
