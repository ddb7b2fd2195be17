// Package brain implements the Orchestrator (spec.md §4.10): a top-level
// Agent Loop whose tool surface combines first-party tools with
// deploy_<agent> tools that invoke specialist Agent Loops, and which keeps
// a rolling conversation history and a set of named threads across tasks.
package brain

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ntars/tars/internal/agentloop"
	"github.com/ntars/tars/internal/bus"
	"github.com/ntars/tars/internal/comms"
	"github.com/ntars/tars/internal/killswitch"
	"github.com/ntars/tars/internal/memory"
	"github.com/ntars/tars/internal/providers"
	"github.com/ntars/tars/internal/specialists"
	"github.com/ntars/tars/internal/streamparser"
	"github.com/ntars/tars/internal/tools"
)

const defaultMaxHistoryTurns = 20

// Config wires the Brain's dependencies. All fields are explicit
// constructor arguments, not globals (spec.md §9's "Global mutable state"
// redesign note): the composition root builds one of these and passes it
// in.
type Config struct {
	BrainProvider providers.Provider
	BrainModel    string
	AgentProvider providers.Provider // shared provider for deploy_<agent> sub-loops
	AgentModel    string

	MaxSteps        int
	MaxHistoryTurns int

	Memory          *memory.Store
	Comms           *comms.Hub
	Bus             *bus.Bus
	Kill            *killswitch.Switch
	Specialists     map[string]*specialists.Spec
	FirstPartyTools *tools.Registry // send_message/save_memory/etc, already built by the composition root
	Send            tools.SendFunc
}

type turn struct {
	Role string // "owner" or "brain"
	Text string
	At   time.Time
}

// Brain is the Orchestrator, invoked once per Task by the Parallel Task
// Dispatcher (spec.md §4.11). It is NOT safe for concurrent Process calls
// from multiple goroutines — the Dispatcher runs one Brain per Task worker,
// each with its own Brain instance built from a shared Config (spec.md
// invariant I2: at most one LLM call in flight per Task). History and
// threads persist across Process calls on the same instance only; because
// the Dispatcher builds a new Brain for every Task, they do not carry over
// from one Task to the next.
type Brain struct {
	cfg Config

	mu      sync.Mutex
	history []turn
	thread  string
	threads map[string][]turn

	sentReply bool
}

// New builds a Brain from cfg, wiring deploy_<agent> tools for every
// configured specialist on top of the first-party tool registry.
func New(cfg Config) *Brain {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = 25
	}
	if cfg.MaxHistoryTurns <= 0 {
		cfg.MaxHistoryTurns = defaultMaxHistoryTurns
	}
	return &Brain{cfg: cfg, thread: "general", threads: make(map[string][]turn)}
}

// Process runs the Brain's Agent Loop on one Batch, per spec.md §4.10's
// process(batch) entry point. replySource routes any send_message tool
// call back to the channel the task arrived on. Returns the loop's
// terminal Result (the done summary, or a stuck/kill/step-budget/api_error
// outcome; the Brain's own plain assistant text is not carried into it).
func (b *Brain) Process(ctx context.Context, taskID string, batch streamparser.Batch, replySource string) *agentloop.Result {
	b.mu.Lock()
	b.sentReply = false
	b.mu.Unlock()

	registry := b.buildRegistry()
	ctx = tools.WithReplySource(ctx, replySource)

	loop := agentloop.New(agentloop.Config{
		AgentName:    "brain",
		Provider:     b.cfg.BrainProvider,
		Model:        b.cfg.BrainModel,
		SystemPrompt: b.systemPrompt(batch),
		Tools:        registry,
		MaxSteps:     b.cfg.MaxSteps,
		Kill:         b.cfg.Kill,
		OnEvent: func(name string, payload map[string]interface{}) {
			if payload == nil {
				payload = map[string]interface{}{}
			}
			payload["task_id"] = taskID
			b.cfg.Bus.Emit(name, payload)
		},
	})

	result := loop.Run(ctx, batch.MergedText)

	b.recordTurn(batch.MergedText, result.Content)
	return result
}

// SentReply reports whether the most recent Process call emitted at least
// one send_message tool call (spec.md's brain_sent_imessage flag), so the
// Dispatcher knows whether its safety-net reply is needed (invariant I6).
func (b *Brain) SentReply() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sentReply
}

func (b *Brain) recordTurn(task, summary string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history = append(b.history, turn{Role: "owner", Text: task, At: time.Now()})
	b.history = append(b.history, turn{Role: "brain", Text: summary, At: time.Now()})
	if len(b.history) > b.cfg.MaxHistoryTurns*2 {
		b.history = b.history[len(b.history)-b.cfg.MaxHistoryTurns*2:]
	}
	b.threads[b.thread] = append(b.threads[b.thread], b.history[len(b.history)-2], b.history[len(b.history)-1])
}

func (b *Brain) systemPrompt(batch streamparser.Batch) string {
	var sb strings.Builder
	sb.WriteString(basePrompt)

	switch batch.BatchType {
	case streamparser.BatchCorrection:
		sb.WriteString("\n\nThe owner is CORRECTING their previous message. Replace the plan from the " +
			"previous turn with what they're asking for now; do not pursue both.")
	case streamparser.BatchAddition:
		sb.WriteString("\n\nThe owner is ADDING to their previous message. Extend the previous turn's " +
			"plan rather than starting over.")
	}

	if hist := b.renderHistory(); hist != "" {
		sb.WriteString("\n\n### Recent Conversation\n")
		sb.WriteString(hist)
	}

	if ctx := b.cfg.Memory.GetContextSummary(); ctx != "" {
		sb.WriteString("\n\n### Memory\n")
		sb.WriteString(ctx)
	}

	if scratch := b.cfg.Comms.ScratchpadSummary(); scratch != "" {
		sb.WriteString("\n\n")
		sb.WriteString(scratch)
	}

	sb.WriteString(fmt.Sprintf("\n\n### Current thread: %s", b.currentThread()))
	return sb.String()
}

func (b *Brain) currentThread() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.thread
}

func (b *Brain) renderHistory() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.history) == 0 {
		return ""
	}
	var lines []string
	for _, t := range b.history {
		who := "Owner"
		if t.Role == "brain" {
			who = "TARS"
		}
		lines = append(lines, fmt.Sprintf("%s: %s", who, truncate(t.Text, 300)))
	}
	return strings.Join(lines, "\n")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

// buildRegistry clones the first-party registry and layers on a wrapped
// send_message tool (for reply tracking) plus one deploy_<agent> tool per
// configured specialist.
func (b *Brain) buildRegistry() *tools.Registry {
	reg := tools.NewRegistry()
	for _, name := range b.cfg.FirstPartyTools.Names() {
		t, _ := b.cfg.FirstPartyTools.Get(name)
		reg.Register(t)
	}

	reg.Register(tools.NewDoneTool())
	reg.Register(tools.NewStuckTool())
	reg.Register(newSwitchThreadTool(b))

	sendWrapper := func(source, text string) {
		b.mu.Lock()
		b.sentReply = true
		b.mu.Unlock()
		if b.cfg.Bus != nil {
			b.cfg.Bus.Emit(bus.TopicIMessageSent, map[string]interface{}{"source": source, "text": text})
		}
		if b.cfg.Send != nil {
			b.cfg.Send(source, text)
		}
	}
	reg.Register(tools.NewSendMessageTool(sendWrapper))

	for name, spec := range b.cfg.Specialists {
		reg.Register(newDeployTool(name, spec, b))
	}

	return reg
}

const basePrompt = `You are TARS, an autonomous personal assistant running on the owner's
workstation. You receive natural-language tasks and either handle them
directly with your first-party tools (messaging, memory, a quick shell
command) or delegate them to a specialist via one of the deploy_<agent>
tools. Deploying a specialist runs a bounded sub-agent loop to completion
and returns its summary as your tool result — you decide whether that's
good enough, needs a retry with more guidance, needs a different
specialist, or needs you to ask the owner a clarifying question.

Call done once you've handled the task (even if that just means you sent
the owner a reply), or stuck if you genuinely cannot proceed.`
