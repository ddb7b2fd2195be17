// Package comms implements Inter-Agent Comms (spec.md §4.3): a shared
// typed Scratchpad and a single-slot, pop-once Handoff channel per target
// agent. All communication between specialists flows through the Brain —
// this package has no notion of agent-to-agent delivery, only shared state
// the Brain reads and writes on their behalf.
package comms

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Message is a record of one agent communicating with another, kept for
// the conversation log. It is informational only — delivery is the
// Brain's responsibility.
type Message struct {
	From      string
	To        string
	Content   string
	Type      string // info, request, result, handoff, scratchpad
	Timestamp time.Time
}

// ScratchpadEntry is one typed value shared on the scratchpad.
type ScratchpadEntry struct {
	Key         string
	DataType    string // selectors, urls, facts, credentials, code, error
	Value       interface{}
	SourceAgent string
	Timestamp   time.Time
}

// Hub is the process-wide inter-agent communication state: message log,
// shared scratchpad, and per-agent handoff slots.
type Hub struct {
	mu         sync.Mutex
	messages   []Message
	scratchpad map[string]ScratchpadEntry
	handoffs   map[string]string // agent name -> pending handoff text, pop-once
}

// New creates an empty Hub.
func New() *Hub {
	return &Hub{
		scratchpad: make(map[string]ScratchpadEntry),
		handoffs:   make(map[string]string),
	}
}

// Send records a message from one agent to another in the conversation log.
func (h *Hub) Send(from, to, content, msgType string) Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	msg := Message{From: from, To: to, Content: content, Type: msgType, Timestamp: time.Now()}
	h.messages = append(h.messages, msg)
	return msg
}

// WriteScratchpad stores a typed value under key, overwriting any prior
// entry, and records the write in the conversation log.
func (h *Hub) WriteScratchpad(key string, value interface{}, dataType, sourceAgent string) {
	h.mu.Lock()
	h.scratchpad[key] = ScratchpadEntry{
		Key:         key,
		DataType:    dataType,
		Value:       value,
		SourceAgent: sourceAgent,
		Timestamp:   time.Now(),
	}
	h.mu.Unlock()

	h.Send(sourceAgent, "scratchpad", truncate(fmt.Sprint(value), 200), "scratchpad")
}

// ReadScratchpad returns the value stored under key, and whether it exists.
func (h *Hub) ReadScratchpad(key string) (interface{}, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	entry, ok := h.scratchpad[key]
	if !ok {
		return nil, false
	}
	return entry.Value, true
}

// ReadScratchpadByType returns every scratchpad entry matching dataType,
// keyed by its scratchpad key.
func (h *Hub) ReadScratchpadByType(dataType string) map[string]interface{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]interface{})
	for k, v := range h.scratchpad {
		if v.DataType == dataType {
			out[k] = v.Value
		}
	}
	return out
}

// ScratchpadSummary renders every scratchpad entry as a human-readable
// block, sorted by key for determinism. Returns "" if the scratchpad is
// empty.
func (h *Hub) ScratchpadSummary() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.scratchpad) == 0 {
		return ""
	}

	keys := make([]string, 0, len(h.scratchpad))
	for k := range h.scratchpad {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := []string{"## Shared Scratchpad"}
	for _, k := range keys {
		e := h.scratchpad[k]
		age := int(time.Since(e.Timestamp).Seconds())
		lines = append(lines, fmt.Sprintf("  [%s] %s (by %s, %ds ago): %s",
			e.DataType, e.Key, e.SourceAgent, age, truncate(fmt.Sprint(e.Value), 150)))
	}
	return strings.Join(lines, "\n")
}

// Handoff creates a pop-once handoff for toAgent: context from the agent
// that previously worked the task, plus the current scratchpad summary
// if any.
func (h *Hub) Handoff(fromAgent, toAgent, context, task string) string {
	summary := h.ScratchpadSummary()

	var b strings.Builder
	fmt.Fprintf(&b, "=== HANDOFF FROM %s AGENT ===\n", strings.ToUpper(fromAgent))
	fmt.Fprintf(&b, "Previous agent (%s) worked on this task and provides context:\n%s\n", fromAgent, context)
	if task != "" {
		fmt.Fprintf(&b, "Task for you: %s\n", task)
	}
	if summary != "" {
		fmt.Fprintf(&b, "\n%s\n", summary)
	}
	b.WriteString("=== END HANDOFF ===")

	text := b.String()

	h.mu.Lock()
	h.handoffs[toAgent] = text
	h.mu.Unlock()

	h.Send(fromAgent, toAgent, context, "handoff")
	return text
}

// GetHandoffContext pops any pending handoff for agentName. If none is
// pending, it falls back to the current scratchpad summary (or "" if the
// scratchpad is also empty). Pop-once: a second call without an
// intervening Handoff returns the fallback, not the same handoff text.
func (h *Hub) GetHandoffContext(agentName string) string {
	h.mu.Lock()
	ctx, ok := h.handoffs[agentName]
	if ok {
		delete(h.handoffs, agentName)
	}
	h.mu.Unlock()

	if ok {
		return ctx
	}
	return h.ScratchpadSummary()
}

// GetMessages returns the most recent messages, most-recent-last, optionally
// filtered by agent (either side) and/or message type.
func (h *Hub) GetMessages(agent, msgType string, limit int) []Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	var filtered []Message
	for _, m := range h.messages {
		if agent != "" && m.From != agent && m.To != agent {
			continue
		}
		if msgType != "" && m.Type != msgType {
			continue
		}
		filtered = append(filtered, m)
	}
	if len(filtered) > limit {
		filtered = filtered[len(filtered)-limit:]
	}
	return filtered
}

// ConversationLog renders the last 30 messages as a human-readable log.
func (h *Hub) ConversationLog() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.messages) == 0 {
		return "No inter-agent communications yet."
	}

	recent := h.messages
	if len(recent) > 30 {
		recent = recent[len(recent)-30:]
	}

	lines := []string{"=== Agent Communication Log ==="}
	for _, m := range recent {
		lines = append(lines, fmt.Sprintf("[%s] %s -> %s (%s): %s",
			m.Timestamp.Format("15:04:05"), m.From, m.To, m.Type, truncate(m.Content, 200)))
	}
	return strings.Join(lines, "\n")
}

// Clear wipes every message, handoff, and scratchpad entry.
func (h *Hub) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = nil
	h.handoffs = make(map[string]string)
	h.scratchpad = make(map[string]ScratchpadEntry)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
