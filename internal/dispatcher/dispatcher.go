// Package dispatcher implements the Parallel Task Dispatcher (spec.md
// §4.11): it pulls Batches off a process-wide queue, spawns a bounded pool
// of Task workers that each run a fresh Brain to completion, and enforces
// MAX_PARALLEL concurrency.
package dispatcher

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-runewidth"

	"github.com/ntars/tars/internal/agentloop"
	"github.com/ntars/tars/internal/brain"
	"github.com/ntars/tars/internal/bus"
	"github.com/ntars/tars/internal/killswitch"
	"github.com/ntars/tars/internal/streamparser"
)

// errorSentinels mark a Brain's return string as a failure worth reporting
// to the Self-Heal Engine (spec.md §4.11 step 7).
var errorSentinels = []string{"❌", "⚠️"}

// ErrorTracker receives a failed task's summary for fingerprinting and
// (eventually) a healing proposal. Satisfied by *selfheal.Tracker; kept as
// an interface here so the dispatcher doesn't import selfheal's full
// scheduling machinery.
type ErrorTracker interface {
	Observe(taskID, source, content string)
}

// SendFunc delivers an outbound message to the owner on source.
type SendFunc func(source, text string)

// Config wires the Dispatcher's dependencies. BrainFactory builds a fresh
// *brain.Brain per Task worker (a fresh Brain starts with empty history and
// threads; only the shared Memory/Comms/Bus it's given carry over between
// Tasks, and one Brain per worker keeps the Agent Loop's
// single-Loop-per-Run concurrency assumption from leaking across Tasks).
type Config struct {
	MaxParallel int
	BrainFactory func() *brain.Brain
	Bus          *bus.Bus
	Kill         *killswitch.Switch
	Send         SendFunc
	SelfHeal     ErrorTracker // nil disables self-heal reporting

	ProgressInterval time.Duration // default 30s
	HeartbeatAfter   time.Duration // default 45s
}

// Dispatcher runs Batches through bounded-concurrency Task workers.
type Dispatcher struct {
	cfg     Config
	slots   chan struct{}
	counter atomic.Int64

	wg sync.WaitGroup
}

// New creates a Dispatcher with MaxParallel concurrent Task workers.
func New(cfg Config) *Dispatcher {
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 1
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = 30 * time.Second
	}
	if cfg.HeartbeatAfter <= 0 {
		cfg.HeartbeatAfter = 45 * time.Second
	}
	return &Dispatcher{cfg: cfg, slots: make(chan struct{}, cfg.MaxParallel)}
}

// Dispatch reserves a slot (blocking until one is free, per spec.md step 1 /
// P12), assigns a task_id, and runs the Task to completion on a new
// goroutine. It returns immediately after the worker has been started.
func (d *Dispatcher) Dispatch(ctx context.Context, batch streamparser.Batch) {
	select {
	case d.slots <- struct{}{}:
	case <-ctx.Done():
		return
	}

	taskID := fmt.Sprintf("task_%d", d.counter.Add(1))
	traceID := uuid.New().String()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() { <-d.slots }()
		defer d.recoverTask(taskID, traceID)
		d.runTask(ctx, taskID, traceID, batch)
	}()
}

// recoverTask catches a panic that escapes runTask (the Tool Registry
// already recovers tool panics into a stuck result; this is the backstop
// for anything else in the Brain/Agent Loop chain) so the worker goroutine
// survives and the task still gets a TopicParallelTaskCompleted emission
// instead of silently vanishing.
func (d *Dispatcher) recoverTask(taskID, traceID string) {
	if rec := recover(); rec != nil {
		d.emit(bus.TopicParallelTaskCompleted, taskID, map[string]interface{}{
			"trace_id": traceID, "success": false, "stuck": true, "reason": fmt.Sprintf("panic: %v", rec),
		})
	}
}

// Wait blocks until every in-flight Task worker has returned (used on
// shutdown, spec.md §6 "Exit behavior": bounded drain of the Task queue).
func (d *Dispatcher) Wait() { d.wg.Wait() }

// ActiveCount reports how many Task workers currently hold a slot.
func (d *Dispatcher) ActiveCount() int { return len(d.slots) }

func (d *Dispatcher) runTask(ctx context.Context, taskID, traceID string, batch streamparser.Batch) {
	d.emit(bus.TopicParallelTaskStarted, taskID, map[string]interface{}{
		"trace_id": traceID, "source": string(batch.Source), "batch_type": string(batch.BatchType),
	})

	b := d.cfg.BrainFactory()

	collector := newProgressCollector(d.cfg.Bus, taskID, d.cfg.Send, string(batch.Source), d.cfg.ProgressInterval, d.cfg.HeartbeatAfter)
	collector.Start()

	result := b.Process(ctx, taskID, batch, string(batch.Source))

	collector.Stop()

	d.safetyNetReply(b, result, string(batch.Source))
	d.selfHealCheck(taskID, string(batch.Source), result)

	d.emit(bus.TopicParallelTaskCompleted, taskID, map[string]interface{}{
		"trace_id": traceID, "success": result.Success, "stuck": result.Stuck, "reason": result.Reason,
	})
}

// safetyNetReply implements spec.md step 6: if the Brain never sent a
// user-visible reply during its loop, the dispatcher sends the Brain's
// return string (truncated) as one outbound message.
func (d *Dispatcher) safetyNetReply(b *brain.Brain, result *agentloop.Result, source string) {
	if b.SentReply() || d.cfg.Send == nil {
		return
	}
	text := result.Content
	if text == "" {
		text = result.Reason
	}
	if text == "" {
		return
	}
	d.cfg.Send(source, truncate(text, 1000))
}

// selfHealCheck implements spec.md step 7.
func (d *Dispatcher) selfHealCheck(taskID, source string, result *agentloop.Result) {
	if d.cfg.SelfHeal == nil {
		return
	}
	content := result.Content
	if content == "" {
		content = result.Reason
	}
	if hasErrorSentinel(content) {
		d.cfg.SelfHeal.Observe(taskID, source, content)
	}
}

func hasErrorSentinel(s string) bool {
	for _, sentinel := range errorSentinels {
		if strings.Contains(s, sentinel) {
			return true
		}
	}
	return false
}

func (d *Dispatcher) emit(topic, taskID string, payload map[string]interface{}) {
	if d.cfg.Bus == nil {
		return
	}
	if payload == nil {
		payload = map[string]interface{}{}
	}
	payload["task_id"] = taskID
	d.cfg.Bus.Emit(topic, payload)
}

// truncate is width-aware so a reply made of wide (CJK, emoji) runes doesn't
// blow past the outbound message's display budget the way a byte-count
// truncation would.
func truncate(s string, n int) string {
	if runewidth.StringWidth(s) <= n {
		return s
	}
	return runewidth.Truncate(s, n, "…")
}
