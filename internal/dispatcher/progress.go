package dispatcher

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ntars/tars/internal/bus"
)

const maxProgressEvents = 5

// progressCollector subscribes to one Task's lifecycle events and flushes a
// batched progress message every interval, or a heartbeat if the task has
// been running longer than heartbeatAfter with nothing new to report
// (spec.md §4.11 "Progress Collector").
type progressCollector struct {
	bus      *bus.Bus
	taskID   string
	send     SendFunc
	source   string
	interval time.Duration
	heartbeatAfter time.Duration

	subID string

	mu        sync.Mutex
	events    []string
	startedAt time.Time

	stop chan struct{}
	done chan struct{}
}

func newProgressCollector(b *bus.Bus, taskID string, send SendFunc, source string, interval, heartbeatAfter time.Duration) *progressCollector {
	return &progressCollector{
		bus: b, taskID: taskID, send: send, source: source,
		interval: interval, heartbeatAfter: heartbeatAfter,
		subID: "progress-" + taskID,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// Start subscribes to the task's events and begins the flush ticker.
func (p *progressCollector) Start() {
	if p.bus == nil {
		close(p.done)
		return
	}
	p.startedAt = time.Now()

	for _, topic := range []string{bus.TopicAgentStarted, bus.TopicAgentCompleted, bus.TopicToolCalled} {
		p.bus.Subscribe(topic, p.subID, p.onEvent)
	}

	go p.loop()
}

// Stop unsubscribes and halts the flush ticker.
func (p *progressCollector) Stop() {
	close(p.stop)
	<-p.done
	if p.bus != nil {
		for _, topic := range []string{bus.TopicAgentStarted, bus.TopicAgentCompleted, bus.TopicToolCalled} {
			p.bus.Unsubscribe(topic, p.subID)
		}
	}
}

func (p *progressCollector) onEvent(evt bus.Event) {
	id, _ := evt.Payload["task_id"].(string)
	if id != p.taskID {
		return
	}
	p.mu.Lock()
	p.events = append(p.events, renderEvent(evt))
	p.mu.Unlock()
}

func (p *progressCollector) loop() {
	defer close(p.done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.flush()
		}
	}
}

// flush sends at most the last maxProgressEvents as one message, or a
// heartbeat if nothing happened but the task has been running longer than
// heartbeatAfter. Send errors are swallowed (spec.md: "exceptions in the
// outbound channel are swallowed").
func (p *progressCollector) flush() {
	p.mu.Lock()
	events := p.events
	p.events = nil
	p.mu.Unlock()

	if p.send == nil {
		return
	}

	defer func() { recover() }()

	if len(events) == 0 {
		if time.Since(p.startedAt) > p.heartbeatAfter {
			p.send(p.source, fmt.Sprintf("⏳ still working on it (%ds elapsed)...", int(time.Since(p.startedAt).Seconds())))
		}
		return
	}

	if len(events) > maxProgressEvents {
		events = events[len(events)-maxProgressEvents:]
	}
	p.send(p.source, "⏳ progress:\n"+strings.Join(events, "\n"))
}

func renderEvent(evt bus.Event) string {
	switch evt.Topic {
	case bus.TopicAgentStarted:
		agent, _ := evt.Payload["agent"].(string)
		return fmt.Sprintf("- started %s", agent)
	case bus.TopicAgentCompleted:
		agent, _ := evt.Payload["agent"].(string)
		success, _ := evt.Payload["success"].(bool)
		if success {
			return fmt.Sprintf("- %s finished", agent)
		}
		return fmt.Sprintf("- %s stopped", agent)
	case bus.TopicToolCalled:
		agent, _ := evt.Payload["agent"].(string)
		tool, _ := evt.Payload["tool"].(string)
		return fmt.Sprintf("- %s called %s", agent, tool)
	default:
		return "- " + evt.Topic
	}
}
