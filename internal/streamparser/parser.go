// Package streamparser implements the Message Stream Parser (spec.md §4.7):
// it batches back-to-back human messages arriving within a short merge
// window into a single semantically classified Batch.
package streamparser

import (
	"strings"
	"sync"
	"time"
)

// BatchType classifies how a Batch's messages relate to one another.
type BatchType string

const (
	BatchSingle     BatchType = "single"
	BatchCorrection BatchType = "correction"
	BatchAddition   BatchType = "addition"
	BatchMultiTask  BatchType = "multi_task"
)

// Batch is the Parser's emitted unit of work.
type Batch struct {
	BatchType      BatchType
	MergedText     string
	IndividualTasks []string // populated only for BatchMultiTask
	Source         string   // carried through from the originating InboundMessage
	Messages       []string // every raw message folded into this batch
}

// correctionMarkers and additionMarkers are checked as case-insensitive
// prefixes of the latest message in the window.
var correctionMarkers = []string{"actually", "wait", "no,", "i meant", "sorry, i meant", "scratch that"}
var additionMarkers = []string{"also", "and", "plus", "oh and", "one more thing"}
var multiTaskConnectives = []string{"then", "after that", "next,"}

// Parser accumulates messages into a window and emits a Batch merge_window
// after the last message, or immediately on ForceFlush.
type Parser struct {
	mergeWindow time.Duration
	onEmit      func(Batch)

	mu       sync.Mutex
	window   []string
	source   string
	timer    *time.Timer
}

// New creates a Parser with the given merge window and emit callback.
func New(mergeWindow time.Duration, onEmit func(Batch)) *Parser {
	return &Parser{mergeWindow: mergeWindow, onEmit: onEmit}
}

// Ingest appends a message to the current window and (re)starts the merge
// timer. source identifies which InboundMessage source the text arrived on.
func (p *Parser) Ingest(text, source string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.window = append(p.window, text)
	p.source = source

	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(p.mergeWindow, p.fire)
}

// ForceFlush synchronously emits the current window even if the merge
// timer has not fired yet (used on shutdown). No-op if the window is empty.
func (p *Parser) ForceFlush() {
	p.mu.Lock()
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	if len(p.window) == 0 {
		p.mu.Unlock()
		return
	}
	batch := p.buildBatch()
	p.window = nil
	p.mu.Unlock()

	p.onEmit(batch)
}

func (p *Parser) fire() {
	p.mu.Lock()
	if len(p.window) == 0 {
		p.mu.Unlock()
		return
	}
	batch := p.buildBatch()
	p.window = nil
	p.timer = nil
	p.mu.Unlock()

	p.onEmit(batch)
}

// buildBatch classifies the current window. Caller must hold p.mu.
func (p *Parser) buildBatch() Batch {
	latest := p.window[len(p.window)-1]
	joined := strings.Join(p.window, "\n")

	batch := Batch{Source: p.source, Messages: append([]string{}, p.window...)}

	switch {
	case hasPrefixAny(latest, correctionMarkers):
		batch.BatchType = BatchCorrection
		batch.MergedText = joined
	case len(p.window) > 1 && hasPrefixAny(latest, additionMarkers):
		batch.BatchType = BatchAddition
		lead := strings.Join(p.window[:len(p.window)-1], "\n")
		batch.MergedText = lead + " … also: " + strings.TrimSpace(stripMarker(latest, additionMarkers))
	default:
		if tasks, ok := splitMultiTask(joined); ok {
			batch.BatchType = BatchMultiTask
			batch.IndividualTasks = tasks
			batch.MergedText = joined
		} else {
			batch.BatchType = BatchSingle
			batch.MergedText = joined
		}
	}

	return batch
}

func hasPrefixAny(text string, markers []string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	for _, m := range markers {
		if strings.HasPrefix(lower, m) {
			return true
		}
	}
	return false
}

func stripMarker(text string, markers []string) string {
	lower := strings.ToLower(strings.TrimSpace(text))
	for _, m := range markers {
		if strings.HasPrefix(lower, m) {
			return strings.TrimSpace(text[len(m):])
		}
	}
	return text
}

// splitMultiTask detects multiple imperative sentences joined by strong
// connectives, a numbered list, or newline-separated imperatives, and
// returns the ordered parts.
func splitMultiTask(text string) ([]string, bool) {
	lines := strings.Split(text, "\n")
	if len(lines) > 1 {
		var parts []string
		for _, l := range lines {
			if t := strings.TrimSpace(l); t != "" {
				parts = append(parts, t)
			}
		}
		if len(parts) > 1 {
			return parts, true
		}
	}

	lower := strings.ToLower(text)
	for _, conn := range multiTaskConnectives {
		if idx := strings.Index(lower, " "+conn+" "); idx != -1 {
			first := strings.TrimSpace(text[:idx])
			rest := strings.TrimSpace(text[idx+len(conn)+2:])
			if first != "" && rest != "" {
				return []string{first, rest}, true
			}
		}
	}

	return nil, false
}
