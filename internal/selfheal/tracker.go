// Package selfheal implements the Self-Heal & Error Tracker (spec.md
// §4.12): a lightweight failure tracker that fingerprints errors, and, once
// a fingerprint repeats often enough, produces a healing proposal the
// owner can approve before a dedicated dev-agent attempts a fix.
package selfheal

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/google/uuid"
	"github.com/mattn/go-runewidth"

	"github.com/ntars/tars/internal/agentloop"
	"github.com/ntars/tars/internal/memory"
)

// Record is one observed failure.
type Record struct {
	Fingerprint string
	TaskID      string
	Tool        string
	Context     string
	Timestamp   time.Time
}

// Proposal is a healing proposal awaiting (or past) owner approval.
type Proposal struct {
	ID          string
	Fingerprint string
	Occurrences int
	Description string
	DevTask     string
	CreatedAt   time.Time
	Approved    bool
	Resolved    bool
	Outcome     string
}

// DevAgentFunc dispatches a dedicated dev-agent at task and returns its
// terminal result. Satisfied by a *specialists.Spec's Deploy bound to the
// coder specialist, supplied by the composition root.
type DevAgentFunc func(ctx context.Context, task string) *agentloop.Result

// SendFunc delivers a message to the owner.
type SendFunc func(source, text string)

// Config wires the Tracker's dependencies.
type Config struct {
	// Threshold is the minimum number of occurrences of the same
	// fingerprint within Window before a proposal is raised.
	Threshold int
	Window    time.Duration

	// SweepCron gates how often the sweep loop checks for repeat
	// fingerprints (SPEC_FULL §2: gronx cron expression, default every 5
	// minutes, rather than a bare ticker).
	SweepCron string

	Memory      *memory.Store
	Send        SendFunc
	OwnerSource string
	DevAgent    DevAgentFunc
}

// Tracker records failures and raises healing proposals.
type Tracker struct {
	cfg  Config
	gron gronx.Gronx

	mu        sync.Mutex
	records   []Record
	proposals map[string]*Proposal

	stop chan struct{}
	done chan struct{}
}

// New creates a Tracker. Threshold defaults to 3 occurrences within a
// 30-minute window if unset.
func New(cfg Config) *Tracker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 3
	}
	if cfg.Window <= 0 {
		cfg.Window = 30 * time.Minute
	}
	if cfg.SweepCron == "" {
		cfg.SweepCron = "*/5 * * * *"
	}
	return &Tracker{
		cfg:       cfg,
		gron:      gronx.New(),
		proposals: make(map[string]*Proposal),
	}
}

// Observe records one failed task's summary (spec.md's "records
// (error_fingerprint, context, tool, timestamp)"). Satisfies
// dispatcher.ErrorTracker.
func (t *Tracker) Observe(taskID, source, content string) {
	tool, ctxSnippet := extractToolContext(content)
	fp := fingerprint(tool, ctxSnippet)

	t.mu.Lock()
	t.records = append(t.records, Record{
		Fingerprint: fp, TaskID: taskID, Tool: tool, Context: ctxSnippet, Timestamp: time.Now(),
	})
	t.mu.Unlock()

	slog.Warn("selfheal: observed failure", "task_id", taskID, "tool", tool, "fingerprint", fp)
}

// Start runs the sweep loop until ctx is done or Stop is called: every
// minute it checks whether SweepCron is due, and if so, scans for
// fingerprints that have crossed Threshold within Window.
func (t *Tracker) Start(ctx context.Context) {
	t.stop = make(chan struct{})
	t.done = make(chan struct{})

	go func() {
		defer close(t.done)
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.stop:
				return
			case <-ticker.C:
				due, err := t.gron.IsDue(t.cfg.SweepCron)
				if err != nil {
					slog.Warn("selfheal: invalid sweep cron expression", "cron", t.cfg.SweepCron, "error", err)
					continue
				}
				if due {
					t.sweep()
				}
			}
		}
	}()
}

// Stop halts the sweep loop started by Start.
func (t *Tracker) Stop() {
	if t.stop == nil {
		return
	}
	close(t.stop)
	<-t.done
}

// sweep groups recent records by fingerprint and raises a proposal for any
// fingerprint at or above Threshold that doesn't already have an
// unresolved proposal.
func (t *Tracker) sweep() {
	cutoff := time.Now().Add(-t.cfg.Window)

	t.mu.Lock()
	counts := make(map[string]int)
	samples := make(map[string]Record)
	kept := t.records[:0]
	for _, r := range t.records {
		if r.Timestamp.Before(cutoff) {
			continue
		}
		kept = append(kept, r)
		counts[r.Fingerprint]++
		samples[r.Fingerprint] = r
	}
	t.records = kept

	var newProposals []*Proposal
	for fp, count := range counts {
		if count < t.cfg.Threshold {
			continue
		}
		if t.hasOpenProposal(fp) {
			continue
		}
		p := t.newProposal(fp, count, samples[fp])
		t.proposals[p.ID] = p
		newProposals = append(newProposals, p)
	}
	t.mu.Unlock()

	for _, p := range newProposals {
		t.announce(p)
	}
}

func (t *Tracker) hasOpenProposal(fp string) bool {
	for _, p := range t.proposals {
		if p.Fingerprint == fp && !p.Resolved {
			return true
		}
	}
	return false
}

func (t *Tracker) newProposal(fp string, count int, sample Record) *Proposal {
	return &Proposal{
		ID:          uuid.New().String(),
		Fingerprint: fp,
		Occurrences: count,
		Description: fmt.Sprintf("%q from %s has failed %d times recently: %s", sample.Tool, sample.Tool, count, sample.Context),
		DevTask:     fmt.Sprintf("Investigate and fix the recurring failure in %s: %s", sample.Tool, sample.Context),
		CreatedAt:   time.Now(),
	}
}

func (t *Tracker) announce(p *Proposal) {
	if t.cfg.Send == nil {
		return
	}
	t.cfg.Send(t.cfg.OwnerSource, fmt.Sprintf(
		"🔧 I noticed a recurring failure (%d times): %s\n\nProposed fix task: %s\n\nWant me to dispatch a dev-agent to attempt this? Reply with the proposal id to approve: %s",
		p.Occurrences, p.Description, p.DevTask, p.ID))
}

// Approve marks proposal id approved and dispatches the dev-agent
// synchronously, reporting the outcome back to the owner (spec.md: "Heal
// outcome is reported back"). Returns an error if id is unknown or already
// resolved.
func (t *Tracker) Approve(ctx context.Context, id string) error {
	t.mu.Lock()
	p, ok := t.proposals[id]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("no such proposal: %s", id)
	}
	if p.Resolved {
		t.mu.Unlock()
		return fmt.Errorf("proposal %s already resolved", id)
	}
	p.Approved = true
	t.mu.Unlock()

	if t.cfg.DevAgent == nil {
		t.resolve(p, "no dev-agent configured; cannot attempt repair")
		return nil
	}

	result := t.cfg.DevAgent(ctx, p.DevTask)
	switch {
	case result.Success:
		t.resolve(p, result.Content)
		if t.cfg.Memory != nil {
			_, _ = t.cfg.Memory.Save(memory.CategoryLearned, p.Fingerprint, result.Content)
		}
	default:
		t.resolve(p, fmt.Sprintf("repair attempt did not complete: %s", result.Reason))
	}
	return nil
}

func (t *Tracker) resolve(p *Proposal, outcome string) {
	t.mu.Lock()
	p.Resolved = true
	p.Outcome = outcome
	t.mu.Unlock()

	if t.cfg.Send != nil {
		t.cfg.Send(t.cfg.OwnerSource, fmt.Sprintf("🔧 heal outcome for %s: %s", p.ID, outcome))
	}
}

// Proposals returns a snapshot of every known proposal, most recent first.
func (t *Tracker) Proposals() []*Proposal {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Proposal, 0, len(t.proposals))
	for _, p := range t.proposals {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// fingerprint normalizes tool+context into a short stable hash.
func fingerprint(tool, context string) string {
	h := sha256.Sum256([]byte(tool + "|" + normalize(context)))
	return hex.EncodeToString(h[:])[:16]
}

// normalize strips obvious per-instance noise (quoted paths, numbers) so
// the same class of failure hashes the same way across occurrences.
func normalize(s string) string {
	var b strings.Builder
	prevDigit := false
	for _, r := range s {
		if r >= '0' && r <= '9' {
			if !prevDigit {
				b.WriteRune('#')
			}
			prevDigit = true
			continue
		}
		prevDigit = false
		b.WriteRune(r)
	}
	return strings.ToLower(strings.TrimSpace(b.String()))
}

// extractToolContext pulls a rough tool name and a trimmed context snippet
// out of a Brain/Dispatcher failure string of the form "[specialist stuck:
// reason] content" or a bare error-sentinel message.
func extractToolContext(content string) (tool, context string) {
	if strings.HasPrefix(content, "[") {
		if end := strings.Index(content, "]"); end != -1 {
			header := content[1:end]
			parts := strings.SplitN(header, " ", 2)
			return parts[0], strings.TrimSpace(content[end+1:])
		}
	}
	return "unknown", truncate(content, 200)
}

func truncate(s string, n int) string {
	if runewidth.StringWidth(s) <= n {
		return s
	}
	return runewidth.Truncate(s, n, "")
}
