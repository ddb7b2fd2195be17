package selfheal

import (
	"context"
	"testing"
	"time"

	"github.com/ntars/tars/internal/agentloop"
	"github.com/ntars/tars/internal/memory"
)

func TestFingerprintNormalizesNumbers(t *testing.T) {
	a := fingerprint("shell", "connection to 10.0.0.1:5432 refused")
	b := fingerprint("shell", "connection to 10.0.0.2:5433 refused")
	if a != b {
		t.Fatalf("expected same fingerprint after digit normalization, got %q vs %q", a, b)
	}
}

func TestExtractToolContextParsesDeployFailure(t *testing.T) {
	tool, ctx := extractToolContext("[coder stuck: api_error] rate limited by provider")
	if tool != "coder" || ctx != "rate limited by provider" {
		t.Fatalf("unexpected parse: tool=%q ctx=%q", tool, ctx)
	}
}

func TestSweepRaisesProposalAtThreshold(t *testing.T) {
	var sent []string
	tr := New(Config{
		Threshold: 2, Window: time.Hour,
		Send: func(source, text string) { sent = append(sent, text) }, OwnerSource: "external",
	})

	tr.Observe("task_1", "external", "[coder stuck: api_error] rate limited by provider")
	tr.Observe("task_2", "external", "[coder stuck: api_error] rate limited by provider")
	tr.sweep()

	if len(sent) != 1 {
		t.Fatalf("expected exactly one proposal announced, got %d: %v", len(sent), sent)
	}
	if len(tr.Proposals()) != 1 {
		t.Fatalf("expected one tracked proposal, got %d", len(tr.Proposals()))
	}
}

func TestSweepDoesNotDuplicateProposalForSameFingerprint(t *testing.T) {
	var sent []string
	tr := New(Config{
		Threshold: 2, Window: time.Hour,
		Send: func(source, text string) { sent = append(sent, text) }, OwnerSource: "external",
	})

	tr.Observe("task_1", "external", "[coder stuck: api_error] rate limited")
	tr.Observe("task_2", "external", "[coder stuck: api_error] rate limited")
	tr.sweep()
	tr.Observe("task_3", "external", "[coder stuck: api_error] rate limited")
	tr.sweep()

	if len(sent) != 1 {
		t.Fatalf("expected proposal raised only once per open fingerprint, got %d: %v", len(sent), sent)
	}
}

func TestApproveDispatchesDevAgentAndRecordsLearnedMemory(t *testing.T) {
	mem, err := memory.New(t.TempDir())
	if err != nil {
		t.Fatalf("memory.New: %v", err)
	}

	var outcomes []string
	tr := New(Config{
		Threshold: 1, Window: time.Hour,
		Memory:      mem,
		Send:        func(source, text string) { outcomes = append(outcomes, text) },
		OwnerSource: "external",
		DevAgent: func(ctx context.Context, task string) *agentloop.Result {
			return &agentloop.Result{Success: true, Content: "patched the retry loop"}
		},
	})

	tr.Observe("task_1", "external", "[coder stuck: api_error] rate limited by provider")
	tr.sweep()

	proposals := tr.Proposals()
	if len(proposals) != 1 {
		t.Fatalf("expected one proposal, got %d", len(proposals))
	}

	if err := tr.Approve(context.Background(), proposals[0].ID); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	found := false
	for _, o := range outcomes {
		if contains(o, "patched the retry loop") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected heal outcome to be announced, got %v", outcomes)
	}

	if list := mem.ListAll(string(memory.CategoryLearned)); list.CategoryCount == 0 {
		t.Fatalf("expected a learned-memory entry after a successful heal, list=%+v", list)
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
